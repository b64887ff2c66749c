package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DirectoryModeREST = "rest"
	DirectoryModeSQL  = "sql"
)

type Config struct {
	DBDSN    string
	RedisDSN string
	HTTPAddr string
	LogLevel string

	// identity backend (JIRA Server with embedded Crowd directory)
	CrowdBaseURL  string
	CrowdUsername string
	CrowdAPIToken string // kept in-memory only; never log this

	// "rest" talks to the usermanagement REST API, "sql" reads the
	// Crowd schema directly over postgres
	DirectoryMode string

	SweepThresholdDays int
	SweepIntervalHours int
	SweepRunAs         string // sql mode: account the sweep is attributed to

	AdminSecretKey string
	CORSOrigins    []string
}

func Load() (Config, error) {
	cfg := Config{
		DBDSN:         os.Getenv("DB_DSN"),
		RedisDSN:      getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		CrowdBaseURL:  strings.TrimRight(os.Getenv("CROWD_BASE_URL"), "/"),
		CrowdUsername: os.Getenv("CROWD_USERNAME"),
		CrowdAPIToken: os.Getenv("CROWD_API_TOKEN"),
		DirectoryMode: getenvDefault("DIRECTORY_MODE", DirectoryModeREST),
		SweepRunAs:    os.Getenv("SWEEP_RUN_AS"),

		AdminSecretKey: getenvDefault("ADMIN_SECRET_KEY", ""),
	}

	var err error
	cfg.SweepThresholdDays, err = getenvInt("SWEEP_THRESHOLD_DAYS", 60)
	if err != nil {
		return Config{}, err
	}
	if cfg.SweepThresholdDays <= 0 {
		return Config{}, errors.New("SWEEP_THRESHOLD_DAYS must be positive")
	}

	cfg.SweepIntervalHours, err = getenvInt("SWEEP_INTERVAL_HOURS", 24)
	if err != nil {
		return Config{}, err
	}
	if cfg.SweepIntervalHours <= 0 {
		return Config{}, errors.New("SWEEP_INTERVAL_HOURS must be positive")
	}

	switch cfg.DirectoryMode {
	case DirectoryModeREST:
		if cfg.CrowdBaseURL == "" {
			return Config{}, errors.New("missing CROWD_BASE_URL")
		}
		if cfg.CrowdUsername == "" || cfg.CrowdAPIToken == "" {
			return Config{}, errors.New("missing CROWD_USERNAME or CROWD_API_TOKEN")
		}
	case DirectoryModeSQL:
		if cfg.DBDSN == "" {
			return Config{}, errors.New("missing DB_DSN (required in sql mode)")
		}
		if cfg.SweepRunAs == "" {
			return Config{}, errors.New("missing SWEEP_RUN_AS (required in sql mode)")
		}
	default:
		return Config{}, fmt.Errorf("DIRECTORY_MODE must be %q or %q", DirectoryModeREST, DirectoryModeSQL)
	}

	// parse CORS origins
	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", k, err)
	}
	return n, nil
}
