package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-sweeper/internal/config"
	"identity-sweeper/internal/crowd"
	"identity-sweeper/internal/db"
	"identity-sweeper/internal/directory"
	"identity-sweeper/internal/logging"
	"identity-sweeper/internal/redis"
	"identity-sweeper/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_worker",
		"service", "identity-sweeper-worker",
		"directory_mode", cfg.DirectoryMode,
		"threshold_days", cfg.SweepThresholdDays,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dir directory.Directory
	var dbConn *db.DB

	switch cfg.DirectoryMode {
	case config.DirectoryModeSQL:
		// the backend database may still be coming up
		for i := 0; i < 5; i++ {
			dbConn, err = db.New(ctx, cfg.DBDSN)
			if err == nil {
				break
			}
			logger.Warn("db_connect_retry", "attempt", i+1, "error", err)
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			logger.Error("db_connect_failed", "error", err)
			os.Exit(1)
		}
		dir = db.NewSQLDirectory(logger, dbConn, cfg.SweepRunAs)
		logger.Info("using_sql_directory", "run_as", cfg.SweepRunAs)
	default:
		dir = crowd.NewClient(logger, cfg.CrowdBaseURL, cfg.CrowdUsername, cfg.CrowdAPIToken)
		logger.Info("using_rest_directory",
			"base_url", cfg.CrowdBaseURL,
			"username", cfg.CrowdUsername,
			"token", logging.MaskSecret(cfg.CrowdAPIToken),
		)
	}

	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}

	sweeper := sweep.New(logger, dir, cfg.SweepThresholdDays)
	history := sweep.NewHistory(10)
	runner := sweep.NewRunner(logger, sweeper, redisClient, history)
	job := sweep.NewJob(logger, runner, time.Duration(cfg.SweepIntervalHours)*time.Hour)

	go job.Start(ctx)

	logger.Info("worker_started", "interval_hours", cfg.SweepIntervalHours)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")
	cancel()

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	if dbConn != nil {
		dbConn.Close()
		logger.Info("db_closed")
	}

	logger.Info("worker_stopped")
}
