// Combined entrypoint: admin API plus the scheduled sweep job in a single
// process, for small installs that do not split api and worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-sweeper/internal/api"
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
	logger.Info("starting_service",
		"service", "identity-sweeper",
		"http_addr", cfg.HTTPAddr,
		"directory_mode", cfg.DirectoryMode,
		"threshold_days", cfg.SweepThresholdDays,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dir directory.Directory
	var dbConn *db.DB

	switch cfg.DirectoryMode {
	case config.DirectoryModeSQL:
		dbConn, err = db.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("db_connect_failed", "error", err)
			os.Exit(1)
		}
		dir = db.NewSQLDirectory(logger, dbConn, cfg.SweepRunAs)
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

	srv := api.NewServer(logger, cfg, dbConn, redisClient, sweeper, runner, history)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("service_started", "interval_hours", cfg.SweepIntervalHours)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	if dbConn != nil {
		dbConn.Close()
		logger.Info("db_closed")
	}

	logger.Info("service_stopped")
}
