// Package main provides the gap backfill worker pool entry point.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/addrtx/scanner/internal/adapter"
	"github.com/addrtx/scanner/internal/config"
	"github.com/addrtx/scanner/internal/job"
	"github.com/addrtx/scanner/internal/logging"
	"github.com/addrtx/scanner/internal/ratelimit"
	"github.com/addrtx/scanner/internal/storage"
	"github.com/addrtx/scanner/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, logging.ParseFormat(cfg.Logging.Format))
	slog.SetDefault(logger)
	logger.Info("gap backfill worker starting")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	limiter := ratelimit.New(cfg.RateLimit.TokensPerSecond, cfg.RateLimit.MaxConcurrent)
	explorer := adapter.NewExplorer(cfg.Upstream.ExplorerAPIURL, cfg.Upstream.ExplorerAPIKey, cfg.Upstream.ExplorerTimeout, limiter)

	jobRepo := storage.NewJobRepository(postgres.Pool())
	transactions := storage.NewTransactionRepository(postgres.Pool())
	coverage := storage.NewCoverageRepository(postgres.Pool())
	gapStore := storage.NewGapStore(postgres.Pool(), transactions, coverage)

	scheduler := job.NewScheduler(jobRepo)
	ctx, cancel := context.WithCancel(logging.WithContext(context.Background(), logger))
	defer cancel()

	if err := scheduler.Load(ctx); err != nil {
		logger.Error("failed to load queued jobs from durable store", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded queued jobs into scheduler", "pending", scheduler.Len())

	pool := worker.New(worker.Config{
		Scheduler:        scheduler,
		Explorer:         explorer,
		Store:            gapStore,
		Concurrency:      cfg.Job.WorkerConcurrency,
		MaxTxPerBatch:    cfg.Job.MaxTxPerBatch,
		RetryAttempts:    cfg.Job.RetryAttempts,
		RetryBackoffBase: time.Duration(cfg.Job.RetryBackoffBaseMs) * time.Millisecond,
	})
	pool.Start(ctx)
	logger.Info("worker pool started", "concurrency", cfg.Job.WorkerConcurrency)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, draining in-flight jobs")
	pool.Stop()
	logger.Info("worker pool stopped")
}
