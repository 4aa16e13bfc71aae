// Package main is the entry point for the canteiro background worker. It runs
// the scheduled reconciliation of stock and allocation counters against the
// ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"canteiro/internal/app"
	"canteiro/internal/infrastructure/jobs"
	"canteiro/pkg/config"
	"canteiro/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CANTEIRO_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     "canteiro-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	if !cfg.Redis.Enabled() {
		log.Fatal("redis.addr is required by the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting canteiro worker",
		"cron", cfg.Jobs.ReconcileCron,
		"repair", cfg.Jobs.Repair,
		"concurrency", cfg.Jobs.Concurrency,
	)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	cron, err := jobs.ReconcileCron(cfg.Jobs.ReconcileCron, cfg.Jobs.Repair)
	if err != nil {
		log.Fatalw("invalid reconcile schedule", "error", err)
	}

	job := jobs.NewReconcileJob(a.Stock, a.Allocations, a.Metrics)
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		Concurrency: cfg.Jobs.Concurrency,
		Handlers:    job.Handlers(),
		Cron:        cron,
	})
	if err != nil {
		log.Fatalw("failed to create worker", "error", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           a.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infow("worker metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "error", err)
		}
	}()

	if err := worker.Run(ctx); err != nil {
		log.Errorw("worker stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	log.Info("worker stopped")
}
