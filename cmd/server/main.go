// Package main is the entry point for the canteiro API server.
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

	"github.com/gin-gonic/gin"

	"canteiro/internal/app"
	v1 "canteiro/internal/infrastructure/http/v1"
	"canteiro/internal/infrastructure/http/v1/middleware"
	"canteiro/pkg/config"
	"canteiro/pkg/logger"
)

const maintenanceInterval = 5 * time.Minute

type expiringStore interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load(os.Getenv("CANTEIRO_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     "canteiro-server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting canteiro server", "env", cfg.App.Env, "storage", cfg.Storage.Driver)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var tokens middleware.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		tokens = a.Tokens
	} else {
		log.Warn("auth.jwt_secret not set; bearer tokens are ignored")
	}

	router := v1.NewRouter(v1.RouterConfig{
		Logger:          log,
		Metrics:         a.Metrics,
		Tokens:          tokens,
		AuthRequired:    cfg.Auth.Required,
		Idempotency:     a.Idempotency,
		Catalog:         a.Catalog,
		Ledger:          a.Ledger,
		Allocations:     a.Allocations,
		Stock:           a.Stock,
		Reports:         a.Reports,
		ReportsMaxLimit: cfg.Reports.MaxLimit,
		HealthChecks:    a.HealthChecks,
	})

	server := &http.Server{
		Addr:         cfg.App.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go maintenance(ctx, a)

	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	log.Info("server stopped")
}

// maintenance periodically logs pool usage and drops expired idempotency records.
func maintenance(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if a.Pool != nil {
			a.Pool.LogPoolStats(ctx)
		}
		if s, ok := a.Idempotency.(expiringStore); ok {
			n, err := s.CleanupExpired(ctx)
			if err != nil {
				logger.Warn(ctx, "idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "idempotency records expired", "count", n)
			}
		}
	}
}
