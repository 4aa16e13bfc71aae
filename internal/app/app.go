// Package app wires configuration into stores, services and their
// collaborators. cmd/server, cmd/worker and cmd/seed share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"canteiro/internal/core/tx"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
	"canteiro/internal/domain/allocation"
	"canteiro/internal/domain/auth"
	"canteiro/internal/domain/catalog"
	"canteiro/internal/domain/ledger"
	"canteiro/internal/domain/reports"
	"canteiro/internal/domain/stock"
	"canteiro/internal/infrastructure/cache"
	"canteiro/internal/infrastructure/http/v1/handlers"
	"canteiro/internal/infrastructure/metrics"
	"canteiro/internal/infrastructure/storage/memory"
	"canteiro/internal/infrastructure/storage/postgres"
	"canteiro/pkg/config"
	"canteiro/pkg/logger"
)

// App holds the wired services.
type App struct {
	Catalog     *catalog.Service
	Ledger      *ledger.Service
	Allocations *allocation.Service
	Stock       *stock.Projection
	Reports     *reports.Service
	Tokens      *auth.TokenService
	Metrics     *metrics.Metrics

	// Idempotency is nil when disabled.
	Idempotency domain.IdempotencyStore

	// Pool and Redis are nil when not configured.
	Pool  *postgres.Pool
	Redis *redis.Client

	HealthChecks map[string]handlers.Pinger

	closers []func()
}

// storage is the set of repositories a driver provides.
type storage struct {
	txm         tx.Manager
	materials   domain.MaterialRepository
	movements   domain.MovementRepository
	allocations domain.AllocationRepository
	reports     reports.Repository
	idempotency domain.IdempotencyStore
	ping        handlers.Pinger
}

// Build connects the configured stores and wires every service.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Metrics:      metrics.New(),
		HealthChecks: make(map[string]handlers.Pinger),
	}

	st, err := a.openStorage(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if st.ping != nil {
		a.HealthChecks["database"] = st.ping
	}
	if cfg.Idempotency.Enabled {
		a.Idempotency = st.idempotency
	}

	var (
		reportCache reports.Cache
		invalidator domain.ReportInvalidator
	)
	if cfg.Redis.Enabled() {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = a.Redis.Close() })
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rc := cache.NewReportCache(a.Redis, cfg.Cache.ReportTTL)
		reportCache, invalidator = rc, rc
		a.HealthChecks["redis"] = rc
	}

	restock, err := allocation.ParseRestockPolicy(cfg.Allocation.RestockOnReturn)
	if err != nil {
		a.Close()
		return nil, err
	}

	stockCfg := stock.DefaultConfig()
	if cfg.Stock.DefaultCriticalThreshold > 0 {
		stockCfg.DefaultCriticalThreshold = types.NewQuantityFromFloat64(cfg.Stock.DefaultCriticalThreshold)
	}
	if cfg.Jobs.Concurrency > 0 {
		stockCfg.Concurrency = cfg.Jobs.Concurrency
	}

	allocCfg := allocation.DefaultConfig()
	allocCfg.RestockOnReturn = restock
	if cfg.Allocation.ConflictRetries > 0 {
		allocCfg.ConflictRetries = cfg.Allocation.ConflictRetries
	}
	allocCfg.Concurrency = stockCfg.Concurrency

	reportsCfg := reports.DefaultConfig()
	if cfg.Reports.TimelinePageSize > 0 {
		reportsCfg.TimelinePageSize = cfg.Reports.TimelinePageSize
	}

	a.Stock = stock.NewProjection(st.materials, st.movements, st.txm, a.Metrics, stockCfg)
	a.Ledger = ledger.NewService(st.movements, st.allocations, a.Stock, st.txm, invalidator, a.Metrics)
	a.Allocations = allocation.NewService(st.allocations, st.movements, a.Ledger, st.txm, a.Metrics, allocCfg)
	a.Catalog = catalog.NewService(st.materials)
	a.Reports = reports.NewService(st.reports, st.materials, st.movements, st.allocations, reportCache, reportsCfg)
	a.Tokens = auth.NewTokenService(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
	})
	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config) (storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn(ctx, "using in-memory storage; data is lost on exit")
		store := memory.New()
		return storage{
			txm:         store,
			materials:   store.Materials(),
			movements:   store.Movements(),
			allocations: store.Allocations(),
			reports:     store.Reports(),
			idempotency: memory.NewIdempotencyStore(cfg.Idempotency.TTL),
		}, nil

	case config.DriverPostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
		if cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Database.MaxConns
		}
		if cfg.Database.MinConns > 0 {
			poolCfg.MinConns = cfg.Database.MinConns
		}
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return storage{}, fmt.Errorf("connect database: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)

		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return storage{}, err
			}
		}

		txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
		return storage{
			txm:         txm,
			materials:   postgres.NewMaterialRepo(txm),
			movements:   postgres.NewMovementRepo(txm),
			allocations: postgres.NewAllocationRepo(txm),
			reports:     postgres.NewReportRepo(txm),
			idempotency: postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL),
			ping:        txm,
		}, nil
	}
	return storage{}, errors.New("unknown storage driver: " + cfg.Storage.Driver)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
