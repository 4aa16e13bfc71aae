// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"canteiro/internal/domain"
	"canteiro/internal/domain/allocation"
	"canteiro/internal/domain/catalog"
	"canteiro/internal/domain/ledger"
	"canteiro/internal/domain/reports"
	"canteiro/internal/domain/stock"
	"canteiro/internal/infrastructure/http/v1/handlers"
	"canteiro/internal/infrastructure/http/v1/middleware"
	"canteiro/internal/infrastructure/metrics"
	"canteiro/pkg/logger"
)

// RouterConfig holds everything the router wires into handlers.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Metrics records request counters and serves /metrics. May be nil.
	Metrics *metrics.Metrics

	// Tokens verifies bearer tokens. With AuthRequired unset, anonymous
	// requests are accepted and movements need an explicit responsible.
	Tokens       middleware.TokenVerifier
	AuthRequired bool

	// Idempotency backs X-Idempotency-Key. Nil disables it.
	Idempotency domain.IdempotencyStore

	Catalog     *catalog.Service
	Ledger      *ledger.Service
	Allocations *allocation.Service
	Stock       *stock.Projection
	Reports     *reports.Service

	// ReportsMaxLimit caps timeline pages.
	ReportsMaxLimit int

	// HealthChecks are pinged by /health/ready.
	HealthChecks map[string]handlers.Pinger
}

// NewRouter creates and configures the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Recovery runs inside ErrorHandler so a recovered panic is still rendered.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(cfg.Metrics.Middleware())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	health := handlers.NewHealthHandler(cfg.HealthChecks)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Tokens, cfg.AuthRequired))
	api.Use(middleware.Idempotency(cfg.Idempotency))

	base := handlers.NewBaseHandler()
	handlers.NewMaterialsHandler(base, cfg.Catalog, cfg.Stock).RegisterRoutes(api)
	handlers.NewMovementsHandler(base, cfg.Ledger, cfg.Allocations).RegisterRoutes(api)
	handlers.NewAllocationsHandler(base, cfg.Allocations).RegisterRoutes(api)
	handlers.NewReportsHandler(base, cfg.Reports, cfg.ReportsMaxLimit).RegisterRoutes(api)

	return router
}
