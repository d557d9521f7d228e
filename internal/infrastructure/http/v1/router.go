// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/offline"
	"depotstock/internal/infrastructure/http/v1/handlers"
	"depotstock/internal/infrastructure/http/v1/middleware"
	"depotstock/internal/infrastructure/metrics"
	"depotstock/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Allocation serves every stock read and write
	Allocation *allocation.Service

	// Replayer and Queue back the offline endpoints; both nil disables them
	Replayer *offline.Replayer
	Queue    offline.Queue

	// Metrics is optional; nil serves 503 on /metrics
	Metrics *metrics.Metrics

	// Checks are pinged by /health/ready
	Checks map[string]handlers.Check

	Version string
	Driver  string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	// ErrorHandler wraps Recovery so a recovered panic still gets a JSON body.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())
	router.Use(cfg.Metrics.Middleware())

	healthHandler := handlers.NewHealthHandler(cfg.Version, cfg.Driver, cfg.Checks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Operator())
	{
		registerStockRoutes(v1, cfg)
		registerOfflineRoutes(v1, cfg)
	}

	return router
}

// registerStockRoutes registers item, order and transfer endpoints.
func registerStockRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Allocation == nil {
		return
	}
	baseHandler := handlers.NewBaseHandler()
	stockHandler := handlers.NewStockHandler(baseHandler, cfg.Allocation)
	orderHandler := handlers.NewOrderHandler(baseHandler, cfg.Allocation)

	depot := rg.Group("/depots/:depot")
	RegisterItemRoutes(depot, stockHandler)
	RegisterOrderRoutes(depot, orderHandler)

	rg.POST("/transfers", orderHandler.Transfer)
	rg.GET("/allocations/:id", orderHandler.GetAllocation)
}

// registerOfflineRoutes registers the offline queue endpoints.
func registerOfflineRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Replayer == nil || cfg.Queue == nil {
		return
	}
	handler := handlers.NewOfflineHandler(handlers.NewBaseHandler(), cfg.Replayer, cfg.Queue)

	group := rg.Group("/offline")
	group.POST("/requests", handler.Enqueue)
	group.POST("/drain", handler.Drain)
	group.GET("/depots/:depot", handler.Status)
}
