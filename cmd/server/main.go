// Package main is the entry point for the depotstock API server.
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

	"depotstock/internal/app"
	v1 "depotstock/internal/infrastructure/http/v1"
	"depotstock/internal/infrastructure/metrics"
	"depotstock/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Fields:      map[string]any{"service": "depotstock-api", "version": version},
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting depotstock server", "version", version, "store", cfg.StoreDriver, "queue", cfg.QueueDriver)

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open stores", "error", err)
	}
	defer stores.Close()

	m := metrics.New()
	svc := app.NewAllocationService(cfg, stores, m)
	replayer := app.NewReplayer(stores, svc, m)

	log.Infow("allocation service ready",
		"mode", svc.Mode(),
		"undated", cfg.FEFOUndatedPolicy,
		"max_retries", cfg.AllocMaxRetries,
	)

	router := v1.NewRouter(v1.RouterConfig{
		Logger:     log,
		Allocation: svc,
		Replayer:   replayer,
		Queue:      stores.Queue,
		Metrics:    m,
		Checks:     stores.Checks,
		Version:    version,
		Driver:     cfg.StoreDriver,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.AppAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
