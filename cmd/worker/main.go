// Package main is the entry point for the depotstock offline replay worker.
// It drains every depot's offline queue on a fixed interval.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"depotstock/internal/app"
	"depotstock/internal/core/apperror"
	appctx "depotstock/internal/core/context"
	"depotstock/internal/domain/offline"
	"depotstock/internal/infrastructure/metrics"
	"depotstock/pkg/logger"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Fields:      map[string]any{"service": "depotstock-worker"},
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	if cfg.QueueDriver != app.DriverRedis {
		log.Fatalw("worker needs a shared queue", "queue", cfg.QueueDriver, "want", app.DriverRedis)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log.WithComponent("worker")))
	defer cancel()

	log.Infow("starting depotstock worker",
		"store", cfg.StoreDriver,
		"interval", cfg.WorkerPollInterval,
		"concurrency", cfg.WorkerConcurrency,
	)

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open stores", "error", err)
	}
	defer stores.Close()

	m := metrics.New()
	svc := app.NewAllocationService(cfg, stores, m)
	worker := NewWorker(app.NewReplayer(stores, svc, m), stores.Queue, stores.Guard, cfg, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// claimCleaner is implemented by guards whose claims do not expire on their own.
type claimCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Worker drains offline queues.
type Worker struct {
	replayer    *offline.Replayer
	queue       offline.Queue
	guard       offline.Guard
	interval    time.Duration
	concurrency int
	log         *logger.Logger
}

func NewWorker(replayer *offline.Replayer, queue offline.Queue, guard offline.Guard, cfg *app.Config, log *logger.Logger) *Worker {
	return &Worker{
		replayer:    replayer,
		queue:       queue,
		guard:       guard,
		interval:    cfg.WorkerPollInterval,
		concurrency: cfg.WorkerConcurrency,
		log:         log.WithComponent("worker"),
	}
}

// Run drains on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	w.drainAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainAll(ctx)
		case <-cleanup.C:
			w.cleanupClaims(ctx)
		}
	}
}

// drainAll drains depots in parallel. Each depot is still replayed in order;
// a failing depot does not stop the others.
func (w *Worker) drainAll(ctx context.Context) {
	depots, err := w.queue.Depots(ctx)
	if err != nil {
		w.log.Errorw("list queued depots", "error", err)
		return
	}
	if len(depots) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, depotID := range depots {
		g.Go(func() error {
			report, err := w.replayer.Drain(appctx.WithTrace(gctx, appctx.NewTrace("")), depotID)
			if apperror.HasCode(err, apperror.CodeConflict) {
				w.log.Debugw("depot drained elsewhere", "depot_id", depotID)
				return nil
			}
			if err != nil {
				w.log.Warnw("drain stopped",
					"depot_id", depotID, "applied", report.Applied, "remaining", report.Remaining, "error", err)
				return nil
			}
			if report.Applied+report.Skipped+report.DeadLettered > 0 {
				w.log.Infow("drain finished",
					"depot_id", depotID,
					"applied", report.Applied,
					"skipped", report.Skipped,
					"dead_lettered", report.DeadLettered,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Worker) cleanupClaims(ctx context.Context) {
	cleaner, ok := w.guard.(claimCleaner)
	if !ok {
		return
	}
	n, err := cleaner.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("cleanup expired claims", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("expired claims removed", "count", n)
	}
}
