package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/tx"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/stock"
	"depotstock/pkg/logger"
)

var tracer = otel.Tracer("depotstock/allocation")

// Service provides the stock-mutating operations.
// Each per-item mutation is an optimistic read-compute-write cycle against
// stock.Repository, re-run on conflict.
type Service struct {
	stock     stock.Repository
	records   RecordRepository
	allocator Allocator
	numerator Numerator
	txManager tx.Manager
	defects   DefectReporter
	metrics   Metrics
	cfg       Config
}

// NewService creates the allocation service.
// txManager may be nil when the store has no multi-statement transactions
// (memory, redis); the stock write and the record write then commit separately.
func NewService(
	stockRepo stock.Repository,
	records RecordRepository,
	allocator Allocator,
	numerator Numerator,
	txManager tx.Manager,
	cfg Config,
) *Service {
	if txManager == nil {
		txManager = tx.Noop{}
	}
	return &Service{
		stock:     stockRepo,
		records:   records,
		allocator: allocator,
		numerator: numerator,
		txManager: txManager,
		metrics:   noopMetrics{},
		cfg:       cfg.withDefaults(),
	}
}

// WithDefectReporter sets where allocator invariant violations are stored.
func (s *Service) WithDefectReporter(r DefectReporter) *Service {
	s.defects = r
	return s
}

// WithMetrics sets the metrics sink.
func (s *Service) WithMetrics(m Metrics) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Mode returns the configured multi-item mode.
func (s *Service) Mode() Mode {
	return s.cfg.Mode
}

func (s *Service) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBase
	b.MaxInterval = s.cfg.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries)), ctx)
}

// mutate runs fn against a fresh copy of the item and commits it with
// compare-and-swap. On CONCURRENT_MODIFICATION the whole cycle is re-run
// with backoff; when retries run out the conflict escalates to
// STORAGE_UNAVAILABLE. Other errors end the loop unchanged.
//
// With create set, a missing item starts empty instead of failing NOT_FOUND.
func (s *Service) mutate(
	ctx context.Context,
	op string,
	key stock.Key,
	create bool,
	fn func(item *stock.StockItem) error,
) (stock.StockItem, error) {
	if err := key.Validate(); err != nil {
		return stock.StockItem{}, err
	}

	var (
		saved   stock.StockItem
		attempt int
	)
	err := backoff.Retry(func() error {
		attempt++
		item, err := s.cycle(ctx, op, key, create, attempt, fn)
		if err == nil {
			saved = item
			return nil
		}
		if apperror.IsConcurrentModification(err) {
			s.metrics.ConflictRetried(op)
			logger.Debug(ctx, "stock conflict, retrying", "key", key.String(), "attempt", attempt)
			return err
		}
		return backoff.Permanent(err)
	}, s.newBackOff(ctx))

	if err != nil {
		if apperror.IsConcurrentModification(err) {
			logger.Warn(ctx, "stock conflict retries exhausted", "key", key.String(), "attempts", attempt)
			return stock.StockItem{}, apperror.NewStorageUnavailable(err).
				WithDetail("item_id", key.ItemID).
				WithDetail("attempts", attempt)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return stock.StockItem{}, apperror.NewStorageUnavailable(err).WithDetail("item_id", key.ItemID)
		}
		return stock.StockItem{}, err
	}
	return saved, nil
}

// cycle is one read-compute-write attempt.
func (s *Service) cycle(
	ctx context.Context,
	op string,
	key stock.Key,
	create bool,
	attempt int,
	fn func(item *stock.StockItem) error,
) (stock.StockItem, error) {
	ctx, span := tracer.Start(ctx, "allocation."+op,
		trace.WithAttributes(
			attribute.String("depot_id", key.DepotID),
			attribute.String("item_id", key.ItemID),
			attribute.Int("attempt", attempt),
		),
	)
	defer span.End()

	fail := func(err error) (stock.StockItem, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stock.StockItem{}, err
	}

	current, err := s.stock.Get(ctx, key)
	switch {
	case err == nil:
	case create && apperror.IsNotFound(err):
		current = stock.NewStockItem(key, "")
	default:
		return fail(storageError(err))
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return fail(err)
	}
	if err := next.Validate(); err != nil {
		return fail(err)
	}
	if err := s.stock.Save(ctx, &next); err != nil {
		return fail(storageError(err))
	}
	return next, nil
}

// storageError classifies a repository error: domain errors pass through,
// anything else is a communication failure with the store.
func storageError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperror.NewStorageUnavailable(err)
}

func (s *Service) reportDefect(ctx context.Context, key stock.Key, qty types.Quantity, snapshot stock.StockItem, cause error) {
	logger.Error(ctx, "allocation invariant violated",
		"key", key.String(),
		"requested", qty.Int64(),
		"total_quantity", snapshot.TotalQuantity.Int64(),
		"batches", snapshot.Batches,
		"error", cause,
	)
	if s.defects == nil {
		return
	}
	d := Defect{Key: key, Requested: qty, Snapshot: snapshot, Err: cause, At: time.Now().UTC()}
	if err := s.defects.Report(ctx, d); err != nil {
		logger.Error(ctx, "store defect report", "key", key.String(), "error", err)
	}
}
