package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"depotstock/internal/core/apperror"
	appctx "depotstock/internal/core/context"
	"depotstock/internal/domain/allocation"
	"depotstock/pkg/logger"
)

// StockService is the part of allocation.Service the replay drives.
type StockService interface {
	Hold(ctx context.Context, depotID, refID string, lines []allocation.OrderLine) (allocation.Outcome, error)
	Allocate(ctx context.Context, kind allocation.Kind, depotID, refID string, lines []allocation.OrderLine) (allocation.Outcome, error)
	Cancel(ctx context.Context, depotID, refID string, releaseLines []allocation.OrderLine) (allocation.CancelResult, error)
}

// Metrics receives replay events.
type Metrics interface {
	Replayed(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) Replayed(string) {}

// DrainReport summarises one drain of a depot queue.
type DrainReport struct {
	DepotID      string `json:"depotId"`
	Applied      int    `json:"applied"`
	Skipped      int    `json:"skipped"`
	DeadLettered int    `json:"deadLettered"`
	Remaining    int64  `json:"remaining"`
}

// Replayer applies queued requests against the stock service.
type Replayer struct {
	queue   Queue
	guard   Guard
	locker  Locker
	svc     StockService
	metrics Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReplayer creates a replayer.
func NewReplayer(queue Queue, guard Guard, svc StockService) *Replayer {
	return &Replayer{
		queue:   queue,
		guard:   guard,
		svc:     svc,
		metrics: noopMetrics{},
		locks:   make(map[string]*sync.Mutex),
	}
}

// WithMetrics sets the metrics sink.
func (r *Replayer) WithMetrics(m Metrics) *Replayer {
	if m != nil {
		r.metrics = m
	}
	return r
}

// WithLocker makes Drain take a shared per-depot lease, for queues drained
// by more than one process.
func (r *Replayer) WithLocker(l Locker) *Replayer {
	r.locker = l
	return r
}

// Enqueue validates and queues a request.
func (r *Replayer) Enqueue(ctx context.Context, req Request) (Request, error) {
	if req.OperatorID == "" {
		if op := appctx.GetOperator(ctx); op != nil {
			req.OperatorID = op.OperatorID
			req.TerminalID = op.TerminalID
		}
	}
	if err := req.Prepare(time.Now()); err != nil {
		return Request{}, err
	}
	if err := r.queue.Enqueue(ctx, req); err != nil {
		return Request{}, apperror.NewStorageUnavailable(err)
	}
	logger.Info(ctx, "offline request queued", "request_id", req.ID, "kind", req.Kind, "depot_id", req.DepotID)
	return req, nil
}

func (r *Replayer) depotLock(depotID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[depotID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[depotID] = l
	}
	return l
}

// Drain replays a depot's queue head-first until it is empty or an
// infrastructure failure occurs. Business failures are dead-lettered and
// the drain moves on; an infrastructure failure leaves the head queued and
// is returned. A depot already being drained elsewhere yields CONFLICT.
func (r *Replayer) Drain(ctx context.Context, depotID string) (report DrainReport, err error) {
	lock := r.depotLock(depotID)
	lock.Lock()
	defer lock.Unlock()

	report = DrainReport{DepotID: depotID}
	defer func() {
		if n, err := r.queue.Len(ctx, depotID); err == nil {
			report.Remaining = n
		}
	}()

	var lease Lease
	if r.locker != nil {
		l, ok, err := r.locker.Acquire(ctx, depotID)
		if err != nil {
			return report, apperror.NewStorageUnavailable(fmt.Errorf("acquire drain lease: %w", err))
		}
		if !ok {
			return report, apperror.NewConflict("offline queue is being drained by another replayer").
				WithDetail("depot_id", depotID)
		}
		lease = l
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, "release drain lease", "depot_id", depotID, "error", err)
			}
		}()
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if lease != nil {
			if err := lease.Refresh(ctx); err != nil {
				return report, apperror.NewStorageUnavailable(fmt.Errorf("renew drain lease: %w", err))
			}
		}

		req, ok, err := r.queue.Peek(ctx, depotID)
		if err != nil {
			return report, apperror.NewStorageUnavailable(fmt.Errorf("peek queue: %w", err))
		}
		if !ok {
			return report, nil
		}

		claim, err := r.guard.Claim(ctx, req.ID)
		if err != nil {
			return report, apperror.NewStorageUnavailable(fmt.Errorf("claim request: %w", err))
		}

		switch claim.Result {
		case AlreadyDone:
			if err := r.ack(ctx, req); err != nil {
				return report, err
			}
			report.Skipped++
			r.metrics.Replayed("skipped")
			continue
		case Interrupted:
			if err := r.deadLetter(ctx, req, "INTERRUPTED", "a previous replay stopped mid-request; review manually"); err != nil {
				return report, err
			}
			report.DeadLettered++
			continue
		case Resumed:
			logger.Info(ctx, "resuming offline request", "request_id", req.ID, "lines_done", claim.LinesDone)
		}

		done, applyErr := r.apply(ctx, req, claim.LinesDone)
		switch {
		case applyErr == nil:
			if err := r.guard.Complete(ctx, req.ID); err != nil {
				logger.Error(ctx, "complete claim", "request_id", req.ID, "error", err)
			}
			if err := r.ack(ctx, req); err != nil {
				return report, err
			}
			report.Applied++
			r.metrics.Replayed("applied")

		case apperror.IsBusiness(applyErr):
			code := apperror.CodeBusinessRule
			if appErr, ok := apperror.AsAppError(applyErr); ok {
				code = appErr.Code
			}
			if err := r.deadLetter(ctx, req, code, applyErr.Error()); err != nil {
				return report, err
			}
			report.DeadLettered++

		default:
			if err := r.guard.Release(ctx, req.ID, done); err != nil {
				logger.Error(ctx, "release claim", "request_id", req.ID, "error", err)
			}
			r.metrics.Replayed("stopped")
			logger.Warn(ctx, "offline replay stopped",
				"depot_id", depotID, "request_id", req.ID, "lines_done", done, "error", applyErr)
			return report, applyErr
		}
	}
}

func (r *Replayer) ack(ctx context.Context, req Request) error {
	if err := r.queue.Ack(ctx, req.DepotID, req.ID); err != nil {
		return queueError("ack request", req, err)
	}
	return nil
}

func (r *Replayer) deadLetter(ctx context.Context, req Request, code, reason string) error {
	dl := DeadLetter{Request: req, Code: code, Reason: reason, At: time.Now().UTC()}
	if err := r.queue.DeadLetter(ctx, req.DepotID, dl); err != nil {
		return queueError("dead-letter request", req, err)
	}
	if err := r.guard.Complete(ctx, req.ID); err != nil {
		logger.Error(ctx, "complete claim", "request_id", req.ID, "error", err)
	}
	r.metrics.Replayed("dead_lettered")
	logger.Warn(ctx, "offline request dead-lettered", "request_id", req.ID, "kind", req.Kind, "code", code)
	return nil
}

func queueError(op string, req Request, err error) error {
	if errors.Is(err, ErrHeadMoved) {
		return apperror.NewConflict("offline queue head was taken by another replayer").
			WithDetail("depot_id", req.DepotID).
			WithDetail("request_id", req.ID).
			WithCause(err)
	}
	return apperror.NewStorageUnavailable(fmt.Errorf("%s: %w", op, err))
}

// apply runs the request from line skip onwards and returns how many leading
// lines are applied once it stops. Lines are committed in order, so a count
// is enough to resume a request released after an infrastructure failure.
func (r *Replayer) apply(ctx context.Context, req Request, skip int) (int, error) {
	if err := req.Validate(); err != nil {
		return skip, err
	}
	ctx = appctx.WithRequestID(ctx, req.ID)
	if req.OperatorID != "" {
		ctx = appctx.WithOperator(ctx, &appctx.Operator{OperatorID: req.OperatorID, TerminalID: req.TerminalID})
	}
	skip = min(max(skip, 0), len(req.Lines))
	pending := req.Lines[skip:]

	switch req.Kind {
	case KindHold:
		if len(pending) == 0 {
			return skip, nil
		}
		out, err := r.svc.Hold(ctx, req.DepotID, req.RefID, pending)
		return skip + len(out.Held), err
	case KindCancel:
		res, err := r.svc.Cancel(ctx, req.DepotID, req.RefID, pending)
		return skip + len(res.Released), err
	case KindInvoice, KindStockOut, KindDispatch:
		if len(pending) == 0 {
			return skip, nil
		}
		out, err := r.svc.Allocate(ctx, allocation.Kind(req.Kind), req.DepotID, req.RefID, pending)
		return skip + len(out.Records), err
	default:
		return skip, apperror.NewValidation("unknown offline request kind").WithDetail("kind", string(req.Kind))
	}
}
