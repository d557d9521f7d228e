// Package offline queues stock requests made while a terminal is disconnected
// and replays them, strictly FIFO per depot, once connectivity returns.
package offline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/domain/allocation"
)

// Kind is the operation to replay.
type Kind string

const (
	KindHold     Kind = "hold"
	KindInvoice  Kind = "invoice"
	KindStockOut Kind = "stock_out"
	KindDispatch Kind = "dispatch"
	KindCancel   Kind = "cancel"
)

// Request is one queued operation.
type Request struct {
	ID         string                 `json:"id" validate:"required"`
	Kind       Kind                   `json:"kind" validate:"required,oneof=hold invoice stock_out dispatch cancel"`
	DepotID    string                 `json:"depotId" validate:"required"`
	RefID      string                 `json:"refId" validate:"required"`
	Lines      []allocation.OrderLine `json:"lines" validate:"required_unless=Kind cancel,dive"`
	OperatorID string                 `json:"operatorId,omitempty"`
	TerminalID string                 `json:"terminalId,omitempty"`
	EnqueuedAt time.Time              `json:"enqueuedAt"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Prepare fills a missing ID and enqueue time, then validates.
func (r *Request) Prepare(now time.Time) error {
	if r.ID == "" {
		r.ID = id.NewString()
	}
	if r.EnqueuedAt.IsZero() {
		r.EnqueuedAt = now.UTC()
	}
	return r.Validate()
}

// Validate checks the request with its struct tags.
func (r Request) Validate() error {
	if err := getValidator().Struct(r); err != nil {
		appErr := apperror.NewValidation("invalid offline request").WithCause(err)
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+":"+fe.Tag())
			}
			appErr.WithDetail("fields", strings.Join(fields, ","))
		}
		return appErr
	}
	return nil
}

// DeadLetter is a request the replay could not apply.
type DeadLetter struct {
	Request Request   `json:"request"`
	Code    string    `json:"code"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// ErrHeadMoved is returned by Queue.Ack and Queue.DeadLetter when the depot
// head is no longer the request the caller replayed.
var ErrHeadMoved = errors.New("offline queue head moved")

// ErrLeaseLost is returned by Lease.Refresh once another drainer took the depot.
var ErrLeaseLost = errors.New("drain lease lost")

// Queue is a per-depot FIFO of requests.
type Queue interface {
	Enqueue(ctx context.Context, req Request) error
	// Peek returns the head without removing it; ok is false when empty.
	Peek(ctx context.Context, depotID string) (req Request, ok bool, err error)
	// Ack drops the head if it is still requestID, else returns ErrHeadMoved.
	Ack(ctx context.Context, depotID, requestID string) error
	// DeadLetter moves the head to the depot's dead-letter list if it is
	// still dl.Request, else returns ErrHeadMoved.
	DeadLetter(ctx context.Context, depotID string, dl DeadLetter) error
	Len(ctx context.Context, depotID string) (int64, error)
	DeadLetters(ctx context.Context, depotID string) ([]DeadLetter, error)
	// Depots lists depots with queued requests.
	Depots(ctx context.Context) ([]string, error)
}

// Locker hands out per-depot drain leases shared by every process that
// replays the same queue.
type Locker interface {
	// Acquire takes the depot lease; ok is false while another drainer holds it.
	Acquire(ctx context.Context, depotID string) (lease Lease, ok bool, err error)
}

// Lease is a held depot drain lease.
type Lease interface {
	// Refresh extends the lease; ErrLeaseLost means it expired and was taken.
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// ClaimResult is the outcome of Guard.Claim.
type ClaimResult int

const (
	// Claimed: first sight of the request, apply it.
	Claimed ClaimResult = iota
	// Resumed: an earlier replay stopped on an infrastructure failure and
	// released the claim; Claim.LinesDone lines are already applied.
	Resumed
	// AlreadyDone: applied before, the ack was lost.
	AlreadyDone
	// Interrupted: a previous replay claimed it and never finished; the outcome is unknown.
	Interrupted
)

func (c ClaimResult) String() string {
	switch c {
	case Claimed:
		return "claimed"
	case Resumed:
		return "resumed"
	case AlreadyDone:
		return "already_done"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Claim is what Guard.Claim knows about a request.
type Claim struct {
	Result ClaimResult
	// LinesDone counts leading request lines applied before the last release.
	LinesDone int
}

// Guard makes replay idempotent per request ID.
type Guard interface {
	Claim(ctx context.Context, requestID string) (Claim, error)
	// Complete marks a claimed request as finished (applied or dead-lettered).
	Complete(ctx context.Context, requestID string) error
	// Release parks a claim after an infrastructure failure, recording how
	// many leading lines were applied. The next Claim returns Resumed.
	Release(ctx context.Context, requestID string, linesDone int) error
}
