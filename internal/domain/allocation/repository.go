package allocation

import (
	"context"
	"time"

	"depotstock/internal/core/id"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
)

// RecordRepository persists allocation records.
type RecordRepository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, recID id.ID) (Record, error)
	// ListByRef returns a reference's records in creation order.
	ListByRef(ctx context.Context, depotID, refID string) ([]Record, error)
	// MarkReversed flips a committed record to reversed; CONFLICT if it already was.
	MarkReversed(ctx context.Context, recID id.ID, at time.Time) error
}

// Allocator is the batch allocation engine used by Service.
type Allocator interface {
	Allocate(item stock.StockItem, qty types.Quantity) (fefo.Result, stock.StockItem, error)
	Reverse(res fefo.Result, item stock.StockItem) stock.StockItem
	Plan(item stock.StockItem, qty types.Quantity) (fefo.Result, error)
	Sorted(item stock.StockItem) []stock.Batch
}

// Numerator hands out document numbers per prefix.
type Numerator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// DefectReporter stores allocator invariant violations for postmortem.
type DefectReporter interface {
	Report(ctx context.Context, d Defect) error
}

// Metrics receives allocation events.
type Metrics interface {
	AllocationCommitted(kind string, qty types.Quantity)
	AllocationFailed(kind, code string)
	ConflictRetried(kind string)
}

type noopMetrics struct{}

func (noopMetrics) AllocationCommitted(string, types.Quantity) {}
func (noopMetrics) AllocationFailed(string, string)            {}
func (noopMetrics) ConflictRetried(string)                     {}

var _ Allocator = (*fefo.Allocator)(nil)
