package stock

import (
	"context"
)

// Repository is the transactional key-value substrate for StockItems.
// It must provide compare-and-swap on a single aggregate.
type Repository interface {
	// Get returns the stored item, or an apperror NOT_FOUND.
	Get(ctx context.Context, key Key) (StockItem, error)

	// Save writes item only if the stored version still equals item.Version
	// (Version 0 means "must not exist yet"). On success item.Version and
	// item.UpdatedAt are advanced. A lost race yields CONCURRENT_MODIFICATION;
	// transport failures are returned wrapped and are never retried as conflicts.
	Save(ctx context.Context, item *StockItem) error

	// ListByDepot returns every item stocked in a depot.
	ListByDepot(ctx context.Context, depotID string) ([]StockItem, error)
}
