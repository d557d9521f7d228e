package allocation

import (
	"context"
	"slices"
	"strings"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
)

// Get returns the current stock of an item.
func (s *Service) Get(ctx context.Context, key stock.Key) (stock.StockItem, error) {
	if err := key.Validate(); err != nil {
		return stock.StockItem{}, err
	}
	item, err := s.stock.Get(ctx, key)
	if err != nil {
		return stock.StockItem{}, storageError(err)
	}
	return item, nil
}

// ListDepot returns every item stocked in a depot.
func (s *Service) ListDepot(ctx context.Context, depotID string) ([]stock.StockItem, error) {
	if depotID == "" {
		return nil, apperror.NewValidation("depot is required").WithDetail("field", "depotId")
	}
	items, err := s.stock.ListByDepot(ctx, depotID)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

// SortedBatches returns the item's batches in the order they would be drawn.
func (s *Service) SortedBatches(item stock.StockItem) []stock.Batch {
	return s.allocator.Sorted(item)
}

// Preview returns the batches a draw of qty would take now, without committing.
func (s *Service) Preview(ctx context.Context, key stock.Key, qty types.Quantity) (fefo.Result, error) {
	item, err := s.Get(ctx, key)
	if err != nil {
		return fefo.Result{}, err
	}
	return s.allocator.Plan(item, qty)
}

// Record returns one allocation record.
func (s *Service) Record(ctx context.Context, recID id.ID) (Record, error) {
	rec, err := s.records.Get(ctx, recID)
	if err != nil {
		return Record{}, storageError(err)
	}
	return rec, nil
}

// RecordsByRef returns every record of a reference, reversed ones included.
func (s *Service) RecordsByRef(ctx context.Context, depotID, refID string) ([]Record, error) {
	if depotID == "" || refID == "" {
		return nil, apperror.NewValidation("depot and reference are required")
	}
	recs, err := s.records.ListByRef(ctx, depotID, refID)
	if err != nil {
		return nil, storageError(err)
	}
	return recs, nil
}

// ExpiringBatches reports dated batches in a depot expiring within `within`
// days of asOf (already expired ones included), soonest first.
func (s *Service) ExpiringBatches(ctx context.Context, depotID string, within int, asOf types.Date) ([]ExpiringBatch, error) {
	if depotID == "" {
		return nil, apperror.NewValidation("depot is required").WithDetail("field", "depotId")
	}
	if within < 0 {
		return nil, apperror.NewValidation("window cannot be negative").WithDetail("field", "days")
	}

	items, err := s.stock.ListByDepot(ctx, depotID)
	if err != nil {
		return nil, storageError(err)
	}

	horizon := asOf.AddDays(within)
	var out []ExpiringBatch
	for _, item := range items {
		for _, b := range s.allocator.Sorted(item) {
			if b.ExpiryDate.IsZero() {
				continue
			}
			if horizon.Before(b.ExpiryDate) {
				// sorted by expiry: the rest of the dated batches are later
				break
			}
			out = append(out, ExpiringBatch{
				Key:      item.Key,
				ItemName: item.ItemName,
				Batch:    b,
				DaysLeft: asOf.DaysUntil(b.ExpiryDate),
				Status:   ClassifyExpiry(b.ExpiryDate, asOf),
			})
		}
	}

	slices.SortFunc(out, func(a, b ExpiringBatch) int {
		if c := a.Batch.ExpiryDate.Compare(b.Batch.ExpiryDate); c != 0 {
			return c
		}
		if c := strings.Compare(a.ItemID, b.ItemID); c != 0 {
			return c
		}
		return strings.Compare(string(a.Batch.ID), string(b.Batch.ID))
	})
	return out, nil
}
