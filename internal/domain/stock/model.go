// Package stock provides the per-depot stock aggregate: an item's expiry-dated
// batches plus its held and damaged quantities.
package stock

import (
	"fmt"
	"maps"
	"time"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/core/types"
)

// Key identifies one StockItem: an item stocked in one depot.
type Key struct {
	DepotID string `json:"depotId"`
	ItemID  string `json:"itemId"`
}

// Validate checks that both dimensions are present.
func (k Key) Validate() error {
	if k.DepotID == "" {
		return apperror.NewValidation("depot is required").WithDetail("field", "depotId")
	}
	if k.ItemID == "" {
		return apperror.NewValidation("item is required").WithDetail("field", "itemId")
	}
	return nil
}

func (k Key) String() string {
	return k.DepotID + "/" + k.ItemID
}

// BatchID identifies a batch within its StockItem.
type BatchID string

// NewBatchID generates a time-ordered batch identifier.
func NewBatchID() BatchID {
	return BatchID(id.NewString())
}

// Batch is a quantity of one item received together, sharing expiry date and location.
// A stored batch always has a positive quantity; exhausted batches are deleted.
type Batch struct {
	ID         BatchID        `json:"id"`
	Quantity   types.Quantity `json:"quantity"`
	ExpiryDate types.Date     `json:"expiryDate"`
	LocationID string         `json:"locationId,omitempty"`
	UnitCost   types.Money    `json:"unitCost"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// IsExpired reports whether the batch expired before asOf. Undated batches never expire.
func (b Batch) IsExpired(asOf types.Date) bool {
	return !b.ExpiryDate.IsZero() && b.ExpiryDate.Before(asOf)
}

// StockItem is the aggregate mutated by allocations, keyed by depot + item.
//
// Invariant: TotalQuantity == sum of batch quantities.
// AllocatedQuantity is a soft hold for orders not yet dispatched.
// DamagedQuantity is tracked apart from the batches and never allocated.
type StockItem struct {
	Key

	ItemName string `json:"itemName,omitempty"`

	TotalQuantity     types.Quantity `json:"totalQuantity"`
	AllocatedQuantity types.Quantity `json:"allocatedQuantity"`
	DamagedQuantity   types.Quantity `json:"damagedQuantity"`

	Batches map[BatchID]Batch `json:"batches"`

	// Version for optimistic locking (incremented by the repository on each save).
	// Zero means the item has never been stored.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewStockItem creates an empty, never-stored item.
func NewStockItem(key Key, itemName string) StockItem {
	return StockItem{
		Key:      key,
		ItemName: itemName,
		Batches:  make(map[BatchID]Batch),
	}
}

// Clone returns a deep copy; mutating the clone's batches leaves s untouched.
func (s StockItem) Clone() StockItem {
	c := s
	c.Batches = make(map[BatchID]Batch, len(s.Batches))
	maps.Copy(c.Batches, s.Batches)
	return c
}

// DisplayName returns the item name, falling back to its identifier.
func (s StockItem) DisplayName() string {
	if s.ItemName != "" {
		return s.ItemName
	}
	return s.ItemID
}

// SumBatches returns the quantity physically held in batches.
func (s StockItem) SumBatches() types.Quantity {
	var total types.Quantity
	for _, b := range s.Batches {
		total += b.Quantity
	}
	return total
}

// Available returns stock not covered by holds: TotalQuantity minus
// AllocatedQuantity. Damaged units sit outside TotalQuantity already.
func (s StockItem) Available() types.Quantity {
	return s.TotalQuantity - s.AllocatedQuantity
}

// Validate implements the aggregate invariants.
func (s StockItem) Validate() error {
	if err := s.Key.Validate(); err != nil {
		return err
	}
	if s.AllocatedQuantity < 0 {
		return apperror.NewValidation("allocated quantity cannot be negative").
			WithDetail("item_id", s.ItemID)
	}
	if s.DamagedQuantity < 0 {
		return apperror.NewValidation("damaged quantity cannot be negative").
			WithDetail("item_id", s.ItemID)
	}
	for batchID, b := range s.Batches {
		if b.ID != batchID {
			return apperror.NewValidation("batch key does not match batch id").
				WithDetail("batch_id", string(batchID))
		}
		if !b.Quantity.IsPositive() {
			return apperror.NewValidation("stored batch must have a positive quantity").
				WithDetail("batch_id", string(batchID))
		}
	}
	if sum := s.SumBatches(); sum != s.TotalQuantity {
		return apperror.NewValidation(fmt.Sprintf("total quantity %d does not match batches %d", s.TotalQuantity, sum)).
			WithDetail("item_id", s.ItemID)
	}
	return nil
}

// AddBatch records a goods-receipt line. An empty ID is generated.
func (s *StockItem) AddBatch(b Batch) (Batch, error) {
	if !b.Quantity.IsPositive() {
		return Batch{}, apperror.NewValidation("received quantity must be positive").
			WithDetail("field", "quantity")
	}
	if b.ID == "" {
		b.ID = NewBatchID()
	}
	if s.Batches == nil {
		s.Batches = make(map[BatchID]Batch)
	}
	if _, exists := s.Batches[b.ID]; exists {
		return Batch{}, apperror.NewConflict("batch already exists").
			WithDetail("batch_id", string(b.ID))
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = time.Now().UTC()
	}
	s.Batches[b.ID] = b
	s.TotalQuantity += b.Quantity
	return b, nil
}

// Hold reserves qty for an order not yet dispatched.
func (s *StockItem) Hold(qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("hold quantity must be positive").WithDetail("field", "quantity")
	}
	if avail := s.Available(); avail < qty {
		return apperror.NewInsufficientStock(s.ItemID, s.ItemName, qty.Int64(), avail.Int64())
	}
	s.AllocatedQuantity += qty
	return nil
}

// ReleaseHold drops up to qty of the hold and returns how much was released.
func (s *StockItem) ReleaseHold(qty types.Quantity) types.Quantity {
	released := s.AllocatedQuantity.Min(qty)
	if released < 0 {
		released = 0
	}
	s.AllocatedQuantity -= released
	return released
}

// MarkDamaged records damaged units (returns, breakage) outside the batches.
func (s *StockItem) MarkDamaged(qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("damaged quantity must be positive").WithDetail("field", "quantity")
	}
	s.DamagedQuantity += qty
	return nil
}

// WriteOffDamaged disposes of damaged units.
func (s *StockItem) WriteOffDamaged(qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("write-off quantity must be positive").WithDetail("field", "quantity")
	}
	if qty > s.DamagedQuantity {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "write-off exceeds damaged quantity").
			WithDetail("item_id", s.ItemID).
			WithDetail("damaged", s.DamagedQuantity.Int64()).
			WithDetail("requested", qty.Int64())
	}
	s.DamagedQuantity -= qty
	return nil
}
