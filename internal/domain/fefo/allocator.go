// Package fefo implements first-expire-first-out batch allocation.
//
// The allocator is a pure function of (item, quantity): it never mutates its
// input and returns the post-allocation item for the caller to commit
// transactionally. Re-running it against fresher state is therefore safe.
package fefo

import (
	"fmt"
	"slices"
	"strings"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/stock"
)

// UndatedPolicy places batches without an expiry date relative to dated ones.
type UndatedPolicy string

const (
	UndatedLast  UndatedPolicy = "last"
	UndatedFirst UndatedPolicy = "first"
)

// ParseUndatedPolicy maps a config value to a policy. Empty means UndatedLast.
func ParseUndatedPolicy(s string) (UndatedPolicy, error) {
	switch UndatedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UndatedLast:
		return UndatedLast, nil
	case UndatedFirst:
		return UndatedFirst, nil
	default:
		return "", fmt.Errorf("unknown undated batch policy %q", s)
	}
}

// Allocator draws stock from batches in expiry order.
type Allocator struct {
	Undated UndatedPolicy
}

// New creates an allocator with the given undated policy.
func New(policy UndatedPolicy) *Allocator {
	if policy == "" {
		policy = UndatedLast
	}
	return &Allocator{Undated: policy}
}

// Sorted returns the item's batches in draw order: expiry ascending, undated
// per policy, ties broken by batch id.
func (a *Allocator) Sorted(item stock.StockItem) []stock.Batch {
	batches := make([]stock.Batch, 0, len(item.Batches))
	for _, b := range item.Batches {
		batches = append(batches, b)
	}
	slices.SortFunc(batches, a.compare)
	return batches
}

func (a *Allocator) compare(x, y stock.Batch) int {
	xu, yu := x.ExpiryDate.IsZero(), y.ExpiryDate.IsZero()
	switch {
	case xu && !yu:
		return a.undatedSign()
	case !xu && yu:
		return -a.undatedSign()
	case !xu && !yu:
		if c := x.ExpiryDate.Compare(y.ExpiryDate); c != 0 {
			return c
		}
	}
	return strings.Compare(string(x.ID), string(y.ID))
}

func (a *Allocator) undatedSign() int {
	if a.Undated == UndatedFirst {
		return -1
	}
	return 1
}

// Plan computes the draws for qty without applying them.
func (a *Allocator) Plan(item stock.StockItem, qty types.Quantity) (Result, error) {
	res, _, err := a.Allocate(item, qty)
	return res, err
}

// Allocate draws qty from item's batches.
//
// Fails with INSUFFICIENT_STOCK when the batches hold less than qty, leaving
// item untouched. If the walk runs out of batches after the sufficiency check
// passed, ALLOCATION_INCONSISTENCY is returned.
func (a *Allocator) Allocate(item stock.StockItem, qty types.Quantity) (Result, stock.StockItem, error) {
	if !qty.IsPositive() {
		return Result{}, item, apperror.NewValidation("requested quantity must be positive").
			WithDetail("item_id", item.ItemID).
			WithDetail("requested", qty.Int64())
	}

	if available := item.SumBatches(); available < qty {
		return Result{}, item, apperror.NewInsufficientStock(item.ItemID, item.ItemName, qty.Int64(), available.Int64())
	}

	res := Result{Key: item.Key, Requested: qty}
	next := item.Clone()
	remaining := qty

	for _, b := range a.Sorted(item) {
		if remaining == 0 {
			break
		}
		take := remaining.Min(b.Quantity)
		if !take.IsPositive() {
			continue
		}
		res.Lines = append(res.Lines, Line{
			BatchID:    b.ID,
			Quantity:   take,
			ExpiryDate: b.ExpiryDate,
			LocationID: b.LocationID,
			UnitCost:   b.UnitCost,
		})
		remaining -= take

		b.Quantity -= take
		if b.Quantity == 0 {
			delete(next.Batches, b.ID)
		} else {
			next.Batches[b.ID] = b
		}
	}

	if remaining > 0 {
		return Result{}, item, apperror.NewAllocationInconsistency(item.ItemID, qty.Int64(), remaining.Int64())
	}

	next.TotalQuantity -= qty
	return res, next, nil
}

// Reverse puts the drawn stock back: existing batches grow, exhausted ones are
// re-created from the recorded line. The batch topology after concurrent
// allocations may differ from the pre-allocation one; the total does not.
func (a *Allocator) Reverse(res Result, item stock.StockItem) stock.StockItem {
	return Reverse(res, item)
}

// Reverse is the policy-independent form of Allocator.Reverse.
func Reverse(res Result, item stock.StockItem) stock.StockItem {
	next := item.Clone()
	for _, l := range res.Lines {
		if !l.Quantity.IsPositive() {
			continue
		}
		if b, ok := next.Batches[l.BatchID]; ok {
			b.Quantity += l.Quantity
			next.Batches[l.BatchID] = b
		} else {
			next.Batches[l.BatchID] = stock.Batch{
				ID:         l.BatchID,
				Quantity:   l.Quantity,
				ExpiryDate: l.ExpiryDate,
				LocationID: l.LocationID,
				UnitCost:   l.UnitCost,
			}
		}
		next.TotalQuantity += l.Quantity
	}
	return next
}
