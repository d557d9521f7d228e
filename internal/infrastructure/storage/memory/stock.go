// Package memory provides process-local stores for tests and single-node runs.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"depotstock/internal/core/apperror"
	"depotstock/internal/domain/stock"
)

// StockRepo keeps StockItems in a map with version-checked saves.
type StockRepo struct {
	mu    sync.RWMutex
	items map[stock.Key]stock.StockItem

	// beforeSave, when set, runs inside Save before the version check.
	// Tests use it to interleave a competing writer.
	beforeSave func(key stock.Key)
}

// NewStockRepo creates an empty repository.
func NewStockRepo() *StockRepo {
	return &StockRepo{items: make(map[stock.Key]stock.StockItem)}
}

// Get implements stock.Repository.
func (r *StockRepo) Get(_ context.Context, key stock.Key) (stock.StockItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key]
	if !ok {
		return stock.StockItem{}, apperror.NewNotFound("stock_item", key.String())
	}
	return item.Clone(), nil
}

// Save implements stock.Repository.
func (r *StockRepo) Save(_ context.Context, item *stock.StockItem) error {
	if hook := r.hook(); hook != nil {
		hook(item.Key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.items[item.Key]
	switch {
	case item.Version == 0 && exists:
		return apperror.NewConcurrentModification("stock_item", item.Key.String())
	case item.Version != 0 && (!exists || current.Version != item.Version):
		return apperror.NewConcurrentModification("stock_item", item.Key.String())
	}

	item.Version++
	item.UpdatedAt = time.Now().UTC()
	r.items[item.Key] = item.Clone()
	return nil
}

// ListByDepot implements stock.Repository.
func (r *StockRepo) ListByDepot(_ context.Context, depotID string) ([]stock.StockItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []stock.StockItem
	for key, item := range r.items {
		if key.DepotID == depotID {
			out = append(out, item.Clone())
		}
	}
	slices.SortFunc(out, func(a, b stock.StockItem) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return out, nil
}

// SetBeforeSave installs a hook run at the start of every Save.
func (r *StockRepo) SetBeforeSave(fn func(key stock.Key)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeSave = fn
}

func (r *StockRepo) hook() func(stock.Key) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.beforeSave
}

// Bump increments the stored version without other changes, as a competing writer would.
func (r *StockRepo) Bump(key stock.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.items[key]; ok {
		item.Version++
		r.items[key] = item
	}
}

var _ stock.Repository = (*StockRepo)(nil)
