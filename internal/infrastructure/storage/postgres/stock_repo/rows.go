package stock_repo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"depotstock/internal/core/types"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
	"depotstock/internal/infrastructure/storage/postgres"
)

const (
	stockItemsTable   = "stock_items"
	stockBatchesTable = "stock_batches"
	allocationsTable  = "stock_allocations"
)

type itemRow struct {
	DepotID           string    `db:"depot_id"`
	ItemID            string    `db:"item_id"`
	ItemName          string    `db:"item_name"`
	TotalQuantity     int64     `db:"total_quantity"`
	AllocatedQuantity int64     `db:"allocated_quantity"`
	DamagedQuantity   int64     `db:"damaged_quantity"`
	Version           int64     `db:"version"`
	UpdatedAt         time.Time `db:"updated_at"`
}

type batchRow struct {
	DepotID    string          `db:"depot_id"`
	ItemID     string          `db:"item_id"`
	BatchID    string          `db:"batch_id"`
	Quantity   int64           `db:"quantity"`
	ExpiryDate *time.Time      `db:"expiry_date"`
	LocationID string          `db:"location_id"`
	UnitCost   decimal.Decimal `db:"unit_cost"`
	ReceivedAt time.Time       `db:"received_at"`
}

type recordRow struct {
	ID           uuid.UUID       `db:"id"`
	Number       string          `db:"number"`
	Kind         string          `db:"kind"`
	RefID        string          `db:"ref_id"`
	DepotID      string          `db:"depot_id"`
	ItemID       string          `db:"item_id"`
	Lines        []byte          `db:"lines"`
	Quantity     int64           `db:"quantity"`
	Cost         decimal.Decimal `db:"cost"`
	HoldReleased int64           `db:"hold_released"`
	Status       string          `db:"status"`
	CreatedAt    time.Time       `db:"created_at"`
	ReversedAt   *time.Time      `db:"reversed_at"`
}

var (
	itemColumns   = postgres.ExtractDBColumns[itemRow]()
	batchColumns  = postgres.ExtractDBColumns[batchRow]()
	recordColumns = postgres.ExtractDBColumns[recordRow]()
)

func toItemRow(item stock.StockItem) itemRow {
	return itemRow{
		DepotID:           item.DepotID,
		ItemID:            item.ItemID,
		ItemName:          item.ItemName,
		TotalQuantity:     item.TotalQuantity.Int64(),
		AllocatedQuantity: item.AllocatedQuantity.Int64(),
		DamagedQuantity:   item.DamagedQuantity.Int64(),
		Version:           item.Version,
		UpdatedAt:         item.UpdatedAt,
	}
}

func toBatchRow(key stock.Key, b stock.Batch) batchRow {
	row := batchRow{
		DepotID:    key.DepotID,
		ItemID:     key.ItemID,
		BatchID:    string(b.ID),
		Quantity:   b.Quantity.Int64(),
		LocationID: b.LocationID,
		UnitCost:   b.UnitCost,
		ReceivedAt: b.ReceivedAt,
	}
	if !b.ExpiryDate.IsZero() {
		t := b.ExpiryDate.Time()
		row.ExpiryDate = &t
	}
	return row
}

func (r itemRow) toDomain(batches []batchRow) stock.StockItem {
	item := stock.StockItem{
		Key:               stock.Key{DepotID: r.DepotID, ItemID: r.ItemID},
		ItemName:          r.ItemName,
		TotalQuantity:     types.Quantity(r.TotalQuantity),
		AllocatedQuantity: types.Quantity(r.AllocatedQuantity),
		DamagedQuantity:   types.Quantity(r.DamagedQuantity),
		Batches:           make(map[stock.BatchID]stock.Batch, len(batches)),
		Version:           r.Version,
		UpdatedAt:         r.UpdatedAt,
	}
	for _, b := range batches {
		batch := stock.Batch{
			ID:         stock.BatchID(b.BatchID),
			Quantity:   types.Quantity(b.Quantity),
			LocationID: b.LocationID,
			UnitCost:   b.UnitCost,
			ReceivedAt: b.ReceivedAt,
		}
		if b.ExpiryDate != nil {
			batch.ExpiryDate = types.DateOf(*b.ExpiryDate)
		}
		item.Batches[batch.ID] = batch
	}
	return item
}

func toRecordRow(rec allocation.Record) (recordRow, error) {
	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return recordRow{}, fmt.Errorf("encode allocation lines: %w", err)
	}
	return recordRow{
		ID:           rec.ID,
		Number:       rec.Number,
		Kind:         string(rec.Kind),
		RefID:        rec.RefID,
		DepotID:      rec.DepotID,
		ItemID:       rec.ItemID,
		Lines:        lines,
		Quantity:     rec.Quantity.Int64(),
		Cost:         rec.Cost,
		HoldReleased: rec.HoldReleased.Int64(),
		Status:       string(rec.Status),
		CreatedAt:    rec.CreatedAt,
		ReversedAt:   rec.ReversedAt,
	}, nil
}

func (r recordRow) toDomain() (allocation.Record, error) {
	var lines []fefo.Line
	if err := json.Unmarshal(r.Lines, &lines); err != nil {
		return allocation.Record{}, fmt.Errorf("decode allocation lines: %w", err)
	}
	return allocation.Record{
		ID:           r.ID,
		Number:       r.Number,
		Kind:         allocation.Kind(r.Kind),
		RefID:        r.RefID,
		Key:          stock.Key{DepotID: r.DepotID, ItemID: r.ItemID},
		Lines:        lines,
		Quantity:     types.Quantity(r.Quantity),
		Cost:         r.Cost,
		HoldReleased: types.Quantity(r.HoldReleased),
		Status:       allocation.Status(r.Status),
		CreatedAt:    r.CreatedAt,
		ReversedAt:   r.ReversedAt,
	}, nil
}
