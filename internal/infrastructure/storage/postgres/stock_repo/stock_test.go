package stock_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depotstock/internal/core/id"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
)

var key = stock.Key{DepotID: "D1", ItemID: "X"}

func TestStockRepo_GetItemQuery(t *testing.T) {
	sql, args, err := NewStockRepo(nil).getItemQuery(key).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT depot_id, item_id, item_name, total_quantity, allocated_quantity, damaged_quantity, version, updated_at "+
			"FROM stock_items WHERE depot_id = $1 AND item_id = $2",
		sql)
	assert.Equal(t, []any{"D1", "X"}, args)
}

func TestStockRepo_UpdateChecksVersion(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	row := itemRow{DepotID: "D1", ItemID: "X", ItemName: "Milk", TotalQuantity: 10, AllocatedQuantity: 2, Version: 4, UpdatedAt: now}

	sql, args, err := NewStockRepo(nil).updateItemQuery(row, 3).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"UPDATE stock_items SET item_name = $1, total_quantity = $2, allocated_quantity = $3, damaged_quantity = $4, "+
			"version = $5, updated_at = $6 WHERE depot_id = $7 AND item_id = $8 AND version = $9",
		sql)
	assert.Equal(t, []any{"Milk", int64(10), int64(2), int64(0), int64(4), now, "D1", "X", int64(3)}, args)
}

func TestStockRepo_InsertSkipsExisting(t *testing.T) {
	sql, args, err := NewStockRepo(nil).insertItemQuery(itemRow{DepotID: "D1", ItemID: "X", Version: 1}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO stock_items")
	assert.Contains(t, sql, "ON CONFLICT (depot_id, item_id) DO NOTHING")
	assert.Len(t, args, len(itemColumns))
}

func TestItemRow_RoundTrip(t *testing.T) {
	item := stock.NewStockItem(key, "Milk")
	dated, err := item.AddBatch(stock.Batch{Quantity: 5, ExpiryDate: types.MustDate("2025-01-15"), LocationID: "A1", UnitCost: types.MustMoney("1.50")})
	require.NoError(t, err)
	undated, err := item.AddBatch(stock.Batch{Quantity: 3})
	require.NoError(t, err)
	item.Version = 2

	var batches []batchRow
	for _, b := range item.Batches {
		batches = append(batches, toBatchRow(item.Key, b))
	}
	back := toItemRow(item).toDomain(batches)

	assert.Equal(t, item.Key, back.Key)
	assert.Equal(t, types.Quantity(8), back.TotalQuantity)
	assert.Equal(t, int64(2), back.Version)
	require.Len(t, back.Batches, 2)
	assert.Equal(t, "2025-01-15", back.Batches[dated.ID].ExpiryDate.String())
	assert.Equal(t, "A1", back.Batches[dated.ID].LocationID)
	assert.True(t, back.Batches[dated.ID].UnitCost.Equal(types.MustMoney("1.50")))
	assert.True(t, back.Batches[undated.ID].ExpiryDate.IsZero())
	assert.NoError(t, back.Validate())
}

func TestRecordRepo_MarkReversedOnlyCommitted(t *testing.T) {
	recID := id.New()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := NewRecordRepo(nil).markReversedQuery(recID, at).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE stock_allocations SET status = $1, reversed_at = $2 WHERE id = $3 AND status = $4", sql)
	assert.Equal(t, []any{"reversed", at, recID, "committed"}, args)
}

func TestRecordRow_RoundTrip(t *testing.T) {
	res := fefo.Result{
		Key:       key,
		Requested: 4,
		Lines: []fefo.Line{
			{BatchID: "b1", Quantity: 3, ExpiryDate: types.MustDate("2025-01-01"), UnitCost: types.MustMoney("2")},
			{BatchID: "b2", Quantity: 1, ExpiryDate: types.MustDate("2025-02-01"), UnitCost: types.MustMoney("3")},
		},
	}
	rec := allocation.NewRecord(allocation.KindInvoice, "ORD-1", res, 4)
	rec.Number = "INV-2025-000001"

	row, err := toRecordRow(rec)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"batchId":"b1","quantity":3,"expiryDate":"2025-01-01","unitCost":"2"},
		  {"batchId":"b2","quantity":1,"expiryDate":"2025-02-01","unitCost":"3"}]`,
		string(row.Lines))

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, allocation.KindInvoice, back.Kind)
	assert.Equal(t, types.Quantity(4), back.Quantity)
	assert.True(t, back.Cost.Equal(types.MustMoney("9")))
	assert.Equal(t, types.Quantity(4), back.HoldReleased)
	require.Len(t, back.Lines, 2)
	assert.Equal(t, stock.BatchID("b1"), back.Lines[0].BatchID)
	assert.True(t, back.IsCommitted())
}
