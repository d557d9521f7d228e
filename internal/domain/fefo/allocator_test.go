package fefo

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/stock"
)

func batch(id string, qty int64, exp string) stock.Batch {
	return stock.Batch{ID: stock.BatchID(id), Quantity: types.Quantity(qty), ExpiryDate: types.MustDate(exp)}
}

func itemWith(t *testing.T, batches ...stock.Batch) stock.StockItem {
	t.Helper()
	item := stock.NewStockItem(stock.Key{DepotID: "central", ItemID: "amoxicillin"}, "Amoxicillin 250mg")
	for _, b := range batches {
		_, err := item.AddBatch(b)
		require.NoError(t, err)
	}
	return item
}

func TestAllocate_Scenarios(t *testing.T) {
	a := New(UndatedLast)

	t.Run("spans two batches", func(t *testing.T) {
		item := itemWith(t, batch("A", 10, "2025-01-01"), batch("B", 5, "2025-02-01"))

		res, next, err := a.Allocate(item, 12)
		require.NoError(t, err)

		require.Len(t, res.Lines, 2)
		assert.Equal(t, stock.BatchID("A"), res.Lines[0].BatchID)
		assert.Equal(t, types.Quantity(10), res.Lines[0].Quantity)
		assert.Equal(t, "2025-01-01", res.Lines[0].ExpiryDate.String())
		assert.Equal(t, stock.BatchID("B"), res.Lines[1].BatchID)
		assert.Equal(t, types.Quantity(2), res.Lines[1].Quantity)
		assert.Equal(t, "2025-02-01", res.Lines[1].ExpiryDate.String())

		assert.NotContains(t, next.Batches, stock.BatchID("A"))
		assert.Equal(t, types.Quantity(3), next.Batches["B"].Quantity)
		assert.Equal(t, types.Quantity(15), item.TotalQuantity)
		assert.Equal(t, types.Quantity(3), next.TotalQuantity)
		require.NoError(t, next.Validate())
	})

	t.Run("insufficient stock", func(t *testing.T) {
		item := itemWith(t, batch("A", 10, "2025-01-01"))

		_, next, err := a.Allocate(item, 15)
		require.True(t, apperror.IsInsufficientStock(err))
		appErr, _ := apperror.AsAppError(err)
		assert.Equal(t, int64(5), appErr.Details["shortfall"])
		assert.Equal(t, "amoxicillin", appErr.Details["item_id"])

		assert.Equal(t, types.Quantity(10), item.Batches["A"].Quantity)
		assert.Equal(t, types.Quantity(10), next.TotalQuantity)
	})

	t.Run("earlier expiry wins regardless of listing order", func(t *testing.T) {
		item := itemWith(t, batch("A", 5, "2025-03-01"), batch("B", 5, "2025-01-01"))

		res, next, err := a.Allocate(item, 5)
		require.NoError(t, err)

		require.Len(t, res.Lines, 1)
		assert.Equal(t, stock.BatchID("B"), res.Lines[0].BatchID)
		assert.Equal(t, types.Quantity(5), next.Batches["A"].Quantity)
		assert.NotContains(t, next.Batches, stock.BatchID("B"))
	})

	t.Run("exact exhaustion removes batch", func(t *testing.T) {
		item := itemWith(t, batch("A", 3, "2025-01-01"))

		res, next, err := a.Allocate(item, 3)
		require.NoError(t, err)

		require.Len(t, res.Lines, 1)
		assert.Equal(t, types.Quantity(3), res.Lines[0].Quantity)
		assert.Empty(t, next.Batches)
		assert.Equal(t, types.Quantity(0), next.TotalQuantity)
	})
}

func TestAllocate_RejectsNonPositive(t *testing.T) {
	item := itemWith(t, batch("A", 3, "2025-01-01"))
	for _, qty := range []types.Quantity{0, -1} {
		_, _, err := New(UndatedLast).Allocate(item, qty)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "qty %d", qty)
	}
}

func TestSorted_UndatedPolicy(t *testing.T) {
	item := itemWith(t,
		stock.Batch{ID: "U", Quantity: 1},
		batch("B", 1, "2025-02-01"),
		batch("A", 1, "2025-01-01"),
	)

	ids := func(bs []stock.Batch) []stock.BatchID {
		out := make([]stock.BatchID, 0, len(bs))
		for _, b := range bs {
			out = append(out, b.ID)
		}
		return out
	}

	assert.Equal(t, []stock.BatchID{"A", "B", "U"}, ids(New(UndatedLast).Sorted(item)))
	assert.Equal(t, []stock.BatchID{"U", "A", "B"}, ids(New(UndatedFirst).Sorted(item)))
	assert.Equal(t, []stock.BatchID{"A", "B", "U"}, ids((&Allocator{}).Sorted(item)), "zero value sorts undated last")
}

func TestSorted_TieBreakByID(t *testing.T) {
	item := itemWith(t,
		batch("C", 1, "2025-01-01"),
		batch("A", 1, "2025-01-01"),
		batch("B", 1, "2025-01-01"),
		stock.Batch{ID: "Z", Quantity: 1},
		stock.Batch{ID: "Y", Quantity: 1},
	)

	for i := 0; i < 20; i++ {
		sorted := New(UndatedLast).Sorted(item)
		got := make([]string, 0, len(sorted))
		for _, b := range sorted {
			got = append(got, string(b.ID))
		}
		require.Equal(t, []string{"A", "B", "C", "Y", "Z"}, got)
	}
}

func TestParseUndatedPolicy(t *testing.T) {
	p, err := ParseUndatedPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UndatedLast, p)

	p, err = ParseUndatedPolicy("FIRST")
	require.NoError(t, err)
	assert.Equal(t, UndatedFirst, p)

	_, err = ParseUndatedPolicy("middle")
	assert.Error(t, err)
}

func TestReverse_RecreatesExhaustedBatches(t *testing.T) {
	item := itemWith(t,
		stock.Batch{ID: "A", Quantity: 10, ExpiryDate: types.MustDate("2025-01-01"), LocationID: "shelf-1", UnitCost: types.MustMoney("2.50")},
		batch("B", 5, "2025-02-01"),
	)
	a := New(UndatedLast)

	res, after, err := a.Allocate(item, 12)
	require.NoError(t, err)
	assert.True(t, types.MustMoney("25").Equal(res.Cost()))

	restored := a.Reverse(res, after)
	require.NoError(t, restored.Validate())
	assert.Equal(t, item.TotalQuantity, restored.TotalQuantity)
	assert.Equal(t, types.Quantity(10), restored.Batches["A"].Quantity)
	assert.Equal(t, "shelf-1", restored.Batches["A"].LocationID)
	assert.Equal(t, "2025-01-01", restored.Batches["A"].ExpiryDate.String())
	assert.Equal(t, types.Quantity(5), restored.Batches["B"].Quantity)

	assert.NotContains(t, after.Batches, stock.BatchID("A"), "reverse works on a clone")
}

// TestAllocate_Properties exercises the invariants over random batch sets.
func TestAllocate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := New(UndatedLast)

	for n := 0; n < 200; n++ {
		var batches []stock.Batch
		for i := 0; i < 1+rng.Intn(6); i++ {
			b := stock.Batch{
				ID:       stock.BatchID(fmt.Sprintf("b%02d", i)),
				Quantity: types.Quantity(1 + rng.Intn(20)),
			}
			if rng.Intn(5) > 0 {
				b.ExpiryDate = types.NewDate(2025, 1, 1).AddDays(rng.Intn(10))
			}
			batches = append(batches, b)
		}
		item := itemWith(t, batches...)
		before := item.Clone()
		qty := types.Quantity(1 + rng.Intn(int(item.TotalQuantity)+10))

		res, next, err := a.Allocate(item, qty)
		if qty > item.TotalQuantity {
			require.True(t, apperror.IsInsufficientStock(err))
			assert.Equal(t, before, item, "insufficiency mutates nothing")
			continue
		}
		require.NoError(t, err)

		// conservation
		assert.Equal(t, qty, res.Total())
		assert.Equal(t, item.TotalQuantity-qty, next.TotalQuantity)
		require.NoError(t, next.Validate())

		for i, l := range res.Lines {
			// no over-draw
			assert.LessOrEqual(t, l.Quantity, item.Batches[l.BatchID].Quantity)
			// expiry ordering, undated last
			if i > 0 {
				prev := res.Lines[i-1].ExpiryDate
				if !prev.IsZero() && !l.ExpiryDate.IsZero() {
					assert.LessOrEqual(t, prev.Compare(l.ExpiryDate), 0)
				}
				assert.False(t, prev.IsZero() && !l.ExpiryDate.IsZero())
			}
		}

		// cleanup
		for _, b := range next.Batches {
			assert.True(t, b.Quantity.IsPositive())
		}

		// reversal restores the total
		assert.Equal(t, item.TotalQuantity, a.Reverse(res, next).TotalQuantity)
		assert.Equal(t, before, item, "input untouched")
	}
}
