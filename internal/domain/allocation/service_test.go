package allocation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/stock"
	"depotstock/internal/infrastructure/storage/memory"
	"depotstock/pkg/numerator"
)

const depot = "central"

type fixture struct {
	svc     *allocation.Service
	stock   *memory.StockRepo
	records *memory.RecordRepo
}

func newFixture(t *testing.T, mode allocation.Mode) *fixture {
	t.Helper()
	f := &fixture{
		stock:   memory.NewStockRepo(),
		records: memory.NewRecordRepo(),
	}
	f.svc = allocation.NewService(
		f.stock,
		f.records,
		fefo.New(fefo.UndatedLast),
		numerator.NewMemory(),
		nil,
		allocation.Config{Mode: mode, MaxRetries: 3, RetryBase: time.Millisecond, RetryMax: 2 * time.Millisecond},
	)
	return f
}

func (f *fixture) receive(t *testing.T, itemID, batchID string, qty int64, expiry string) {
	t.Helper()
	_, _, err := f.svc.Receive(context.Background(), allocation.ReceiptInput{
		Key:        stock.Key{DepotID: depot, ItemID: itemID},
		ItemName:   itemID + " tablets",
		BatchID:    stock.BatchID(batchID),
		Quantity:   types.Quantity(qty),
		ExpiryDate: types.MustDate(expiry),
		LocationID: "aisle-1",
		UnitCost:   types.MustMoney("1.25"),
	})
	require.NoError(t, err)
}

func (f *fixture) item(t *testing.T, itemID string) stock.StockItem {
	t.Helper()
	item, err := f.svc.Get(context.Background(), stock.Key{DepotID: depot, ItemID: itemID})
	require.NoError(t, err)
	return item
}

func lines(pairs ...any) []allocation.OrderLine {
	var out []allocation.OrderLine
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, allocation.OrderLine{ItemID: pairs[i].(string), Quantity: types.Quantity(pairs[i+1].(int))})
	}
	return out
}

func TestReceive(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()

	b, item, err := f.svc.Receive(ctx, allocation.ReceiptInput{
		Key:      stock.Key{DepotID: depot, ItemID: "ors"},
		ItemName: "ORS sachet",
		Quantity: 40,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, types.Quantity(40), item.TotalQuantity)
	assert.Equal(t, "ORS sachet", item.ItemName)
	assert.Equal(t, int64(1), item.Version)

	_, _, err = f.svc.Receive(ctx, allocation.ReceiptInput{Key: stock.Key{DepotID: depot, ItemID: "ors"}, Quantity: 0})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, _, err = f.svc.Receive(ctx, allocation.ReceiptInput{Key: stock.Key{ItemID: "ors"}, Quantity: 1})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestFulfilInvoice_DrawsFEFOAndReleasesHold(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()
	f.receive(t, "amox", "A", 10, "2025-01-01")
	f.receive(t, "amox", "B", 5, "2025-02-01")

	_, err := f.svc.Hold(ctx, depot, "ORD-1", lines("amox", 12))
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(12), f.item(t, "amox").AllocatedQuantity)

	out, err := f.svc.FulfilInvoice(ctx, depot, "ORD-1", lines("amox", 12))
	require.NoError(t, err)
	require.Len(t, out.Records, 1)

	rec := out.Records[0]
	assert.Equal(t, allocation.KindInvoice, rec.Kind)
	assert.Regexp(t, `^INV-\d{4}-00001$`, rec.Number)
	assert.Equal(t, types.Quantity(12), rec.Quantity)
	assert.Equal(t, types.Quantity(12), rec.HoldReleased)
	require.Len(t, rec.Lines, 2)
	assert.Equal(t, stock.BatchID("A"), rec.Lines[0].BatchID)
	assert.Equal(t, types.Quantity(2), rec.Lines[1].Quantity)
	assert.True(t, types.MustMoney("15").Equal(rec.Cost))

	item := f.item(t, "amox")
	assert.Equal(t, types.Quantity(3), item.TotalQuantity)
	assert.Equal(t, types.Quantity(0), item.AllocatedQuantity)
	assert.NotContains(t, item.Batches, stock.BatchID("A"))

	stored, err := f.svc.Record(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Number, stored.Number)
}

func TestStockOut_LeavesHolds(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()
	f.receive(t, "amox", "A", 10, "2025-01-01")

	_, err := f.svc.Hold(ctx, depot, "ORD-1", lines("amox", 4))
	require.NoError(t, err)

	out, err := f.svc.StockOut(ctx, depot, "SO-manual", lines("amox", 3))
	require.NoError(t, err)
	assert.Regexp(t, `^SO-`, out.Records[0].Number)
	assert.Equal(t, types.Quantity(0), out.Records[0].HoldReleased)

	item := f.item(t, "amox")
	assert.Equal(t, types.Quantity(7), item.TotalQuantity)
	assert.Equal(t, types.Quantity(4), item.AllocatedQuantity)
}

func TestHold_Insufficient(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()
	f.receive(t, "amox", "A", 10, "2025-01-01")

	_, err := f.svc.Hold(ctx, depot, "ORD-1", lines("amox", 8))
	require.NoError(t, err)

	out, err := f.svc.Hold(ctx, depot, "ORD-2", lines("amox", 3))
	require.True(t, apperror.IsInsufficientStock(err))
	require.NotNil(t, out.Failed)
	assert.Equal(t, 1, out.Failed.LineNo)
	assert.Equal(t, types.Quantity(8), f.item(t, "amox").AllocatedQuantity)
}

func TestInsufficientStock_NamesLineAndLeavesItem(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()
	f.receive(t, "amox", "A", 10, "2025-01-01")

	out, err := f.svc.Dispatch(ctx, depot, "ORD-9", lines("amox", 15))
	require.True(t, apperror.IsInsufficientStock(err))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, int64(5), appErr.Details["shortfall"])
	assert.Equal(t, 1, appErr.Details["line_no"])
	assert.Equal(t, "amox", appErr.Details["item_id"])
	assert.Equal(t, apperror.CodeInsufficientStock, out.Failed.Code)

	item := f.item(t, "amox")
	assert.Equal(t, types.Quantity(10), item.Batches["A"].Quantity)
	assert.Equal(t, int64(1), item.Version, "nothing written")
}

func TestMissingItem_NotFound(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	_, err := f.svc.StockOut(context.Background(), depot, "x", lines("ghost", 1))
	assert.True(t, apperror.IsNotFound(err))
}

func TestMultiItem_Modes(t *testing.T) {
	setup := func(t *testing.T, mode allocation.Mode) *fixture {
		f := newFixture(t, mode)
		f.receive(t, "amox", "A", 10, "2025-01-01")
		f.receive(t, "para", "P", 10, "2025-01-01")
		f.receive(t, "ors", "O", 2, "2025-01-01")
		_, err := f.svc.Hold(context.Background(), depot, "ORD-1", lines("amox", 4, "para", 6))
		require.NoError(t, err)
		return f
	}
	order := lines("amox", 4, "para", 6, "ors", 5)

	t.Run("independent keeps committed lines", func(t *testing.T) {
		f := setup(t, allocation.ModeIndependent)

		out, err := f.svc.FulfilInvoice(context.Background(), depot, "ORD-1", order)
		require.True(t, apperror.IsInsufficientStock(err))

		assert.Len(t, out.Records, 2)
		assert.False(t, out.Compensated)
		assert.Equal(t, 3, out.Failed.LineNo)
		assert.Equal(t, "ors", out.Failed.ItemID)

		assert.Equal(t, types.Quantity(6), f.item(t, "amox").TotalQuantity)
		assert.Equal(t, types.Quantity(4), f.item(t, "para").TotalQuantity)
		assert.Equal(t, types.Quantity(2), f.item(t, "ors").TotalQuantity)
	})

	t.Run("compensate reverses committed lines", func(t *testing.T) {
		f := setup(t, allocation.ModeCompensate)

		out, err := f.svc.FulfilInvoice(context.Background(), depot, "ORD-1", order)
		require.True(t, apperror.IsInsufficientStock(err))

		assert.Empty(t, out.Records)
		assert.True(t, out.Compensated)

		amox := f.item(t, "amox")
		assert.Equal(t, types.Quantity(10), amox.TotalQuantity)
		assert.Equal(t, types.Quantity(4), amox.AllocatedQuantity, "hold restored")
		para := f.item(t, "para")
		assert.Equal(t, types.Quantity(10), para.TotalQuantity)
		assert.Equal(t, types.Quantity(6), para.AllocatedQuantity)

		recs, err := f.svc.RecordsByRef(context.Background(), depot, "ORD-1")
		require.NoError(t, err)
		require.Len(t, recs, 2)
		for _, r := range recs {
			assert.Equal(t, allocation.StatusReversed, r.Status)
			assert.NotNil(t, r.ReversedAt)
		}
	})

	t.Run("compensate releases holds placed earlier in the operation", func(t *testing.T) {
		f := setup(t, allocation.ModeCompensate)

		_, err := f.svc.Hold(context.Background(), depot, "ORD-2", lines("amox", 1, "ors", 3))
		require.True(t, apperror.IsInsufficientStock(err))
		assert.Equal(t, types.Quantity(4), f.item(t, "amox").AllocatedQuantity)
	})
}

func TestConflict_RetriedThenCommitted(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	f.receive(t, "amox", "A", 10, "2025-01-01")
	key := stock.Key{DepotID: depot, ItemID: "amox"}

	var conflicts atomic.Int32
	f.stock.SetBeforeSave(func(k stock.Key) {
		if k == key && conflicts.Add(1) <= 2 {
			f.stock.Bump(k)
		}
	})

	out, err := f.svc.StockOut(context.Background(), depot, "SO-1", lines("amox", 4))
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)

	item := f.item(t, "amox")
	assert.Equal(t, types.Quantity(6), item.TotalQuantity)
	assert.Equal(t, int32(3), conflicts.Load())
}

func TestConflict_ExhaustedEscalates(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	f.receive(t, "amox", "A", 10, "2025-01-01")

	var attempts atomic.Int32
	f.stock.SetBeforeSave(func(k stock.Key) {
		attempts.Add(1)
		f.stock.Bump(k)
	})

	_, err := f.svc.StockOut(context.Background(), depot, "SO-1", lines("amox", 4))
	require.True(t, apperror.HasCode(err, apperror.CodeStorageUnavailable))
	assert.True(t, apperror.IsConcurrentModification(errors.Unwrap(err)))
	assert.Equal(t, int32(4), attempts.Load(), "first attempt plus three retries")

	f.stock.SetBeforeSave(nil)
	assert.Equal(t, types.Quantity(10), f.item(t, "amox").TotalQuantity)
}

func TestConcurrentStockOuts_Conserve(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	f.svc = allocation.NewService(f.stock, f.records, fefo.New(fefo.UndatedLast), nil, nil,
		allocation.Config{MaxRetries: 200, RetryBase: 50 * time.Microsecond, RetryMax: time.Millisecond})
	for i := 0; i < 5; i++ {
		f.receive(t, "amox", fmt.Sprintf("B%d", i), 20, fmt.Sprintf("2025-0%d-01", i+1))
	}

	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := f.svc.StockOut(context.Background(), depot, fmt.Sprintf("SO-%d", n), lines("amox", 3)); err != nil {
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(0), failed.Load())
	item := f.item(t, "amox")
	assert.Equal(t, types.Quantity(100-60), item.TotalQuantity)
	require.NoError(t, item.Validate())
}

func TestCancel(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()
	f.receive(t, "amox", "A", 10, "2025-01-01")
	f.receive(t, "para", "P", 10, "2025-01-01")

	_, err := f.svc.Hold(ctx, depot, "ORD-1", lines("amox", 10, "para", 5))
	require.NoError(t, err)
	_, err = f.svc.FulfilInvoice(ctx, depot, "ORD-1", lines("amox", 10))
	require.NoError(t, err)

	res, err := f.svc.Cancel(ctx, depot, "ORD-1", lines("para", 5))
	require.NoError(t, err)
	require.Len(t, res.Reversed, 1)
	require.Len(t, res.Released, 1)
	assert.Equal(t, types.Quantity(5), res.Released[0].Quantity)

	amox := f.item(t, "amox")
	assert.Equal(t, types.Quantity(10), amox.TotalQuantity)
	assert.Equal(t, types.Quantity(10), amox.Batches["A"].Quantity, "exhausted batch re-created")
	assert.Equal(t, "aisle-1", amox.Batches["A"].LocationID)
	assert.Equal(t, types.Quantity(0), amox.AllocatedQuantity)
	assert.Equal(t, types.Quantity(0), f.item(t, "para").AllocatedQuantity)

	again, err := f.svc.Cancel(ctx, depot, "ORD-1", nil)
	require.NoError(t, err)
	assert.Empty(t, again.Reversed, "reversed records are not reversed twice")
	assert.Equal(t, types.Quantity(10), f.item(t, "amox").TotalQuantity)
}

func TestEdit(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()
	f.receive(t, "amox", "A", 10, "2025-01-01")
	f.receive(t, "amox", "B", 10, "2025-03-01")

	_, err := f.svc.Dispatch(ctx, depot, "ORD-1", lines("amox", 12))
	require.NoError(t, err)

	out, err := f.svc.Edit(ctx, depot, "ORD-1", allocation.KindDispatch, lines("amox", 5))
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, stock.BatchID("A"), out.Records[0].Lines[0].BatchID)

	item := f.item(t, "amox")
	assert.Equal(t, types.Quantity(15), item.TotalQuantity)
	assert.Equal(t, types.Quantity(5), item.Batches["A"].Quantity)
	assert.Equal(t, types.Quantity(10), item.Batches["B"].Quantity)

	recs, err := f.svc.RecordsByRef(ctx, depot, "ORD-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, allocation.StatusReversed, recs[0].Status)
	assert.Equal(t, allocation.StatusCommitted, recs[1].Status)

	_, err = f.svc.Edit(ctx, depot, "ORD-1", allocation.KindTransferOut, lines("amox", 1))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestDamaged(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()
	f.receive(t, "amox", "A", 10, "2025-01-01")
	key := stock.Key{DepotID: depot, ItemID: "amox"}

	item, err := f.svc.MarkDamaged(ctx, key, 3)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(3), item.DamagedQuantity)

	_, err = f.svc.WriteOffDamaged(ctx, key, 5)
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))

	item, err = f.svc.WriteOffDamaged(ctx, key, 3)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), item.DamagedQuantity)
	assert.Equal(t, types.Quantity(10), item.TotalQuantity)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	f.receive(t, "amox", "A", 5, "2025-03-01")
	f.receive(t, "amox", "B", 5, "2025-01-01")
	key := stock.Key{DepotID: depot, ItemID: "amox"}

	res, err := f.svc.Preview(context.Background(), key, 5)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, stock.BatchID("B"), res.Lines[0].BatchID)
	assert.Equal(t, int64(2), f.item(t, "amox").Version, "preview does not write")
}

func TestExpiringBatches(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	f.receive(t, "amox", "A", 5, "2025-01-10")
	f.receive(t, "amox", "B", 5, "2025-06-01")
	f.receive(t, "para", "P", 5, "2024-12-20")
	f.receive(t, "para", "Q", 5, "2025-02-15")
	_, _, err := f.svc.Receive(context.Background(), allocation.ReceiptInput{
		Key: stock.Key{DepotID: depot, ItemID: "para"}, BatchID: "U", Quantity: 1,
	})
	require.NoError(t, err)

	rows, err := f.svc.ExpiringBatches(context.Background(), depot, 60, types.MustDate("2025-01-01"))
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, stock.BatchID("P"), rows[0].Batch.ID)
	assert.Equal(t, allocation.ExpiryExpired, rows[0].Status)
	assert.Equal(t, stock.BatchID("A"), rows[1].Batch.ID)
	assert.Equal(t, allocation.ExpiryExpiring, rows[1].Status)
	assert.Equal(t, 9, rows[1].DaysLeft)
	assert.Equal(t, stock.BatchID("Q"), rows[2].Batch.ID)
	assert.Equal(t, allocation.ExpiryExpiringSoon, rows[2].Status)
}

// failingDepotRepo fails every save for one depot, as an unreachable store would.
type failingDepotRepo struct {
	*memory.StockRepo
	depotID string
}

func (r *failingDepotRepo) Save(ctx context.Context, item *stock.StockItem) error {
	if item.DepotID == r.depotID {
		return errors.New("dial tcp: connection refused")
	}
	return r.StockRepo.Save(ctx, item)
}

func TestTransfer(t *testing.T) {
	t.Run("moves batches with expiry", func(t *testing.T) {
		f := newFixture(t, allocation.ModeIndependent)
		f.receive(t, "amox", "A", 10, "2025-01-01")
		f.receive(t, "amox", "B", 10, "2025-02-01")

		res, err := f.svc.Transfer(context.Background(), allocation.TransferInput{
			FromDepotID: depot, ToDepotID: "north", ItemID: "amox", Quantity: 12,
		})
		require.NoError(t, err)
		assert.Regexp(t, `^TRF-`, res.Record.Number)
		require.Len(t, res.Received, 2)

		dest, err := f.svc.Get(context.Background(), stock.Key{DepotID: "north", ItemID: "amox"})
		require.NoError(t, err)
		assert.Equal(t, types.Quantity(12), dest.TotalQuantity)
		assert.Equal(t, "amox tablets", dest.ItemName)

		var expiries []string
		for _, b := range fefo.New(fefo.UndatedLast).Sorted(dest) {
			expiries = append(expiries, b.ExpiryDate.String())
		}
		assert.Equal(t, []string{"2025-01-01", "2025-02-01"}, expiries)
		assert.Equal(t, types.Quantity(8), f.item(t, "amox").TotalQuantity)
	})

	t.Run("destination failure reverses source", func(t *testing.T) {
		mem := memory.NewStockRepo()
		records := memory.NewRecordRepo()
		repo := &failingDepotRepo{StockRepo: mem, depotID: "north"}
		svc := allocation.NewService(repo, records, fefo.New(fefo.UndatedLast), nil, nil, allocation.DefaultConfig())

		_, _, err := svc.Receive(context.Background(), allocation.ReceiptInput{
			Key: stock.Key{DepotID: depot, ItemID: "amox"}, BatchID: "A", Quantity: 10,
			ExpiryDate: types.MustDate("2025-01-01"),
		})
		require.NoError(t, err)

		_, err = svc.Transfer(context.Background(), allocation.TransferInput{
			FromDepotID: depot, ToDepotID: "north", ItemID: "amox", RefID: "T-1", Quantity: 10,
		})
		require.True(t, apperror.HasCode(err, apperror.CodeStorageUnavailable))

		src, err := svc.Get(context.Background(), stock.Key{DepotID: depot, ItemID: "amox"})
		require.NoError(t, err)
		assert.Equal(t, types.Quantity(10), src.TotalQuantity)

		recs, err := svc.RecordsByRef(context.Background(), depot, "T-1")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, allocation.StatusReversed, recs[0].Status)
	})

	t.Run("same depot rejected", func(t *testing.T) {
		f := newFixture(t, allocation.ModeIndependent)
		_, err := f.svc.Transfer(context.Background(), allocation.TransferInput{
			FromDepotID: depot, ToDepotID: depot, ItemID: "amox", Quantity: 1,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})
}

// brokenAllocator claims sufficiency but cannot draw.
type brokenAllocator struct{ *fefo.Allocator }

func (brokenAllocator) Allocate(item stock.StockItem, qty types.Quantity) (fefo.Result, stock.StockItem, error) {
	return fefo.Result{}, item, apperror.NewAllocationInconsistency(item.ItemID, qty.Int64(), qty.Int64())
}

type defectSink struct {
	mu      sync.Mutex
	defects []allocation.Defect
}

func (s *defectSink) Report(_ context.Context, d allocation.Defect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defects = append(s.defects, d)
	return nil
}

func TestAllocationInconsistency_Reported(t *testing.T) {
	repo := memory.NewStockRepo()
	sink := &defectSink{}
	svc := allocation.NewService(repo, memory.NewRecordRepo(), brokenAllocator{fefo.New(fefo.UndatedLast)}, nil, nil,
		allocation.DefaultConfig()).WithDefectReporter(sink)

	_, _, err := svc.Receive(context.Background(), allocation.ReceiptInput{
		Key: stock.Key{DepotID: depot, ItemID: "amox"}, BatchID: "A", Quantity: 10,
	})
	require.NoError(t, err)

	_, err = svc.StockOut(context.Background(), depot, "SO-1", lines("amox", 4))
	require.True(t, apperror.IsAllocationInconsistency(err))
	assert.Equal(t, 500, apperror.GetHTTPStatus(err))

	require.Len(t, sink.defects, 1)
	d := sink.defects[0]
	assert.Equal(t, types.Quantity(4), d.Requested)
	assert.Equal(t, types.Quantity(10), d.Snapshot.TotalQuantity)
	assert.Contains(t, d.Snapshot.Batches, stock.BatchID("A"))
}

func TestValidation(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	ctx := context.Background()

	_, err := f.svc.StockOut(ctx, "", "x", lines("amox", 1))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.StockOut(ctx, depot, "x", nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.StockOut(ctx, depot, "x", lines("amox", 0))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.Allocate(ctx, allocation.Kind("bogus"), depot, "x", lines("amox", 1))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestListDepot_SortedBatches(t *testing.T) {
	f := newFixture(t, allocation.ModeIndependent)
	f.receive(t, "para", "P2", 5, "2025-06-01")
	f.receive(t, "para", "P1", 5, "2025-03-01")
	f.receive(t, "amox", "A1", 2, "2025-04-01")

	items, err := f.svc.ListDepot(context.Background(), depot)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "amox", items[0].ItemID)

	sorted := f.svc.SortedBatches(items[1])
	require.Len(t, sorted, 2)
	assert.Equal(t, stock.BatchID("P1"), sorted[0].ID)
	assert.Equal(t, stock.BatchID("P2"), sorted[1].ID)

	_, err = f.svc.ListDepot(context.Background(), "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
