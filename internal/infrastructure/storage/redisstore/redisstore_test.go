package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/types"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/domain/fefo"
	"depotstock/internal/domain/offline"
	"depotstock/internal/domain/stock"
	"depotstock/pkg/numerator"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleItem(t *testing.T) stock.StockItem {
	t.Helper()
	item := stock.NewStockItem(stock.Key{DepotID: "d1", ItemID: "amox"}, "Amoxicillin")
	_, err := item.AddBatch(stock.Batch{
		ID: "A", Quantity: 10, ExpiryDate: types.MustDate("2025-01-01"),
		LocationID: "aisle-3", UnitCost: types.MustMoney("0.75"),
	})
	require.NoError(t, err)
	_, err = item.AddBatch(stock.Batch{ID: "U", Quantity: 2})
	require.NoError(t, err)
	return item
}

func TestStockRepo_RoundTrip(t *testing.T) {
	_, client := newClient(t)
	repo := NewStockRepo(client)
	ctx := context.Background()

	_, err := repo.Get(ctx, stock.Key{DepotID: "d1", ItemID: "amox"})
	assert.True(t, apperror.IsNotFound(err))

	item := sampleItem(t)
	require.NoError(t, repo.Save(ctx, &item))
	assert.Equal(t, int64(1), item.Version)

	got, err := repo.Get(ctx, item.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, types.Quantity(12), got.TotalQuantity)
	assert.Equal(t, "2025-01-01", got.Batches["A"].ExpiryDate.String())
	assert.True(t, got.Batches["U"].ExpiryDate.IsZero())
	assert.True(t, types.MustMoney("0.75").Equal(got.Batches["A"].UnitCost))
	require.NoError(t, got.Validate())
}

func TestStockRepo_CompareAndSwap(t *testing.T) {
	_, client := newClient(t)
	repo := NewStockRepo(client)
	ctx := context.Background()

	item := sampleItem(t)
	require.NoError(t, repo.Save(ctx, &item))

	dup := sampleItem(t)
	err := repo.Save(ctx, &dup)
	assert.True(t, apperror.IsConcurrentModification(err), "create over existing key")

	a, err := repo.Get(ctx, item.Key)
	require.NoError(t, err)
	b, err := repo.Get(ctx, item.Key)
	require.NoError(t, err)

	_, a, err = fefo.New(fefo.UndatedLast).Allocate(a, 3)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, &a))
	assert.Equal(t, int64(2), a.Version)

	_, b, err = fefo.New(fefo.UndatedLast).Allocate(b, 5)
	require.NoError(t, err)
	err = repo.Save(ctx, &b)
	assert.True(t, apperror.IsConcurrentModification(err), "stale version loses")
	assert.Equal(t, int64(1), b.Version, "loser keeps its read version")

	stored, err := repo.Get(ctx, item.Key)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(9), stored.TotalQuantity)
}

func TestStockRepo_TransportError(t *testing.T) {
	mr, client := newClient(t)
	repo := NewStockRepo(client)
	mr.Close()

	item := sampleItem(t)
	err := repo.Save(context.Background(), &item)
	require.Error(t, err)
	assert.False(t, apperror.IsAppError(err), "transport failures are not conflicts")
}

func TestStockRepo_ListByDepot(t *testing.T) {
	_, client := newClient(t)
	repo := NewStockRepo(client)
	ctx := context.Background()

	for _, itemID := range []string{"para", "amox"} {
		item := stock.NewStockItem(stock.Key{DepotID: "d1", ItemID: itemID}, "")
		_, err := item.AddBatch(stock.Batch{ID: "B", Quantity: 1})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, &item))
	}
	other := stock.NewStockItem(stock.Key{DepotID: "d2", ItemID: "amox"}, "")
	require.NoError(t, repo.Save(ctx, &other))

	items, err := repo.ListByDepot(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "amox", items[0].ItemID)
	assert.Equal(t, "para", items[1].ItemID)

	items, err = repo.ListByDepot(ctx, "nowhere")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRecordRepo(t *testing.T) {
	_, client := newClient(t)
	repo := NewRecordRepo(client)
	ctx := context.Background()

	res := fefo.Result{
		Key:       stock.Key{DepotID: "d1", ItemID: "amox"},
		Requested: 4,
		Lines:     []fefo.Line{{BatchID: "A", Quantity: 4, ExpiryDate: types.MustDate("2025-01-01")}},
	}
	rec := allocation.NewRecord(allocation.KindDispatch, "ORD-1", res, 4)
	rec.Number = "DSP-2026-00001"
	require.NoError(t, repo.Create(ctx, &rec))
	assert.True(t, apperror.HasCode(repo.Create(ctx, &rec), apperror.CodeConflict))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "DSP-2026-00001", got.Number)
	assert.Equal(t, "amox", got.ItemID)
	require.Len(t, got.Lines, 1)

	list, err := repo.ListByRef(ctx, "d1", "ORD-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.MarkReversed(ctx, rec.ID, time.Now().UTC()))
	err = repo.MarkReversed(ctx, rec.ID, time.Now().UTC())
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	got, err = repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, allocation.StatusReversed, got.Status)
}

func TestQueue_FIFOAndDeadLetters(t *testing.T) {
	_, client := newClient(t)
	q := NewQueue(client, "test")
	ctx := context.Background()

	for _, reqID := range []string{"r1", "r2", "r3"} {
		require.NoError(t, q.Enqueue(ctx, offline.Request{ID: reqID, Kind: offline.KindStockOut, DepotID: "d1", RefID: "x"}))
	}

	head, ok, err := q.Peek(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", head.ID)

	assert.ErrorIs(t, q.Ack(ctx, "d1", "r2"), offline.ErrHeadMoved, "only the head can be acked")
	require.NoError(t, q.Ack(ctx, "d1", "r1"))
	assert.ErrorIs(t, q.DeadLetter(ctx, "d1", offline.DeadLetter{Request: offline.Request{ID: "r1"}}), offline.ErrHeadMoved)
	require.NoError(t, q.DeadLetter(ctx, "d1", offline.DeadLetter{Request: offline.Request{ID: "r2"}, Code: "INSUFFICIENT_STOCK"}))

	head, _, err = q.Peek(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "r3", head.ID)

	n, err := q.Len(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	dead, err := q.DeadLetters(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "r2", dead[0].Request.ID)
	assert.False(t, dead[0].At.IsZero())

	depots, err := q.Depots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, depots)

	require.NoError(t, q.Ack(ctx, "d1", "r3"))
	_, ok, err = q.Peek(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, q.Ack(ctx, "d1", "r3"), offline.ErrHeadMoved, "empty queue")
}

func TestGuard(t *testing.T) {
	mr, client := newClient(t)
	g := NewGuard(client, "test", time.Hour)
	ctx := context.Background()

	claim, err := g.Claim(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, offline.Claimed, claim.Result)

	claim, err = g.Claim(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, offline.Interrupted, claim.Result)

	require.NoError(t, g.Complete(ctx, "r1"))
	claim, err = g.Claim(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, offline.AlreadyDone, claim.Result)

	mr.FastForward(2 * time.Hour)
	claim, err = g.Claim(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, offline.Claimed, claim.Result, "claims expire")
}

func TestGuard_ReleaseKeepsProgress(t *testing.T) {
	mr, client := newClient(t)
	g := NewGuard(client, "test", time.Hour)
	ctx := context.Background()

	_, err := g.Claim(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, g.Release(ctx, "r1", 2))

	mr.FastForward(48 * time.Hour)
	claim, err := g.Claim(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, offline.Claim{Result: offline.Resumed, LinesDone: 2}, claim, "released claims do not expire")

	claim, err = g.Claim(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, offline.Interrupted, claim.Result, "a resumed claim is pending again")

	require.NoError(t, g.Release(ctx, "r1", 3))
	claim, err = g.Claim(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, claim.LinesDone)
}

func TestLocker(t *testing.T) {
	mr, client := newClient(t)
	l := NewLocker(client, "test", time.Second)
	ctx := context.Background()

	first, ok, err := l.Acquire(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok, "held by the first drainer")

	_, ok, err = l.Acquire(ctx, "d2")
	require.NoError(t, err)
	assert.True(t, ok, "leases are per depot")

	require.NoError(t, first.Refresh(ctx))
	require.NoError(t, first.Release(ctx))

	second, ok, err := l.Acquire(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	third, ok, err := l.Acquire(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok, "expired lease is free")

	assert.ErrorIs(t, second.Refresh(ctx), offline.ErrLeaseLost)
	require.NoError(t, second.Release(ctx))
	_, ok, err = l.Acquire(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok, "a stale release leaves the new holder alone")
	require.NoError(t, third.Release(ctx))
}

func TestAllocationService_OverRedis(t *testing.T) {
	_, client := newClient(t)
	svc := allocation.NewService(NewStockRepo(client), NewRecordRepo(client), fefo.New(fefo.UndatedLast), nil, nil,
		allocation.DefaultConfig())
	ctx := context.Background()

	for _, b := range []struct {
		id  string
		qty int64
		exp string
	}{{"A", 10, "2025-01-01"}, {"B", 5, "2025-02-01"}} {
		_, _, err := svc.Receive(ctx, allocation.ReceiptInput{
			Key: stock.Key{DepotID: "d1", ItemID: "amox"}, BatchID: stock.BatchID(b.id),
			Quantity: types.Quantity(b.qty), ExpiryDate: types.MustDate(b.exp),
		})
		require.NoError(t, err)
	}

	out, err := svc.StockOut(ctx, "d1", "SO-1", []allocation.OrderLine{{ItemID: "amox", Quantity: 12}})
	require.NoError(t, err)
	require.Len(t, out.Records[0].Lines, 2)

	item, err := svc.Get(ctx, stock.Key{DepotID: "d1", ItemID: "amox"})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(3), item.TotalQuantity)
	assert.NotContains(t, item.Batches, stock.BatchID("A"))

	_, err = svc.Cancel(ctx, "d1", "SO-1", nil)
	require.NoError(t, err)
	item, err = svc.Get(ctx, stock.Key{DepotID: "d1", ItemID: "amox"})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(15), item.TotalQuantity)
}

func TestSequenceSource_NumbersSurviveServiceRestart(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	cfg := numerator.DefaultConfig("INV")
	period := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := numerator.NewWithSource(NewSequenceSource(client), nil)
	n1, err := first.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-00001", n1)

	restarted := numerator.NewWithSource(NewSequenceSource(client), nil)
	n2, err := restarted.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-00002", n2)

	require.NoError(t, restarted.SetNextNumber(ctx, cfg, period, 99))
	n3, err := restarted.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-00100", n3)
}
