// Package stock_repo keeps stock items, their batches and allocation records in PostgreSQL.
package stock_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"depotstock/internal/core/apperror"
	"depotstock/internal/domain/stock"
	"depotstock/internal/infrastructure/storage/postgres"
)

// StockRepo implements stock.Repository over stock_items and stock_batches.
// The item row carries the version; batch rows are rewritten on every save.
type StockRepo struct {
	txm      *postgres.TxManager
	inserter *postgres.BatchInserter
	builder  squirrel.StatementBuilderType
}

func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:      txm,
		inserter: postgres.NewBatchInserter(txm),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get implements stock.Repository. Outside a transaction the item and its
// batches are read from one repeatable-read snapshot.
func (r *StockRepo) Get(ctx context.Context, key stock.Key) (stock.StockItem, error) {
	var item stock.StockItem
	load := func(ctx context.Context) error {
		var err error
		item, err = r.load(ctx, key)
		return err
	}

	err := r.snapshot(ctx, load)
	return item, err
}

// snapshot joins the context transaction, or opens a read-only repeatable-read one.
func (r *StockRepo) snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.txm.GetTx(ctx) != nil {
		return fn(ctx)
	}
	opts := postgres.DefaultTxOptions()
	opts.IsolationLevel = pgx.RepeatableRead
	opts.AccessMode = pgx.ReadOnly
	return r.txm.RunInTransactionWithOptions(ctx, opts, fn)
}

func (r *StockRepo) load(ctx context.Context, key stock.Key) (stock.StockItem, error) {
	q := r.getItemQuery(key)
	sql, args, err := q.ToSql()
	if err != nil {
		return stock.StockItem{}, fmt.Errorf("build select: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var row itemRow
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return stock.StockItem{}, apperror.NewNotFound("stock_item", key.String())
		}
		return stock.StockItem{}, fmt.Errorf("get stock item: %w", err)
	}

	sql, args, err = r.batchesQuery(squirrel.Eq{"depot_id": key.DepotID, "item_id": key.ItemID}).ToSql()
	if err != nil {
		return stock.StockItem{}, fmt.Errorf("build select: %w", err)
	}
	var batches []batchRow
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return stock.StockItem{}, fmt.Errorf("get stock batches: %w", err)
	}

	return row.toDomain(batches), nil
}

func (r *StockRepo) getItemQuery(key stock.Key) squirrel.SelectBuilder {
	return r.builder.Select(itemColumns...).
		From(stockItemsTable).
		Where(squirrel.Eq{"depot_id": key.DepotID, "item_id": key.ItemID})
}

func (r *StockRepo) batchesQuery(where squirrel.Sqlizer) squirrel.SelectBuilder {
	return r.builder.Select(batchColumns...).
		From(stockBatchesTable).
		Where(where).
		OrderBy("item_id", "batch_id")
}

// Save implements stock.Repository with a version check on the item row.
func (r *StockRepo) Save(ctx context.Context, item *stock.StockItem) error {
	next := item.Version + 1
	now := time.Now().UTC()

	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return r.save(ctx, item, next, now)
	})
	if err != nil {
		return err
	}

	item.Version = next
	item.UpdatedAt = now
	return nil
}

func (r *StockRepo) save(ctx context.Context, item *stock.StockItem, next int64, now time.Time) error {
	row := toItemRow(*item)
	row.Version = next
	row.UpdatedAt = now

	var (
		sql  string
		args []any
		err  error
	)
	if item.Version == 0 {
		sql, args, err = r.insertItemQuery(row).ToSql()
	} else {
		sql, args, err = r.updateItemQuery(row, item.Version).ToSql()
	}
	if err != nil {
		return fmt.Errorf("build item write: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("write stock item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock_item", item.Key.String())
	}

	sql, args, err = r.builder.Delete(stockBatchesTable).
		Where(squirrel.Eq{"depot_id": item.DepotID, "item_id": item.ItemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete stock batches: %w", err)
	}

	rows := make([][]any, 0, len(item.Batches))
	for _, b := range item.Batches {
		rows = append(rows, postgres.StructValues(toBatchRow(item.Key, b)))
	}
	if _, err := r.inserter.CopyFromSlice(ctx, stockBatchesTable, batchColumns, rows); err != nil {
		return fmt.Errorf("copy stock batches: %w", err)
	}
	return nil
}

func (r *StockRepo) insertItemQuery(row itemRow) squirrel.InsertBuilder {
	return r.builder.Insert(stockItemsTable).
		SetMap(postgres.StructToMap(row)).
		Suffix("ON CONFLICT (depot_id, item_id) DO NOTHING")
}

func (r *StockRepo) updateItemQuery(row itemRow, expected int64) squirrel.UpdateBuilder {
	return r.builder.Update(stockItemsTable).
		Set("item_name", row.ItemName).
		Set("total_quantity", row.TotalQuantity).
		Set("allocated_quantity", row.AllocatedQuantity).
		Set("damaged_quantity", row.DamagedQuantity).
		Set("version", row.Version).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"depot_id": row.DepotID, "item_id": row.ItemID, "version": expected})
}

// ListByDepot implements stock.Repository.
func (r *StockRepo) ListByDepot(ctx context.Context, depotID string) ([]stock.StockItem, error) {
	var out []stock.StockItem
	err := r.snapshot(ctx, func(ctx context.Context) error {
		querier := r.txm.GetQuerier(ctx)

		sql, args, err := r.builder.Select(itemColumns...).
			From(stockItemsTable).
			Where(squirrel.Eq{"depot_id": depotID}).
			OrderBy("item_id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build select: %w", err)
		}
		var items []itemRow
		if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
			return fmt.Errorf("list stock items: %w", err)
		}

		sql, args, err = r.batchesQuery(squirrel.Eq{"depot_id": depotID}).ToSql()
		if err != nil {
			return fmt.Errorf("build select: %w", err)
		}
		var batches []batchRow
		if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
			return fmt.Errorf("list stock batches: %w", err)
		}

		byItem := make(map[string][]batchRow, len(items))
		for _, b := range batches {
			byItem[b.ItemID] = append(byItem[b.ItemID], b)
		}
		out = make([]stock.StockItem, 0, len(items))
		for _, row := range items {
			out = append(out, row.toDomain(byItem[row.ItemID]))
		}
		return nil
	})
	return out, err
}

var _ stock.Repository = (*StockRepo)(nil)
