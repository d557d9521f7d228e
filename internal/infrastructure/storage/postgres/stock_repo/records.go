package stock_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/domain/allocation"
	"depotstock/internal/infrastructure/storage/postgres"
)

const uniqueViolation = "23505"

// RecordRepo implements allocation.RecordRepository over stock_allocations.
// Inside a transaction the record commits together with the stock write.
type RecordRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func NewRecordRepo(txm *postgres.TxManager) *RecordRepo {
	return &RecordRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *RecordRepo) Create(ctx context.Context, rec *allocation.Record) error {
	row, err := toRecordRow(*rec)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Insert(allocationsTable).SetMap(postgres.StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewConflict("allocation record already exists").WithDetail("id", rec.ID.String())
		}
		return fmt.Errorf("insert allocation record: %w", err)
	}
	return nil
}

func (r *RecordRepo) Get(ctx context.Context, recID id.ID) (allocation.Record, error) {
	sql, args, err := r.selectQuery().Where(squirrel.Eq{"id": recID}).ToSql()
	if err != nil {
		return allocation.Record{}, fmt.Errorf("build select: %w", err)
	}

	var row recordRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return allocation.Record{}, apperror.NewNotFound("allocation", recID.String())
		}
		return allocation.Record{}, fmt.Errorf("get allocation record: %w", err)
	}
	return row.toDomain()
}

func (r *RecordRepo) ListByRef(ctx context.Context, depotID, refID string) ([]allocation.Record, error) {
	sql, args, err := r.selectQuery().
		Where(squirrel.Eq{"depot_id": depotID, "ref_id": refID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []recordRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list allocation records: %w", err)
	}

	out := make([]allocation.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RecordRepo) MarkReversed(ctx context.Context, recID id.ID, at time.Time) error {
	sql, args, err := r.markReversedQuery(recID, at).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("mark allocation reversed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Either missing or already reversed.
	if _, err := r.Get(ctx, recID); err != nil {
		return err
	}
	return apperror.NewConflict("allocation already reversed").WithDetail("id", recID.String())
}

func (r *RecordRepo) selectQuery() squirrel.SelectBuilder {
	return r.builder.Select(recordColumns...).From(allocationsTable)
}

func (r *RecordRepo) markReversedQuery(recID id.ID, at time.Time) squirrel.UpdateBuilder {
	return r.builder.Update(allocationsTable).
		Set("status", string(allocation.StatusReversed)).
		Set("reversed_at", at).
		Where(squirrel.Eq{"id": recID, "status": string(allocation.StatusCommitted)})
}

var _ allocation.RecordRepository = (*RecordRepo)(nil)
