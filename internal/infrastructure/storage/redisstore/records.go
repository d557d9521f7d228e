package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/domain/allocation"
)

const allocKeyPrefix = "alloc:"

func recordKey(recID id.ID) string {
	return allocKeyPrefix + recID.String()
}

func refIndexKey(depotID, refID string) string {
	return allocKeyPrefix + "ref:" + depotID + ":" + refID
}

// RecordRepo stores allocation records as JSON with a per-reference id list.
type RecordRepo struct {
	client redis.UniversalClient
}

func NewRecordRepo(client redis.UniversalClient) *RecordRepo {
	return &RecordRepo{client: client}
}

func (r *RecordRepo) Create(ctx context.Context, rec *allocation.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode allocation record: %w", err)
	}

	ok, err := r.client.SetNX(ctx, recordKey(rec.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create allocation record: %w", err)
	}
	if !ok {
		return apperror.NewConflict("allocation record already exists").WithDetail("id", rec.ID.String())
	}
	if err := r.client.RPush(ctx, refIndexKey(rec.DepotID, rec.RefID), rec.ID.String()).Err(); err != nil {
		return fmt.Errorf("index allocation record: %w", err)
	}
	return nil
}

func (r *RecordRepo) Get(ctx context.Context, recID id.ID) (allocation.Record, error) {
	raw, err := r.client.Get(ctx, recordKey(recID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return allocation.Record{}, apperror.NewNotFound("allocation", recID.String())
	}
	if err != nil {
		return allocation.Record{}, fmt.Errorf("get allocation record: %w", err)
	}
	return decodeRecord(raw)
}

func (r *RecordRepo) ListByRef(ctx context.Context, depotID, refID string) ([]allocation.Record, error) {
	ids, err := r.client.LRange(ctx, refIndexKey(depotID, refID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list allocation records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, s := range ids {
		keys[i] = allocKeyPrefix + s
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load allocation records: %w", err)
	}

	out := make([]allocation.Record, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RecordRepo) MarkReversed(ctx context.Context, recID id.ID, at time.Time) error {
	key := recordKey(recID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperror.NewNotFound("allocation", recID.String())
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		if !rec.IsCommitted() {
			return apperror.NewConflict("allocation already reversed").WithDetail("id", recID.String())
		}
		rec.Status = allocation.StatusReversed
		rec.ReversedAt = &at
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return apperror.NewConcurrentModification("allocation", recID.String())
	case apperror.IsAppError(err):
		return err
	default:
		return fmt.Errorf("mark allocation reversed: %w", err)
	}
}

func decodeRecord(raw []byte) (allocation.Record, error) {
	var rec allocation.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return allocation.Record{}, fmt.Errorf("decode allocation record: %w", err)
	}
	return rec, nil
}

var _ allocation.RecordRepository = (*RecordRepo)(nil)
