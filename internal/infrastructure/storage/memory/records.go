package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"depotstock/internal/core/apperror"
	"depotstock/internal/core/id"
	"depotstock/internal/domain/allocation"
)

// RecordRepo keeps allocation records in memory.
type RecordRepo struct {
	mu    sync.RWMutex
	byID  map[id.ID]allocation.Record
	order []id.ID
}

func NewRecordRepo() *RecordRepo {
	return &RecordRepo{byID: make(map[id.ID]allocation.Record)}
}

func (r *RecordRepo) Create(_ context.Context, rec *allocation.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[rec.ID]; exists {
		return apperror.NewConflict("allocation record already exists").WithDetail("id", rec.ID.String())
	}
	r.byID[rec.ID] = cloneRecord(*rec)
	r.order = append(r.order, rec.ID)
	return nil
}

func (r *RecordRepo) Get(_ context.Context, recID id.ID) (allocation.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[recID]
	if !ok {
		return allocation.Record{}, apperror.NewNotFound("allocation", recID.String())
	}
	return cloneRecord(rec), nil
}

func (r *RecordRepo) ListByRef(_ context.Context, depotID, refID string) ([]allocation.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []allocation.Record
	for _, recID := range r.order {
		rec := r.byID[recID]
		if rec.DepotID == depotID && rec.RefID == refID {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (r *RecordRepo) MarkReversed(_ context.Context, recID id.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[recID]
	if !ok {
		return apperror.NewNotFound("allocation", recID.String())
	}
	if !rec.IsCommitted() {
		return apperror.NewConflict("allocation already reversed").WithDetail("id", recID.String())
	}
	rec.Status = allocation.StatusReversed
	rec.ReversedAt = &at
	r.byID[recID] = rec
	return nil
}

func cloneRecord(rec allocation.Record) allocation.Record {
	rec.Lines = slices.Clone(rec.Lines)
	if rec.ReversedAt != nil {
		at := *rec.ReversedAt
		rec.ReversedAt = &at
	}
	return rec
}

var _ allocation.RecordRepository = (*RecordRepo)(nil)
