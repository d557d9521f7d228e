package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"depotstock/internal/core/id"
	"depotstock/internal/domain/allocation"
)

// CompressionAlgo names how a defect snapshot is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024

// DefectEntry is one stored allocator invariant violation.
type DefectEntry struct {
	ID                 id.ID           `db:"id"`
	DepotID            string          `db:"depot_id"`
	ItemID             string          `db:"item_id"`
	Requested          int64           `db:"requested"`
	Error              string          `db:"error"`
	Snapshot           json.RawMessage `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

// DefectStore keeps the stock snapshot that made the allocator disagree with
// its own sufficiency check. Large snapshots (items with many batches) are zstd-compressed.
type DefectStore struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

func NewDefectStore(txManager *TxManager) (*DefectStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &DefectStore{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// Report implements allocation.DefectReporter.
func (s *DefectStore) Report(ctx context.Context, d allocation.Defect) error {
	entry, err := s.encode(d)
	if err != nil {
		return err
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_defects (
			id, depot_id, item_id, requested, error,
			snapshot, snapshot_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID, entry.DepotID, entry.ItemID, entry.Requested, entry.Error,
		entry.Snapshot, entry.SnapshotCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert defect: %w", err)
	}
	return nil
}

func (s *DefectStore) encode(d allocation.Defect) (DefectEntry, error) {
	snapshot, err := json.Marshal(d.Snapshot)
	if err != nil {
		return DefectEntry{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	entry := DefectEntry{
		ID:              id.New(),
		DepotID:         d.Key.DepotID,
		ItemID:          d.Key.ItemID,
		Requested:       d.Requested.Int64(),
		Snapshot:        snapshot,
		CompressionAlgo: CompressionNone,
		CreatedAt:       d.At,
	}
	if d.Err != nil {
		entry.Error = d.Err.Error()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if len(snapshot) > s.compressThreshold {
		entry.SnapshotCompressed = s.encoder.EncodeAll(snapshot, nil)
		entry.Snapshot = nil
		entry.CompressionAlgo = CompressionZstd
	}
	return entry, nil
}

// decode restores a compressed snapshot in place.
func (s *DefectStore) decode(e *DefectEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.SnapshotCompressed) == 0 {
		return nil
	}
	raw, err := s.decoder.DecodeAll(e.SnapshotCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	e.Snapshot = raw
	e.SnapshotCompressed = nil
	return nil
}

// Recent returns the latest defects, newest first, with snapshots decompressed.
func (s *DefectStore) Recent(ctx context.Context, limit int) ([]DefectEntry, error) {
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, depot_id, item_id, requested, error,
		       snapshot, snapshot_compressed, compression_algo, created_at
		FROM sys_defects
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query defects: %w", err)
	}
	defer rows.Close()

	var entries []DefectEntry
	for rows.Next() {
		var e DefectEntry
		if err := rows.Scan(
			&e.ID, &e.DepotID, &e.ItemID, &e.Requested, &e.Error,
			&e.Snapshot, &e.SnapshotCompressed, &e.CompressionAlgo, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan defect: %w", err)
		}
		if err := s.decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ allocation.DefectReporter = (*DefectStore)(nil)
