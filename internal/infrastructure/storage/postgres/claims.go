package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"depotstock/internal/domain/offline"
)

// ClaimStatus is the state of a replayed request id.
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusDone     ClaimStatus = "done"
	ClaimStatusReleased ClaimStatus = "released"
)

// ClaimStore implements offline.Guard over sys_offline_claims.
// An expired row is reclaimed as if it had never been seen. Released rows
// never expire: they hold the progress of a request still at a queue head.
type ClaimStore struct {
	txManager *TxManager
	ttl       time.Duration
}

func NewClaimStore(txManager *TxManager, ttl time.Duration) *ClaimStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ClaimStore{txManager: txManager, ttl: ttl}
}

// Claim implements offline.Guard.
func (s *ClaimStore) Claim(ctx context.Context, requestID string) (offline.Claim, error) {
	now := time.Now().UTC()
	querier := s.txManager.GetQuerier(ctx)

	var status ClaimStatus
	err := querier.QueryRow(ctx, `
		INSERT INTO sys_offline_claims (request_id, status, claimed_at, updated_at, expires_at, lines_done)
		VALUES ($1, $2, $3, $3, $4, 0)
		ON CONFLICT (request_id) DO UPDATE SET
			status = EXCLUDED.status,
			claimed_at = EXCLUDED.claimed_at,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at,
			lines_done = 0
		WHERE sys_offline_claims.expires_at < $3
			AND sys_offline_claims.status <> $5
		RETURNING status
	`, requestID, ClaimStatusPending, now, now.Add(s.ttl), ClaimStatusReleased).Scan(&status)
	if err == nil {
		return offline.Claim{Result: offline.Claimed}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return offline.Claim{}, fmt.Errorf("claim request: %w", err)
	}

	// Released by a replay that hit an infrastructure failure: take it over.
	var linesDone int
	err = querier.QueryRow(ctx, `
		UPDATE sys_offline_claims
		SET status = $1, claimed_at = $2, updated_at = $2, expires_at = $3
		WHERE request_id = $4 AND status = $5
		RETURNING lines_done
	`, ClaimStatusPending, now, now.Add(s.ttl), requestID, ClaimStatusReleased).Scan(&linesDone)
	if err == nil {
		return offline.Claim{Result: offline.Resumed, LinesDone: linesDone}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return offline.Claim{}, fmt.Errorf("resume claim: %w", err)
	}

	// Live row: someone claimed it before.
	err = querier.QueryRow(ctx,
		`SELECT status FROM sys_offline_claims WHERE request_id = $1`, requestID,
	).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows), err == nil && status == ClaimStatusReleased:
		// removed or released between the statements
		return s.Claim(ctx, requestID)
	case err != nil:
		return offline.Claim{}, fmt.Errorf("read claim: %w", err)
	}
	return offline.Claim{Result: claimResult(status)}, nil
}

func claimResult(status ClaimStatus) offline.ClaimResult {
	if status == ClaimStatusDone {
		return offline.AlreadyDone
	}
	return offline.Interrupted
}

// Complete implements offline.Guard.
func (s *ClaimStore) Complete(ctx context.Context, requestID string) error {
	now := time.Now().UTC()
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_offline_claims
		SET status = $1, updated_at = $2, expires_at = $3
		WHERE request_id = $4
	`, ClaimStatusDone, now, now.Add(s.ttl), requestID)
	if err != nil {
		return fmt.Errorf("complete claim: %w", err)
	}
	return nil
}

// Release implements offline.Guard.
func (s *ClaimStore) Release(ctx context.Context, requestID string, linesDone int) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_offline_claims
		SET status = $1, lines_done = $2, updated_at = $3
		WHERE request_id = $4 AND status = $5
	`, ClaimStatusReleased, linesDone, time.Now().UTC(), requestID, ClaimStatusPending)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// CleanupExpired removes expired claims and returns how many were deleted.
func (s *ClaimStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_offline_claims WHERE expires_at < $1 AND status <> $2`,
		time.Now().UTC(), ClaimStatusReleased)
	if err != nil {
		return 0, fmt.Errorf("cleanup claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ offline.Guard = (*ClaimStore)(nil)
