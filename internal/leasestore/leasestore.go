// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package leasestore owns the TTL-bounded exclusive claim a worker holds on
// a run while advancing it. The lease table is the only synchronization
// primitive between workers; expiration is observed, never swept.
package leasestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists lease rows over a shared *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.Truncate(time.Second).Format(time.RFC3339)
}

// Acquire atomically checks for an existing, unexpired lease on run_id. If
// none exists, it (over)writes the row for owner_id and returns true;
// otherwise it returns false without side effect. Runs under BEGIN IMMEDIATE
// so two concurrent callers can never both observe the row as free.
func (s *Store) Acquire(ctx context.Context, runID, ownerID string, ttl time.Duration) (bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("leasestore: conn: %w", err)
	}
	defer conn.Close()

	// BEGIN IMMEDIATE grabs the write lock up front, so a second concurrent
	// caller blocks here rather than both observing the row as free under a
	// deferred transaction's read lock.
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return false, fmt.Errorf("leasestore: begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, `ROLLBACK`)
		}
	}()

	var expiresAt string
	err = conn.QueryRowContext(ctx, `SELECT expires_at FROM leases_v2 WHERE run_id = ?`, runID).Scan(&expiresAt)

	nowTS := now()
	free := false
	switch {
	case err == sql.ErrNoRows:
		free = true
	case err != nil:
		return false, fmt.Errorf("leasestore: select: %w", err)
	default:
		expires, parseErr := time.Parse(time.RFC3339, expiresAt)
		free = parseErr != nil || !nowTS.Before(expires)
	}

	if !free {
		return false, nil
	}

	acquiredAt := formatTime(nowTS)
	expiresAtNew := formatTime(nowTS.Add(ttl))

	_, err = conn.ExecContext(ctx, `
		INSERT INTO leases_v2 (run_id, owner_id, acquired_at, renewed_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			acquired_at = excluded.acquired_at,
			renewed_at = excluded.renewed_at,
			expires_at = excluded.expires_at
	`, runID, ownerID, acquiredAt, acquiredAt, expiresAtNew)
	if err != nil {
		return false, fmt.Errorf("leasestore: upsert: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return false, fmt.Errorf("leasestore: commit: %w", err)
	}
	committed = true
	return true, nil
}

// Renew extends an owned lease's TTL. It returns false if the row is
// missing or owned by a different owner_id.
func (s *Store) Renew(ctx context.Context, runID, ownerID string, ttl time.Duration) (bool, error) {
	nowTS := now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE leases_v2 SET renewed_at = ?, expires_at = ?
		WHERE run_id = ? AND owner_id = ?
	`, formatTime(nowTS), formatTime(nowTS.Add(ttl)), runID, ownerID)
	if err != nil {
		return false, fmt.Errorf("leasestore: renew: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("leasestore: renew rows affected: %w", err)
	}
	return n > 0, nil
}

// Release deletes the lease row iff owner_id matches. Idempotent: no error
// if the row is already absent.
func (s *Store) Release(ctx context.Context, runID, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases_v2 WHERE run_id = ? AND owner_id = ?`, runID, ownerID)
	if err != nil {
		return fmt.Errorf("leasestore: release: %w", err)
	}
	return nil
}
