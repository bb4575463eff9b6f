// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package configregistry owns versioned, active-flagged configuration blobs
// and the flat key-value overlay used by operator-facing control endpoints
// (e.g. per-lane kill switches).
package configregistry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Registry persists config_versions and config_flat rows over a shared
// *sql.DB.
type Registry struct {
	db *sql.DB
}

// New wraps an already-migrated database handle.
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

func now() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// GetActive returns the latest active blob for kind. ok is false when no
// active row exists; this mirrors the original's "silent shim" at the
// storage layer — callers decide how loudly to surface absence.
func (r *Registry) GetActive(ctx context.Context, kind string) (blob map[string]any, ok bool, err error) {
	var blobJSON string
	err = r.db.QueryRowContext(ctx, `
		SELECT blob_json FROM config_versions WHERE kind = ? AND is_active = 1
		ORDER BY version DESC LIMIT 1
	`, kind).Scan(&blobJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("configregistry: get active: %w", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(blobJSON), &parsed); err != nil {
		return nil, false, fmt.Errorf("configregistry: unmarshal blob: %w", err)
	}
	return parsed, true, nil
}

// EnsureDefault idempotently inserts blob as version max(existing)+1,
// active, iff no active row exists for kind. Concurrent callers racing
// EnsureDefault for the same kind result in at most one inserted row: the
// active-row check and insert happen inside one exclusive transaction.
func (r *Registry) EnsureDefault(ctx context.Context, kind string, blob map[string]any, createdBy string) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("configregistry: conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("configregistry: begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, `ROLLBACK`)
		}
	}()

	var activeCount int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM config_versions WHERE kind = ? AND is_active = 1`, kind).Scan(&activeCount); err != nil {
		return fmt.Errorf("configregistry: count active: %w", err)
	}
	if activeCount > 0 {
		_, err := conn.ExecContext(ctx, `COMMIT`)
		committed = err == nil
		return err
	}

	var maxVersion sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT MAX(version) FROM config_versions WHERE kind = ?`, kind).Scan(&maxVersion); err != nil {
		return fmt.Errorf("configregistry: max version: %w", err)
	}
	nextVersion := int64(1)
	if maxVersion.Valid {
		nextVersion = maxVersion.Int64 + 1
	}

	blobJSON, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("configregistry: marshal blob: %w", err)
	}

	var createdByArg sql.NullString
	if createdBy != "" {
		createdByArg = sql.NullString{String: createdBy, Valid: true}
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO config_versions (kind, version, created_at, created_by, is_active, blob_json)
		VALUES (?, ?, ?, ?, 1, ?)
	`, kind, nextVersion, now(), createdByArg, string(blobJSON))
	if err != nil {
		return fmt.Errorf("configregistry: insert default: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return fmt.Errorf("configregistry: commit: %w", err)
	}
	committed = true
	return nil
}

// Set persists a flat, key-addressable value with last-writer-wins
// semantics, independent of the versioned blob store.
func (r *Registry) Set(ctx context.Context, key string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("configregistry: marshal value: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO config_flat (key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, key, string(valueJSON), now())
	if err != nil {
		return fmt.Errorf("configregistry: set: %w", err)
	}
	return nil
}

// Get reads a flat key. ok is false when the key has never been set.
func (r *Registry) Get(ctx context.Context, key string) (value any, ok bool, err error) {
	var valueJSON string
	err = r.db.QueryRowContext(ctx, `SELECT value_json FROM config_flat WHERE key = ?`, key).Scan(&valueJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("configregistry: get: %w", err)
	}

	var parsed any
	if err := json.Unmarshal([]byte(valueJSON), &parsed); err != nil {
		return nil, false, fmt.Errorf("configregistry: unmarshal value: %w", err)
	}
	return parsed, true, nil
}
