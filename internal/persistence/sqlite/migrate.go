// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"database/sql"
	"fmt"
)

// schemaVersion identifies the bootstrap migration recorded in
// schema_migrations. Bump it whenever a table definition below changes in a
// way that isn't purely additive.
const schemaVersion = 1

var bootstrapStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs_v2 (
		run_id TEXT PRIMARY KEY,
		schema_version TEXT NOT NULL,
		status TEXT NOT NULL,
		env TEXT NOT NULL,
		lane TEXT NOT NULL,
		mode TEXT NOT NULL,
		job_type TEXT NOT NULL,
		requested_by TEXT,
		parent_run_id TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT,
		last_error_json TEXT,
		run_graph_json TEXT NOT NULL,
		params_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_v2_lane_status ON runs_v2(env, lane, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_v2_created_at ON runs_v2(created_at, run_id)`,

	`CREATE TABLE IF NOT EXISTS run_state_v2 (
		run_id TEXT PRIMARY KEY REFERENCES runs_v2(run_id),
		state_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS run_events_v2 (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_events_v2_run_ts_id ON run_events_v2(run_id, ts, id)`,

	`CREATE TABLE IF NOT EXISTS leases_v2 (
		run_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		acquired_at TEXT NOT NULL,
		renewed_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS config_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		created_by TEXT,
		is_active INTEGER NOT NULL DEFAULT 0,
		blob_json TEXT NOT NULL,
		UNIQUE(kind, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_config_versions_kind_active ON config_versions(kind, is_active)`,

	`CREATE TABLE IF NOT EXISTS config_flat (
		key TEXT PRIMARY KEY,
		value_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		actor_id TEXT,
		actor_role TEXT,
		action TEXT NOT NULL,
		target_id TEXT,
		result TEXT NOT NULL,
		payload_json TEXT,
		error_json TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`,
}

// Bootstrap applies the idempotent schema migration. Safe to call on every
// process start: CREATE TABLE IF NOT EXISTS statements are no-ops on an
// already-migrated database.
func Bootstrap(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: bootstrap begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range bootstrapStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: bootstrap statement failed: %w", err)
		}
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE id = ?`, schemaVersion).Scan(&count); err != nil {
		return fmt.Errorf("sqlite: bootstrap version check: %w", err)
	}
	if count == 0 {
		if _, err := tx.Exec(`INSERT INTO schema_migrations (id, applied_at) VALUES (?, strftime('%Y-%m-%dT%H:%M:%SZ','now'))`, schemaVersion); err != nil {
			return fmt.Errorf("sqlite: bootstrap version insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: bootstrap commit: %w", err)
	}
	return nil
}
