// SPDX-License-Identifier: MIT

package sqlite

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestBootstrap_CreatesAllTables(t *testing.T) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Bootstrap(db))

	tables := []string{
		"runs_v2", "run_state_v2", "run_events_v2", "leases_v2",
		"config_versions", "config_flat", "audit_log", "schema_migrations",
	}
	for _, tbl := range tables {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl).Scan(&name)
		assert.NoError(t, err, "table %s should exist", tbl)
		assert.Equal(t, tbl, name)
	}
}

func TestBootstrap_IdempotentOnSecondCall(t *testing.T) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Bootstrap(db))
	require.NoError(t, Bootstrap(db))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}
