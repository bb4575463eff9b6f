// SPDX-License-Identifier: MIT

package api

import (
	"database/sql"
	"testing"

	"github.com/autonomyv2/autonomyd/internal/config"
	"github.com/autonomyv2/autonomyd/internal/health"
	"github.com/autonomyv2/autonomyd/internal/persistence/sqlite"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newTestContainer builds a Container wired against an in-memory database
// and an in-memory lane cache, mirroring how cmd/autonomyd/main.go composes
// one at startup but without any real listener or background loop.
func newTestContainer(t *testing.T, adminToken string) *Container {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Bootstrap(db))

	cfg := config.Config{
		DBPath:             ":memory:",
		ListenAddr:         ":0",
		AdminToken:         adminToken,
		LogLevel:           "error",
		WorkerEnabled:      false,
		WorkerEnv:          "local",
		WorkerLane:         "default",
		EventBusBackend:    "memory",
	}

	healthMgr := health.NewManager("test")

	c, err := NewContainer(cfg, db, healthMgr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.LaneCache.Close() })

	return c
}
