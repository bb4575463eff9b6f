// SPDX-License-Identifier: MIT

package runstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/autonomyv2/autonomyd/internal/persistence/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Bootstrap(db))
	return New(db)
}

func noopGraph() Graph {
	return Graph{
		EntryStep: "noop",
		Steps: map[string]StepDef{
			"noop": {ID: "noop", Deps: []string{}, Kind: "noop"},
		},
	}
}

func TestCreateRun_InsertsRunAndState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "proof", "tester", noopGraph(), nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	summary, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, summary.Status)
	assert.Equal(t, "local", summary.Env)
	assert.Equal(t, "default", summary.Lane)

	state, err := store.GetRunState(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, state.Status)
	assert.Equal(t, "noop", state.Graph.EntryStep)
}

func TestGetRunState_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRunState(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutRunState_StartedAtMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "proof", "tester", noopGraph(), nil, "")
	require.NoError(t, err)

	state, err := store.GetRunState(ctx, runID)
	require.NoError(t, err)

	state.Status = StatusRunning
	state.StartedAt = "2026-01-01T00:00:00Z"
	require.NoError(t, store.PutRunState(ctx, runID, state))

	state.StartedAt = "2026-06-01T00:00:00Z" // attempt to move it forward
	require.NoError(t, store.PutRunState(ctx, runID, state))

	summary, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", summary.StartedAt)
}

func TestListRuns_Pagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := store.CreateRun(ctx, "local", "default", "dry_run", "proof", "tester", noopGraph(), nil, "")
		require.NoError(t, err)
	}

	page1, cursor1, err := store.ListRuns(ctx, Filter{}, "", 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	assert.NotEmpty(t, cursor1)

	page2, cursor2, err := store.ListRuns(ctx, Filter{}, cursor1, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.NotEmpty(t, cursor2)

	page3, cursor3, err := store.ListRuns(ctx, Filter{}, cursor2, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, cursor3)
}

func TestListRuns_InvalidCursor(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.ListRuns(context.Background(), Filter{}, "invalid", 10)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
