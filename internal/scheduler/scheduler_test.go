// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/autonomyv2/autonomyd/internal/persistence/sqlite"
	"github.com/autonomyv2/autonomyd/internal/runstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Bootstrap(db))
	return db
}

func noopGraph() runstore.Graph {
	return runstore.Graph{
		EntryStep: "noop",
		Steps:     map[string]runstore.StepDef{"noop": {ID: "noop", Deps: nil, Kind: "noop"}},
	}
}

func TestNextRunId_NoneQueued(t *testing.T) {
	sched := New(newTestDB(t))
	_, err := sched.NextRunId(context.Background(), "local", "default")
	assert.ErrorIs(t, err, ErrNone)
}

func TestNextRunId_OldestFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	sched := New(db)

	first, err := store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", noopGraph(), nil, "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", noopGraph(), nil, "")
	require.NoError(t, err)

	got, err := sched.NextRunId(ctx, "local", "default")
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestNextRunId_ScopedByEnvLane(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	sched := New(db)

	_, err := store.CreateRun(ctx, "prod", "default", "dry_run", "noop_job", "tester", noopGraph(), nil, "")
	require.NoError(t, err)

	_, err = sched.NextRunId(ctx, "local", "default")
	assert.ErrorIs(t, err, ErrNone)
}

func TestNextRunId_SkipsTerminalRuns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	sched := New(db)

	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", noopGraph(), nil, "")
	require.NoError(t, err)

	state, err := store.GetRunState(ctx, runID)
	require.NoError(t, err)
	state.Status = runstore.StatusSucceeded
	require.NoError(t, store.PutRunState(ctx, runID, state))

	_, err = sched.NextRunId(ctx, "local", "default")
	assert.ErrorIs(t, err, ErrNone)
}

func TestEnforceCaps(t *testing.T) {
	caps := Caps{MaxTotalTicksPerInvocation: 1}
	assert.False(t, EnforceCaps(caps, 0))
	assert.True(t, EnforceCaps(caps, 1))
	assert.True(t, EnforceCaps(caps, 2))
}

func TestCaps_RoundTripsUnenforcedFields(t *testing.T) {
	caps := Caps{MaxTotalTicksPerInvocation: 1, MaxTicksPerRunPerInvocation: 1, DailyTickCap: 10000}
	assert.Equal(t, 1, caps.MaxTicksPerRunPerInvocation)
	assert.Equal(t, 10000, caps.DailyTickCap)
}
