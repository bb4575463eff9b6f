// SPDX-License-Identifier: MIT

package graphticker

import (
	"context"
	"database/sql"
	"testing"

	"github.com/autonomyv2/autonomyd/internal/eventbus"
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

func eventTypes(events []eventbus.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

func TestTickRun_NoopOneShot_SucceedsInOneCall(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	bus := eventbus.NewMemoryBus(db)
	ticker := New(store, bus)

	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", noopGraph(), nil, "")
	require.NoError(t, err)

	state, err := ticker.TickRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusSucceeded, state.Status)
	assert.Equal(t, runstore.StepSucceeded, state.StepStates["noop"].Status)
	assert.NotEmpty(t, state.StartedAt)
	assert.NotEmpty(t, state.FinishedAt)
	assert.Equal(t, 1, state.TicksUsed, "one step dispatched must count as one tick")

	events, err := bus.Replay(ctx, runID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{
		eventbus.EventRunStarted,
		eventbus.EventStepStarted,
		eventbus.EventStepSucceeded,
		eventbus.EventRunSucceeded,
	}, eventTypes(events))
}

func TestTickRun_TerminalRun_IsNoOp(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	bus := eventbus.NewMemoryBus(db)
	ticker := New(store, bus)

	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", noopGraph(), nil, "")
	require.NoError(t, err)

	_, err = ticker.TickRun(ctx, runID)
	require.NoError(t, err)

	before, err := store.GetRunState(ctx, runID)
	require.NoError(t, err)

	after, err := ticker.TickRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	events, err := bus.Replay(ctx, runID, 100)
	require.NoError(t, err)
	assert.Len(t, events, 4, "a terminal tick must not publish further events")
}

func TestTickRun_UnsupportedKind_Fails(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	bus := eventbus.NewMemoryBus(db)
	ticker := New(store, bus)

	graph := runstore.Graph{
		EntryStep: "weird",
		Steps:     map[string]runstore.StepDef{"weird": {ID: "weird", Deps: nil, Kind: "exotic"}},
	}
	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", graph, nil, "")
	require.NoError(t, err)

	state, err := ticker.TickRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusFailed, state.Status)
	require.NotNil(t, state.LastError)
	assert.Equal(t, "step", state.LastError.Stage)
	assert.Equal(t, "unsupported_kind:exotic", state.LastError.Reason)
	assert.Equal(t, 1, state.TicksUsed, "a dispatched-but-failed step still consumes a tick")
}

type denyPolicy struct{ reason string }

func (d denyPolicy) DispatchAllowed(*runstore.State, runstore.StepDef) (bool, string) {
	return false, d.reason
}

func TestTickRun_PolicyGateBlocks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	bus := eventbus.NewMemoryBus(db)
	ticker := New(store, bus, WithPolicyGate(denyPolicy{reason: "maintenance window"}))

	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", noopGraph(), nil, "")
	require.NoError(t, err)

	state, err := ticker.TickRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusBlocked, state.Status)
	require.NotNil(t, state.LastError)
	assert.Equal(t, "maintenance window", state.LastError.Reason)
	assert.Equal(t, 0, state.TicksUsed, "a policy-blocked run never reaches dispatch")

	events, err := bus.Replay(ctx, runID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{eventbus.EventRunStarted, eventbus.EventRunBlocked}, eventTypes(events))
}

func TestTickRun_DependencyOrdering(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := runstore.New(db)
	bus := eventbus.NewMemoryBus(db)
	ticker := New(store, bus)

	graph := runstore.Graph{
		EntryStep: "first",
		Steps: map[string]runstore.StepDef{
			"first":  {ID: "first", Deps: nil, Kind: "noop"},
			"second": {ID: "second", Deps: []string{"first"}, Kind: "noop"},
		},
	}
	runID, err := store.CreateRun(ctx, "local", "default", "dry_run", "noop_job", "tester", graph, nil, "")
	require.NoError(t, err)

	state, err := ticker.TickRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusRunning, state.Status)
	assert.Equal(t, runstore.StepSucceeded, state.StepStates["first"].Status)
	_, hasSecond := state.StepStates["second"]
	assert.False(t, hasSecond, "second must not dispatch before its dep succeeds")
	assert.Equal(t, 1, state.TicksUsed)

	state, err = ticker.TickRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusSucceeded, state.Status)
	assert.Equal(t, runstore.StepSucceeded, state.StepStates["second"].Status)
	assert.Equal(t, 2, state.TicksUsed, "ticks_used accumulates across calls")
}
