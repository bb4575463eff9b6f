// SPDX-License-Identifier: MIT

package leasestore

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/autonomyv2/autonomyd/internal/persistence/sqlite"
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

func TestAcquire_EmptyTable_Succeeds(t *testing.T) {
	store := New(newTestDB(t))
	ok, err := store.Acquire(context.Background(), "run-1", "owner-a", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquire_AlreadyHeld_Fails(t *testing.T) {
	ctx := context.Background()
	store := New(newTestDB(t))

	ok, err := store.Acquire(ctx, "run-1", "owner-a", 15*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Acquire(ctx, "run-1", "owner-b", 15*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquire_ExpiredLease_Reacquirable(t *testing.T) {
	ctx := context.Background()
	store := New(newTestDB(t))

	ok, err := store.Acquire(ctx, "run-1", "owner-a", -1*time.Second) // expires immediately
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Acquire(ctx, "run-1", "owner-b", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenew_WrongOwner_Fails(t *testing.T) {
	ctx := context.Background()
	store := New(newTestDB(t))

	ok, err := store.Acquire(ctx, "run-1", "owner-a", 15*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	renewed, err := store.Renew(ctx, "run-1", "owner-b", 15*time.Second)
	require.NoError(t, err)
	assert.False(t, renewed)

	renewed, err = store.Renew(ctx, "run-1", "owner-a", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, renewed)
}

func TestRelease_WrongOwner_NoOp(t *testing.T) {
	ctx := context.Background()
	store := New(newTestDB(t))

	ok, err := store.Acquire(ctx, "run-1", "owner-a", 15*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "run-1", "owner-b"))

	ok, err = store.Acquire(ctx, "run-1", "owner-c", 15*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "owner-a's lease should still be held")

	require.NoError(t, store.Release(ctx, "run-1", "owner-a"))
	ok, err = store.Acquire(ctx, "run-1", "owner-c", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRelease_Absent_NoError(t *testing.T) {
	store := New(newTestDB(t))
	assert.NoError(t, store.Release(context.Background(), "missing-run", "owner-a"))
}

func TestAcquire_ConcurrentCallersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := New(newTestDB(t))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	owners := []string{"owner-a", "owner-b"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.Acquire(ctx, "run-1", owners[i], 15*time.Second)
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range results {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
