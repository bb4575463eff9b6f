// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package killswitchcache provides a local read-through cache for the
// KillSwitch's lane-enabled flag, backed by an embedded badger store. The
// authoritative value always lives in SQLite (internal/configregistry); this
// cache exists because LaneEnabled is checked on every worker tick and a
// per-tick SQLite round trip is wasted work once the flag is already known.
package killswitchcache

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Cache is a local, process-embedded key-value store keyed "env:lane",
// repopulated whenever the authoritative value changes.
type Cache struct {
	db *badger.DB
}

// Open opens (or creates) the badger store at path. An empty path opens an
// in-memory store, which is the expected mode when no durable cache
// directory is configured.
func Open(path string) (*Cache, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else {
		opts = badger.DefaultOptions(path).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("killswitchcache: open: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func key(env, lane string) []byte {
	return []byte(env + ":" + lane)
}

type entry struct {
	Enabled     bool `json:"enabled"`
	BlobPresent bool `json:"blob_present"`
}

// Get returns the cached lane-enabled flag and whether the kill_switch_v2
// blob was present as of the last populate. ok is false on a cache miss,
// signalling the caller should fall through to the authoritative store.
func (c *Cache) Get(env, lane string) (enabled bool, blobPresent bool, ok bool) {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(env, lane))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e entry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			enabled = e.Enabled
			blobPresent = e.BlobPresent
			ok = true
			return nil
		})
	})
	if err != nil {
		return false, false, false
	}
	return enabled, blobPresent, ok
}

// Set repopulates the cache for a single env:lane pair, called whenever
// KillSwitch.SetLaneEnabled writes through or a local override file fires.
func (c *Cache) Set(env, lane string, enabled bool, blobPresent bool) error {
	buf, err := json.Marshal(entry{Enabled: enabled, BlobPresent: blobPresent})
	if err != nil {
		return fmt.Errorf("killswitchcache: marshal: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(env, lane), buf)
	})
}

// SetEnabled updates only the enabled bit for (env, lane), preserving
// whatever blob_present bit is already cached (false on a fresh entry).
// Used by the override watcher, which applies a manual flag file and has no
// opinion on the versioned blob's presence.
func (c *Cache) SetEnabled(env, lane string, enabled bool) error {
	_, blobPresent, _ := c.Get(env, lane)
	return c.Set(env, lane, enabled, blobPresent)
}

// Invalidate drops a single cached entry, forcing the next Get to miss and
// the caller to re-read the authoritative store.
func (c *Cache) Invalidate(env, lane string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(env, lane))
	})
}
