// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package configregistry

import (
	"context"
	"fmt"

	xglog "github.com/autonomyv2/autonomyd/internal/log"
)

// KillSwitchKind is the config_versions "kind" for the lane kill-switch blob.
const KillSwitchKind = "kill_switch_v2"

// FlatLaneKey returns the flat config_flat key an operator flips to
// enable/disable one lane, e.g. "kill_switch.local.default.lane_enabled".
func FlatLaneKey(env, lane string) string {
	return fmt.Sprintf("kill_switch.%s.%s.lane_enabled", env, lane)
}

func blobLaneKey(env, lane string) string {
	return env + ":" + lane
}

// LaneCache is a local read-through cache for the derived lane_enabled
// value, checked before falling through to SQLite. Satisfied by
// internal/killswitchcache.Cache; kept as an interface here so this package
// never imports the cache's badger dependency directly.
type LaneCache interface {
	Get(env, lane string) (enabled bool, blobPresent bool, ok bool)
	Set(env, lane string, enabled bool, blobPresent bool) error
}

// KillSwitch derives the effective lane_enabled boolean for (env, lane) from
// the active kill_switch_v2 blob, overlaid by the flat
// kill_switch.<env>.<lane>.lane_enabled key. The flat key wins when present.
type KillSwitch struct {
	registry *Registry
	cache    LaneCache
}

// NewKillSwitch wraps a Registry. EnsureDefault for the kill_switch_v2 blob
// is the caller's responsibility (normally done once at startup).
func NewKillSwitch(registry *Registry) *KillSwitch {
	return &KillSwitch{registry: registry}
}

// WithCache attaches a local read-through cache, avoiding a SQLite round
// trip on the worker's hot tick path once a lane's value is known.
func (k *KillSwitch) WithCache(cache LaneCache) *KillSwitch {
	k.cache = cache
	return k
}

// LaneEnabled reports whether (env, lane) is currently enabled, and whether
// the kill_switch_v2 versioned blob was present at all (surfaced by callers
// as config.kill_switch_v2_present).
func (k *KillSwitch) LaneEnabled(ctx context.Context, env, lane string) (enabled bool, blobPresent bool, err error) {
	if k.cache != nil {
		if cachedEnabled, cachedBlobPresent, ok := k.cache.Get(env, lane); ok {
			return cachedEnabled, cachedBlobPresent, nil
		}
	}

	enabled = true // default when neither source has an opinion

	blob, present, err := k.registry.GetActive(ctx, KillSwitchKind)
	if err != nil {
		return false, false, err
	}
	if present {
		if lanes, ok := blob["lanes"].(map[string]any); ok {
			if v, ok := lanes[blobLaneKey(env, lane)].(bool); ok {
				enabled = v
			}
		}
	}

	flatValue, flatOK, err := k.registry.Get(ctx, FlatLaneKey(env, lane))
	if err != nil {
		return false, present, err
	}
	if flatOK {
		if v, ok := flatValue.(bool); ok {
			enabled = v
		}
	}

	if k.cache != nil {
		if cacheErr := k.cache.Set(env, lane, enabled, present); cacheErr != nil {
			xglog.WithComponent("configregistry").Warn().Err(cacheErr).Str("event", "killswitch.cache_populate_failed").Msg("failed to populate lane cache")
		}
	}

	return enabled, present, nil
}

// SetLaneEnabled sets the flat override key for (env, lane), which always
// takes precedence over the versioned blob, and repopulates the cache so the
// next read does not race a stale cached value.
func (k *KillSwitch) SetLaneEnabled(ctx context.Context, env, lane string, enabled bool) error {
	if err := k.registry.Set(ctx, FlatLaneKey(env, lane), enabled); err != nil {
		return err
	}
	if k.cache != nil {
		// A flat override doesn't change whether the versioned blob is
		// present, so carry forward whatever blob_present bit is already
		// cached (false on a cache miss) rather than clobbering it.
		_, blobPresent, _ := k.cache.Get(env, lane)
		if cacheErr := k.cache.Set(env, lane, enabled, blobPresent); cacheErr != nil {
			xglog.WithComponent("configregistry").Warn().Err(cacheErr).Str("event", "killswitch.cache_update_failed").Msg("failed to update lane cache")
		}
	}
	return nil
}

// EnsureDefaultBlob seeds an empty kill_switch_v2 blob if none is active.
func (k *KillSwitch) EnsureDefaultBlob(ctx context.Context, createdBy string) error {
	return k.registry.EnsureDefault(ctx, KillSwitchKind, map[string]any{"lanes": map[string]any{}}, createdBy)
}
