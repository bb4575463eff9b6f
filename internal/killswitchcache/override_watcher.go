// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package killswitchcache

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xglog "github.com/autonomyv2/autonomyd/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// OverrideWatcher watches a directory for operator-dropped flat files named
// "<env>__<lane>.flag" containing "true" or "false", a manual override path
// independent of the Control API. Applied overrides are written straight
// into the cache, the same path KillSwitch.SetLaneEnabled uses.
type OverrideWatcher struct {
	dir     string
	cache   *Cache
	watcher *fsnotify.Watcher
}

// NewOverrideWatcher constructs a watcher for dir. If dir is empty, Start is
// a no-op: the feature is disabled when AUTONOMY_V2_KILLSWITCH_OVERRIDE_DIR
// is unset.
func NewOverrideWatcher(dir string, cache *Cache) *OverrideWatcher {
	return &OverrideWatcher{dir: dir, cache: cache}
}

// Start begins watching in a background goroutine. It returns once the
// watcher is established (or immediately, if disabled); it does not block.
func (w *OverrideWatcher) Start(ctx context.Context) error {
	logger := xglog.WithComponent("killswitchcache")

	if w.dir == "" {
		logger.Info().Str("event", "killswitch.override_watcher_disabled").Msg("kill switch override watcher disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher

	w.loadExisting(logger)

	logger.Info().Str("event", "killswitch.override_watcher_started").Str("dir", w.dir).Msg("watching kill switch override directory")
	go w.watchLoop(ctx, logger)
	return nil
}

func (w *OverrideWatcher) loadExisting(logger zerolog.Logger) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn().Err(err).Str("event", "killswitch.override_initial_scan_failed").Msg("failed to scan override directory")
		return
	}
	for _, e := range entries {
		w.applyFile(filepath.Join(w.dir, e.Name()), logger)
	}
}

func (w *OverrideWatcher) watchLoop(ctx context.Context, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.applyFile(event.Name, logger)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Str("event", "killswitch.override_watcher_error").Msg("override watcher error")
		}
	}
}

func (w *OverrideWatcher) applyFile(path string, logger zerolog.Logger) {
	if !strings.HasSuffix(path, ".flag") {
		return
	}
	env, lane, ok := parseOverrideFilename(filepath.Base(path))
	if !ok {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("event", "killswitch.override_read_failed").Str("path", path).Msg("failed to read override flag file")
		return
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(string(raw)))
	if err != nil {
		logger.Warn().Err(err).Str("event", "killswitch.override_parse_failed").Str("path", path).Msg("override flag file does not contain true/false")
		return
	}
	if err := w.cache.SetEnabled(env, lane, enabled); err != nil {
		logger.Error().Err(err).Str("event", "killswitch.override_apply_failed").Str("env", env).Str("lane", lane).Msg("failed to apply override into cache")
		return
	}
	logger.Info().Str("event", "killswitch.override_applied").Str("env", env).Str("lane", lane).Bool("enabled", enabled).Msg("applied manual kill switch override")
}

// parseOverrideFilename splits "<env>__<lane>.flag" into (env, lane).
func parseOverrideFilename(name string) (env, lane string, ok bool) {
	base := strings.TrimSuffix(name, ".flag")
	if base == name {
		return "", "", false
	}
	parts := strings.SplitN(base, "__", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
