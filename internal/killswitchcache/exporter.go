// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package killswitchcache

import (
	"context"
	"fmt"
	"time"

	"github.com/autonomyv2/autonomyd/internal/configregistry"
	xglog "github.com/autonomyv2/autonomyd/internal/log"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Exporter periodically writes the active kill_switch_v2 blob to a YAML
// snapshot on disk, so operators can diff config state with ordinary git/diff
// tooling without needing to query SQLite directly.
type Exporter struct {
	registry *configregistry.Registry
	path     string
	interval time.Duration
}

// NewExporter constructs an exporter for path. If path is empty, Run is a
// no-op: the feature is disabled when AUTONOMY_V2_CONFIG_EXPORT_PATH is
// unset.
func NewExporter(registry *configregistry.Registry, path string, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Exporter{registry: registry, path: path, interval: interval}
}

// Run blocks, writing a fresh snapshot on the configured interval, until ctx
// is cancelled. It writes once immediately on entry before waiting.
func (e *Exporter) Run(ctx context.Context) error {
	logger := xglog.WithComponent("killswitchcache")

	if e.path == "" {
		logger.Info().Str("event", "killswitch.exporter_disabled").Msg("kill switch config export disabled")
		return nil
	}

	if err := e.exportOnce(ctx); err != nil {
		logger.Warn().Err(err).Str("event", "killswitch.export_failed").Msg("initial kill switch export failed")
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.exportOnce(ctx); err != nil {
				logger.Warn().Err(err).Str("event", "killswitch.export_failed").Msg("periodic kill switch export failed")
			}
		}
	}
}

func (e *Exporter) exportOnce(ctx context.Context) error {
	blob, ok, err := e.registry.GetActive(ctx, configregistry.KillSwitchKind)
	if err != nil {
		return fmt.Errorf("killswitchcache: read active blob: %w", err)
	}
	if !ok {
		blob = map[string]any{"lanes": map[string]any{}}
	}

	out, err := yaml.Marshal(blob)
	if err != nil {
		return fmt.Errorf("killswitchcache: marshal yaml: %w", err)
	}

	// renameio handles temp file creation, fsync, and atomic rename so a
	// reader never observes a partially-written snapshot.
	pendingFile, err := renameio.NewPendingFile(e.path)
	if err != nil {
		return fmt.Errorf("killswitchcache: create pending export file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(out); err != nil {
		return fmt.Errorf("killswitchcache: write export: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("killswitchcache: atomically replace export: %w", err)
	}
	return nil
}
