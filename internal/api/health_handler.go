// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/autonomyv2/autonomyd/internal/version"
	"github.com/autonomyv2/autonomyd/internal/worker"
)

func (c *Container) guardStatus() worker.GuardStatus {
	return worker.CanStartWorker(c.Config.WorkerEnabled, c.Config.WorkerPID, c.PID)
}

// ServeHealth handles GET /api/health: runtime provenance plus the worker
// guard status, supplementing the generic liveness/readiness probes exposed
// by internal/health.
func (c *Container) ServeHealth(w http.ResponseWriter, r *http.Request) {
	guard := c.guardStatus()

	writeJSON(w, http.StatusOK, map[string]any{
		"version": version.Version,
		"commit":  version.Commit,
		"build_date": version.Date,
		"db_path": c.Config.DBPath,
		"autonomy_v2_worker": map[string]any{
			"enabled":              guard.Enabled,
			"reason":               guard.Reason,
			"pid":                  c.PID,
			"configured_pid":       c.Config.WorkerPID,
			"tick_interval_seconds": int(c.Config.WorkerTickInterval.Seconds()),
			"env":                  c.Config.WorkerEnv,
			"lane":                 c.Config.WorkerLane,
		},
	})
}
