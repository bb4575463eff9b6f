// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/autonomyv2/autonomyd/internal/apierr"
	"github.com/autonomyv2/autonomyd/internal/audit"
	"github.com/autonomyv2/autonomyd/internal/scheduler"
)

type tickOnceRequest struct {
	Env     string          `json:"env"`
	Lane    string          `json:"lane"`
	OwnerID string          `json:"owner_id"`
	Caps    scheduler.Caps  `json:"caps"`
}

// TickOnce handles POST /worker/tick_once (admin).
func (c *Container) TickOnce(w http.ResponseWriter, r *http.Request) {
	var req tickOnceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "malformed JSON body"))
		return
	}
	if req.Env == "" || req.Lane == "" || req.OwnerID == "" {
		apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "env, lane, and owner_id are required"))
		return
	}
	if req.Caps.MaxTotalTicksPerInvocation <= 0 {
		req.Caps.MaxTotalTicksPerInvocation = 1
	}

	summary, err := c.Worker.TickOnce(r.Context(), req.Env, req.Lane, req.OwnerID, req.Caps, 15*time.Second)
	if err != nil {
		c.Audit.Record(r.Context(), audit.Record{
			Action:   "tick_once",
			Result:   "error",
			TargetID: req.Env + "/" + req.Lane,
			Payload:  map[string]any{"env": req.Env, "lane": req.Lane, "owner_id": req.OwnerID},
			Error:    &audit.ErrorDetail{Code: string(apierr.TickError), Message: err.Error()},
		})
		apierr.WriteHTTP(w, r, apierr.New(apierr.TickError, "tick failed").WithDetail(err.Error()))
		return
	}

	status := "idle"
	if summary.RunsTicked > 0 {
		status = "success"
	}

	c.Audit.Record(r.Context(), audit.Record{
		Action:   "tick_once",
		Result:   status,
		TargetID: req.Env + "/" + req.Lane,
		Payload:  map[string]any{"env": req.Env, "lane": req.Lane, "owner_id": req.OwnerID, "runs_ticked": summary.RunsTicked},
	})

	resp := map[string]any{"status": status, "ticked_runs": summary.RunsTicked}
	if status == "idle" {
		resp["reason"] = "no runnable run, kill-switch disabled, or cap reached"
	} else {
		resp["events_added"] = summary.TicksUsed
	}
	writeJSON(w, http.StatusOK, resp)
}

// WorkerStatus handles GET /worker/status.
func (c *Container) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	env := c.Config.WorkerEnv
	lane := c.Config.WorkerLane

	var running, pending int
	_ = c.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs_v2 WHERE env = ? AND lane = ? AND status = 'running'`, env, lane).Scan(&running)
	_ = c.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs_v2 WHERE env = ? AND lane = ? AND status = 'queued'`, env, lane).Scan(&pending)

	laneEnabled, blobPresent, err := c.KillSwitch.LaneEnabled(ctx, env, lane)
	if err != nil {
		apierr.WriteHTTP(w, r, apierr.Wrap(err, "failed to read kill switch"))
		return
	}

	guard := c.guardStatus()

	writeJSON(w, http.StatusOK, map[string]any{
		"guard": guard,
		"config": map[string]any{
			"kill_switch_v2_present": blobPresent,
		},
		"kill_switch": map[string]any{
			"env":          env,
			"lane":         lane,
			"lane_enabled": laneEnabled,
		},
		"worker": map[string]any{
			"running": running,
			"pending": pending,
			"env":     env,
			"lane":    lane,
		},
	})
}
