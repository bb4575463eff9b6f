// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/autonomyv2/autonomyd/internal/apierr"
	"github.com/autonomyv2/autonomyd/internal/audit"
)

type setLaneRequest struct {
	Env     string `json:"env"`
	Lane    string `json:"lane"`
	Enabled bool   `json:"enabled"`
}

// SetLane handles POST /kill_switch/lane (admin).
func (c *Container) SetLane(w http.ResponseWriter, r *http.Request) {
	var req setLaneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "malformed JSON body"))
		return
	}
	if req.Env == "" || req.Lane == "" {
		apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "env and lane are required"))
		return
	}

	if err := c.KillSwitch.SetLaneEnabled(r.Context(), req.Env, req.Lane, req.Enabled); err != nil {
		c.Audit.Record(r.Context(), audit.Record{
			Action:   "kill_switch.set_lane",
			Result:   "error",
			TargetID: req.Env + "/" + req.Lane,
			Payload:  map[string]any{"env": req.Env, "lane": req.Lane, "enabled": req.Enabled},
			Error:    &audit.ErrorDetail{Code: string(apierr.InternalError), Message: err.Error()},
		})
		apierr.WriteHTTP(w, r, apierr.Wrap(err, "failed to set lane kill switch"))
		return
	}

	c.Audit.Record(r.Context(), audit.Record{
		Action:   "kill_switch.set_lane",
		Result:   "success",
		TargetID: req.Env + "/" + req.Lane,
		Payload:  map[string]any{"env": req.Env, "lane": req.Lane, "enabled": req.Enabled},
	})

	writeJSON(w, http.StatusOK, map[string]any{"env": req.Env, "lane": req.Lane, "enabled": req.Enabled})
}
