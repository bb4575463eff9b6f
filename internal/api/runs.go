// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/autonomyv2/autonomyd/internal/apierr"
	"github.com/autonomyv2/autonomyd/internal/runstore"
	"github.com/go-chi/chi/v5"
)

// defaultNoopGraph is used when a create-run request omits run_graph: a
// single-step noop graph, matching the operational-proof scenario's shape.
func defaultNoopGraph() runstore.Graph {
	return runstore.Graph{
		EntryStep: "noop",
		Steps:     map[string]runstore.StepDef{"noop": {ID: "noop", Deps: nil, Kind: "noop"}},
	}
}

type createRunRequest struct {
	Env         string                `json:"env"`
	Lane        string                `json:"lane"`
	Mode        string                `json:"mode"`
	JobType     string                `json:"job_type"`
	RequestedBy string                `json:"requested_by"`
	RunGraph    *runstore.Graph       `json:"run_graph,omitempty"`
	Params      map[string]any        `json:"params,omitempty"`
	ParentRunID string                `json:"parent_run_id,omitempty"`
}

type createRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// CreateRun handles POST /runs.
func (c *Container) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "malformed JSON body"))
		return
	}

	if req.Env == "" || req.Lane == "" || req.Mode == "" || req.JobType == "" || req.RequestedBy == "" {
		apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "env, lane, mode, job_type, and requested_by are required"))
		return
	}

	graph := defaultNoopGraph()
	if req.RunGraph != nil {
		graph = *req.RunGraph
	}

	runID, err := c.RunStore.CreateRun(r.Context(), req.Env, req.Lane, req.Mode, req.JobType, req.RequestedBy, graph, req.Params, req.ParentRunID)
	if err != nil {
		apierr.WriteHTTP(w, r, apierr.Wrap(err, "failed to create run"))
		return
	}

	writeJSON(w, http.StatusOK, createRunResponse{RunID: runID, Status: "created"})
}

// ListRuns handles GET /runs.
func (c *Container) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "limit must be an integer in [1, 200]"))
			return
		}
		limit = n
	}

	filter := runstore.Filter{
		Env:         q.Get("env"),
		Lane:        q.Get("lane"),
		Status:      q.Get("status"),
		RequestedBy: q.Get("requested_by"),
	}

	items, next, err := c.RunStore.ListRuns(r.Context(), filter, q.Get("cursor"), limit)
	if errors.Is(err, runstore.ErrInvalidCursor) {
		apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidCursor, "malformed cursor"))
		return
	}
	if err != nil {
		apierr.WriteHTTP(w, r, apierr.Wrap(err, "failed to list runs"))
		return
	}

	resp := map[string]any{"items": items}
	if next != "" {
		resp["next_cursor"] = next
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /runs/{run_id}.
func (c *Container) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	summary, err := c.RunStore.GetRun(r.Context(), runID)
	if errors.Is(err, runstore.ErrNotFound) {
		apierr.WriteHTTP(w, r, apierr.New(apierr.RunNotFound, "run not found"))
		return
	}
	if err != nil {
		apierr.WriteHTTP(w, r, apierr.Wrap(err, "failed to get run"))
		return
	}

	state, err := c.RunStore.GetRunState(r.Context(), runID)
	ticksUsed := 0
	if err == nil {
		ticksUsed = state.TicksUsed
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":       summary.RunID,
		"env":          summary.Env,
		"lane":         summary.Lane,
		"mode":         summary.Mode,
		"job_type":     summary.JobType,
		"requested_by": summary.RequestedBy,
		"parent_run_id": summary.ParentRunID,
		"status":       summary.Status,
		"created_at":   summary.CreatedAt,
		"started_at":   summary.StartedAt,
		"finished_at":  summary.FinishedAt,
		"last_error":   summary.LastError,
		"params":       summary.Params,
		"run_graph":    summary.Graph,
		"ticks_used":   ticksUsed,
	})
}

// ListRunEvents handles GET /runs/{run_id}/events.
func (c *Container) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	if _, err := c.RunStore.GetRun(r.Context(), runID); errors.Is(err, runstore.ErrNotFound) {
		apierr.WriteHTTP(w, r, apierr.New(apierr.RunNotFound, "run not found"))
		return
	} else if err != nil {
		apierr.WriteHTTP(w, r, apierr.Wrap(err, "failed to get run"))
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidRequest, "limit must be an integer in [1, 500]"))
			return
		}
		limit = n
	}

	events, err := c.Bus.Replay(r.Context(), runID, limit)
	if err != nil {
		apierr.WriteHTTP(w, r, apierr.Wrap(err, "failed to replay events"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
