// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an addressed run does not exist.
var ErrNotFound = errors.New("runstore: run not found")

const schemaVersionV2 = "v2"

// Store persists runs and their state blobs over a shared *sql.DB. GetRunState
// and PutRunState for the same run_id are only safe concurrently when the
// caller holds that run's lease (see leasestore).
type Store struct {
	db *sql.DB
}

// New wraps an already-migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func now() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// CreateRun inserts the run row and its initial state blob atomically and
// returns the assigned run_id.
func (s *Store) CreateRun(ctx context.Context, env, lane, mode, jobType, requestedBy string, graph Graph, params map[string]any, parentRunID string) (string, error) {
	runID := uuid.New().String()
	ts := now()

	graphJSON, err := json.Marshal(graph)
	if err != nil {
		return "", fmt.Errorf("runstore: marshal graph: %w", err)
	}

	var paramsJSON sql.NullString
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("runstore: marshal params: %w", err)
		}
		paramsJSON = sql.NullString{String: string(b), Valid: true}
	}

	state := State{
		SchemaVersion: schemaVersionV2,
		Status:        StatusQueued,
		Graph:         graph,
		StepStates:    map[string]StepState{},
		Artifacts:     map[string]any{},
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("runstore: marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("runstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var parentID sql.NullString
	if parentRunID != "" {
		parentID = sql.NullString{String: parentRunID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs_v2 (run_id, schema_version, status, env, lane, mode, job_type, requested_by, parent_run_id, created_at, run_graph_json, params_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, schemaVersionV2, string(StatusQueued), env, lane, mode, jobType, requestedBy, parentID, ts, string(graphJSON), paramsJSON)
	if err != nil {
		return "", fmt.Errorf("runstore: insert run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_state_v2 (run_id, state_json, updated_at) VALUES (?, ?, ?)
	`, runID, string(stateJSON), ts)
	if err != nil {
		return "", fmt.Errorf("runstore: insert state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("runstore: commit: %w", err)
	}

	return runID, nil
}

// GetRunState reads the current state blob for run_id.
func (s *Store) GetRunState(ctx context.Context, runID string) (*State, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM run_state_v2 WHERE run_id = ?`, runID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("runstore: get state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("runstore: unmarshal state: %w", err)
	}
	return &state, nil
}

// PutRunState replaces the state blob and updates the run row's summary
// columns atomically. started_at follows COALESCE-first-nonnull semantics:
// once set, it never moves.
func (s *Store) PutRunState(ctx context.Context, runID string, state *State) error {
	ts := now()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("runstore: marshal state: %w", err)
	}

	var lastErrorJSON sql.NullString
	if state.LastError != nil {
		b, err := json.Marshal(state.LastError)
		if err != nil {
			return fmt.Errorf("runstore: marshal last_error: %w", err)
		}
		lastErrorJSON = sql.NullString{String: string(b), Valid: true}
	}

	var startedAt, finishedAt sql.NullString
	if state.StartedAt != "" {
		startedAt = sql.NullString{String: state.StartedAt, Valid: true}
	}
	if state.FinishedAt != "" {
		finishedAt = sql.NullString{String: state.FinishedAt, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("runstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs_v2
		SET status = ?,
		    started_at = COALESCE(started_at, ?),
		    finished_at = ?,
		    last_error_json = ?
		WHERE run_id = ?
	`, string(state.Status), startedAt, finishedAt, lastErrorJSON, runID)
	if err != nil {
		return fmt.Errorf("runstore: update run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("runstore: rows affected: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE run_state_v2 SET state_json = ?, updated_at = ? WHERE run_id = ?
	`, string(stateJSON), ts, runID)
	if err != nil {
		return fmt.Errorf("runstore: update state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("runstore: commit: %w", err)
	}
	return nil
}

// GetRun reads the summary columns for run_id without touching the state
// blob.
func (s *Store) GetRun(ctx context.Context, runID string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, schema_version, status, env, lane, mode, job_type, requested_by,
		       parent_run_id, created_at, started_at, finished_at, last_error_json, run_graph_json, params_json
		FROM runs_v2 WHERE run_id = ?
	`, runID)

	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("runstore: get run: %w", err)
	}
	return summary, nil
}

// ListRuns returns runs matching filter, ordered created_at desc, run_id
// desc, paginated by an opaque "created_at|run_id" cursor.
func (s *Store) ListRuns(ctx context.Context, filter Filter, cursor string, limit int) ([]Summary, string, error) {
	cur, err := decodeRunListCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT run_id, schema_version, status, env, lane, mode, job_type, requested_by,
		       parent_run_id, created_at, started_at, finished_at, last_error_json, run_graph_json, params_json
		FROM runs_v2 WHERE 1=1`
	args := []any{}

	if filter.Env != "" {
		query += ` AND env = ?`
		args = append(args, filter.Env)
	}
	if filter.Lane != "" {
		query += ` AND lane = ?`
		args = append(args, filter.Lane)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.RequestedBy != "" {
		query += ` AND requested_by = ?`
		args = append(args, filter.RequestedBy)
	}
	if cur != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND run_id < ?))`
		args = append(args, cur.CreatedAt, cur.CreatedAt, cur.RunID)
	}

	query += ` ORDER BY created_at DESC, run_id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("runstore: list runs: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, "", fmt.Errorf("runstore: scan run: %w", err)
		}
		summaries = append(summaries, *sum)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("runstore: list runs rows: %w", err)
	}

	var next string
	if len(summaries) > limit {
		last := summaries[limit-1]
		next = runListCursor{CreatedAt: last.CreatedAt, RunID: last.RunID}.encode()
		summaries = summaries[:limit]
	}

	return summaries, next, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*Summary, error) {
	var sum Summary
	var requestedBy, parentRunID, startedAt, finishedAt sql.NullString
	var lastErrorJSON, paramsJSON sql.NullString
	var graphJSON, status string

	if err := row.Scan(&sum.RunID, &sum.SchemaVersion, &status, &sum.Env, &sum.Lane, &sum.Mode, &sum.JobType,
		&requestedBy, &parentRunID, &sum.CreatedAt, &startedAt, &finishedAt, &lastErrorJSON, &graphJSON, &paramsJSON); err != nil {
		return nil, err
	}

	sum.Status = Status(status)
	sum.RequestedBy = requestedBy.String
	sum.ParentRunID = parentRunID.String
	sum.StartedAt = startedAt.String
	sum.FinishedAt = finishedAt.String

	if lastErrorJSON.Valid {
		var le LastError
		if err := json.Unmarshal([]byte(lastErrorJSON.String), &le); err != nil {
			return nil, fmt.Errorf("runstore: unmarshal last_error: %w", err)
		}
		sum.LastError = &le
	}

	var graph Graph
	if err := json.Unmarshal([]byte(graphJSON), &graph); err != nil {
		return nil, fmt.Errorf("runstore: unmarshal graph: %w", err)
	}
	sum.Graph = graph

	if paramsJSON.Valid {
		var params map[string]any
		if err := json.Unmarshal([]byte(paramsJSON.String), &params); err != nil {
			return nil, fmt.Errorf("runstore: unmarshal params: %w", err)
		}
		sum.Params = params
	}

	return &sum, nil
}
