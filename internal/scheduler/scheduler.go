// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scheduler picks the next runnable run within a lane and enforces
// per-invocation tick caps. It owns no storage of its own; it reads runs_v2
// through a shared *sql.DB.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Caps bounds one worker invocation. Only MaxTotalTicksPerInvocation is
// enforced; the other two fields are recognized, round-tripped, and
// deliberately never enforced (see DESIGN.md).
type Caps struct {
	MaxTotalTicksPerInvocation   int `json:"max_total_ticks_per_invocation"`
	MaxTicksPerRunPerInvocation  int `json:"max_ticks_per_run_per_invocation"`
	DailyTickCap                 int `json:"daily_tick_cap"`
}

// Scheduler selects the next runnable run id within an (env, lane).
type Scheduler struct {
	db *sql.DB
}

// New wraps an already-migrated database handle.
func New(db *sql.DB) *Scheduler {
	return &Scheduler{db: db}
}

// ErrNone is returned by NextRunId when no runnable run exists.
var ErrNone = errors.New("scheduler: no runnable run")

// NextRunId returns the oldest-by-created_at run id among queued/running
// runs in (env, lane); runs created in the same second are taken in
// insertion order. It returns ErrNone when none exists.
func (s *Scheduler) NextRunId(ctx context.Context, env, lane string) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM runs_v2
		WHERE env = ? AND lane = ? AND status IN ('queued', 'running')
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`, env, lane).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNone
	}
	if err != nil {
		return "", fmt.Errorf("scheduler: next run id: %w", err)
	}
	return runID, nil
}

// EnforceCaps reports whether ticksUsed has reached caps'
// MaxTotalTicksPerInvocation ceiling.
func EnforceCaps(caps Caps, ticksUsed int) (capReached bool) {
	return ticksUsed >= caps.MaxTotalTicksPerInvocation
}
