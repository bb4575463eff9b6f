// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker composes the scheduler, lease store, and graph ticker into
// the single-invocation tick loop that advances runs within one (env, lane).
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autonomyv2/autonomyd/internal/configregistry"
	"github.com/autonomyv2/autonomyd/internal/eventbus"
	"github.com/autonomyv2/autonomyd/internal/graphticker"
	"github.com/autonomyv2/autonomyd/internal/leasestore"
	"github.com/autonomyv2/autonomyd/internal/log"
	"github.com/autonomyv2/autonomyd/internal/scheduler"
)

// Summary reports the outcome of one TickOnce invocation.
type Summary struct {
	OwnerID   string `json:"owner_id"`
	Env       string `json:"env"`
	Lane      string `json:"lane"`
	TicksUsed int    `json:"ticks_used"`
	RunsTicked int   `json:"runs_ticked"`
}

// Worker composes the scheduler, lease store, kill switch, and ticker.
type Worker struct {
	db         *sql.DB
	scheduler  *scheduler.Scheduler
	leases     *leasestore.Store
	killSwitch *configregistry.KillSwitch
	ticker     *graphticker.Ticker
	bus        eventbus.Bus
}

// New composes a Worker from its collaborators.
func New(db *sql.DB, sched *scheduler.Scheduler, leases *leasestore.Store, killSwitch *configregistry.KillSwitch, ticker *graphticker.Ticker, bus eventbus.Bus) *Worker {
	return &Worker{db: db, scheduler: sched, leases: leases, killSwitch: killSwitch, ticker: ticker, bus: bus}
}

// TickOnce runs up to caps.MaxTotalTicksPerInvocation iterations of
// select-acquire-tick-release against (env, lane), and reports a summary.
// It never returns an error for ordinary idle/blocked conditions; an error
// return indicates a storage-layer failure.
func (w *Worker) TickOnce(ctx context.Context, env, lane, ownerID string, caps scheduler.Caps, leaseTTL time.Duration) (Summary, error) {
	summary := Summary{OwnerID: ownerID, Env: env, Lane: lane}

	for i := 0; ; i++ {
		if scheduler.EnforceCaps(caps, summary.TicksUsed) {
			break
		}

		enabled, _, err := w.killSwitch.LaneEnabled(ctx, env, lane)
		if err != nil {
			return summary, fmt.Errorf("worker: kill switch: %w", err)
		}
		if !enabled {
			break
		}

		runID, err := w.scheduler.NextRunId(ctx, env, lane)
		if errors.Is(err, scheduler.ErrNone) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("worker: next run id: %w", err)
		}

		acquired, err := w.leases.Acquire(ctx, runID, ownerID, leaseTTL)
		if err != nil {
			return summary, fmt.Errorf("worker: acquire lease: %w", err)
		}
		if !acquired {
			// Lost the race to another owner; do not count a tick, try again.
			continue
		}

		summary.TicksUsed++
		if err := w.tickLeased(ctx, runID, env, lane, ownerID, leaseTTL); err != nil {
			return summary, err
		}
		summary.RunsTicked++
	}

	return summary, nil
}

// tickLeased runs the publish-tick-renew-release sequence for a run whose
// lease the caller already holds. Release always runs, even on error.
func (w *Worker) tickLeased(ctx context.Context, runID, env, lane, ownerID string, leaseTTL time.Duration) (err error) {
	defer func() {
		if releaseErr := w.leases.Release(ctx, runID, ownerID); releaseErr != nil && err == nil {
			err = fmt.Errorf("worker: release lease: %w", releaseErr)
		}
	}()

	if _, pubErr := w.bus.Publish(ctx, runID, eventbus.EventWorkerTickRequested, map[string]any{
		"run_id": runID, "owner_id": ownerID, "env": env, "lane": lane,
	}); pubErr != nil {
		return fmt.Errorf("worker: publish tick_requested: %w", pubErr)
	}

	if _, tickErr := w.ticker.TickRun(ctx, runID); tickErr != nil {
		log.WithComponent("worker").Error().Err(tickErr).Str("run_id", runID).Msg("tick failed")
		return fmt.Errorf("worker: tick run: %w", tickErr)
	}

	if _, renewErr := w.leases.Renew(ctx, runID, ownerID, leaseTTL); renewErr != nil {
		log.WithComponent("worker").Warn().Err(renewErr).Str("run_id", runID).Msg("best-effort lease renew failed")
	}

	return nil
}
