// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api wires the Autonomy V2 Control API: the HTTP surface over the
// run store, event bus, scheduler, worker, and config registry.
package api

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/autonomyv2/autonomyd/internal/audit"
	"github.com/autonomyv2/autonomyd/internal/config"
	"github.com/autonomyv2/autonomyd/internal/configregistry"
	"github.com/autonomyv2/autonomyd/internal/eventbus"
	"github.com/autonomyv2/autonomyd/internal/graphticker"
	"github.com/autonomyv2/autonomyd/internal/health"
	"github.com/autonomyv2/autonomyd/internal/killswitchcache"
	"github.com/autonomyv2/autonomyd/internal/leasestore"
	"github.com/autonomyv2/autonomyd/internal/runstore"
	"github.com/autonomyv2/autonomyd/internal/scheduler"
	"github.com/autonomyv2/autonomyd/internal/worker"
)

// Container holds every collaborator a Control API handler needs. It is
// built once at startup and passed explicitly into route registration; there
// is no package-level mutable state.
type Container struct {
	Config     config.Config
	DB         *sql.DB
	RunStore   *runstore.Store
	Bus        eventbus.Bus
	Scheduler  *scheduler.Scheduler
	Leases     *leasestore.Store
	Registry   *configregistry.Registry
	KillSwitch *configregistry.KillSwitch
	Ticker     *graphticker.Ticker
	Worker     *worker.Worker
	Audit      *audit.Logger
	Health     *health.Manager
	PID        int

	LaneCache       *killswitchcache.Cache
	OverrideWatcher *killswitchcache.OverrideWatcher
	Exporter        *killswitchcache.Exporter
}

// NewContainer composes a Container from an already-migrated database handle
// and resolved configuration.
func NewContainer(cfg config.Config, db *sql.DB, healthMgr *health.Manager) (*Container, error) {
	runStore := runstore.New(db)
	bus := eventbus.New(cfg.EventBusBackend, db, cfg.RedisAddr)
	sched := scheduler.New(db)
	leases := leasestore.New(db)
	registry := configregistry.New(db)

	laneCache, err := killswitchcache.Open("")
	if err != nil {
		return nil, fmt.Errorf("api: open lane cache: %w", err)
	}
	killSwitch := configregistry.NewKillSwitch(registry).WithCache(laneCache)
	overrideWatcher := killswitchcache.NewOverrideWatcher(cfg.KillSwitchOverrideDir, laneCache)
	exporter := killswitchcache.NewExporter(registry, cfg.ConfigExportPath, 30*time.Second)

	ticker := graphticker.New(runStore, bus)
	w := worker.New(db, sched, leases, killSwitch, ticker, bus)
	auditLogger := audit.NewLogger(db)

	return &Container{
		Config:          cfg,
		DB:              db,
		RunStore:        runStore,
		Bus:             bus,
		Scheduler:       sched,
		Leases:          leases,
		Registry:        registry,
		KillSwitch:      killSwitch,
		Ticker:          ticker,
		Worker:          w,
		Audit:           auditLogger,
		Health:          healthMgr,
		PID:             os.Getpid(),
		LaneCache:       laneCache,
		OverrideWatcher: overrideWatcher,
		Exporter:        exporter,
	}, nil
}
