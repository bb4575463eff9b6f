// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autonomyv2/autonomyd/internal/api"
	"github.com/autonomyv2/autonomyd/internal/config"
	"github.com/autonomyv2/autonomyd/internal/health"
	xglog "github.com/autonomyv2/autonomyd/internal/log"
	"github.com/autonomyv2/autonomyd/internal/persistence/sqlite"
	"github.com/autonomyv2/autonomyd/internal/version"
	"github.com/autonomyv2/autonomyd/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "storage" {
		os.Exit(runStorageCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "autonomyd", Version: version.Version})
	logger := xglog.WithComponent("main")

	cfg := config.Load()
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: "autonomyd", Version: version.Version})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str("event", "startup.check_failed").Msg("startup checks failed")
	}

	db, err := sqlite.Open(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("event", "sqlite.open_failed").Msg("failed to open database")
	}
	defer func() { _ = db.Close() }()

	if err := sqlite.Bootstrap(db); err != nil {
		logger.Fatal().Err(err).Str("event", "sqlite.bootstrap_failed").Msg("failed to bootstrap schema")
	}

	healthMgr := health.NewManager(version.Version)
	healthMgr.RegisterChecker(health.NewDBChecker(db))
	healthMgr.RegisterChecker(health.NewDBIntegrityChecker(cfg.DBPath))

	container, err := api.NewContainer(cfg, db, healthMgr)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "container.init_failed").Msg("failed to initialise API container")
	}
	defer func() { _ = container.LaneCache.Close() }()

	if err := container.KillSwitch.EnsureDefaultBlob(ctx, "system"); err != nil {
		logger.Fatal().Err(err).Str("event", "config.ensure_default_failed").Msg("failed to seed kill_switch_v2 default")
	}
	router := container.NewRouter()

	server := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	if err := container.OverrideWatcher.Start(gctx); err != nil {
		logger.Warn().Err(err).Str("event", "killswitch.override_watcher_start_failed").Msg("failed to start kill switch override watcher")
	}
	g.Go(func() error {
		return container.Exporter.Run(gctx)
	})

	guard := worker.CanStartWorker(cfg.WorkerEnabled, cfg.WorkerPID, container.PID)
	if guard.Enabled && worker.MarkStartedOnce() {
		g.Go(func() error {
			return container.Worker.Loop(gctx, cfg.WorkerEnv, cfg.WorkerLane, cfg.WorkerTickInterval)
		})
	} else {
		logger.Info().Bool("enabled", guard.Enabled).Str("reason", guard.Reason).Msg("background worker loop not started")
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Str("event", "run_failed").Msg("autonomyd exited with error")
	}
}
