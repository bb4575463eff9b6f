// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/autonomyv2/autonomyd/internal/config"
	"github.com/autonomyv2/autonomyd/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the server starts
// accepting connections.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDBPathWritable(logger, cfg.DBPath); err != nil {
		return fmt.Errorf("database path check failed: %w", err)
	}

	if err := checkListenAddr(logger, cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}

	if cfg.WorkerEnabled && cfg.AdminToken == "" {
		logger.Warn().Msg("worker is enabled but ADMIN_TOKEN is unset; admin-gated control endpoints will reject all requests")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

// checkDBPathWritable confirms the directory holding the sqlite file is
// writable before Open attempts to create or extend it.
func checkDBPathWritable(logger zerolog.Logger, dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("database directory is not writable: %s (%w)", dir, err)
	}
	_ = os.Remove(probe)

	logger.Info().Str("db_path", dbPath).Msg("database path is writable")
	return nil
}

// checkListenAddr validates that the configured listen address parses as a
// host:port pair with a valid port number.
func checkListenAddr(logger zerolog.Logger, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}

	logger.Info().Str("addr", addr).Msg("listen address is valid")
	return nil
}
