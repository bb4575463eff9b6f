// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Config is the fully resolved runtime configuration for the autonomyd
// daemon, assembled from environment variables by Load.
type Config struct {
	DBPath     string
	ListenAddr string
	AdminToken string
	LogLevel   string

	WorkerEnabled      bool
	WorkerPID          int
	WorkerTickInterval time.Duration
	WorkerEnv          string
	WorkerLane         string

	EventBusBackend string
	RedisAddr       string

	KillSwitchOverrideDir string
	ConfigExportPath      string
}

// Load resolves Config from the process environment, applying the same
// defaults documented for each AUTONOMY_V2_* / FORGE_* variable.
func Load() Config {
	return Config{
		DBPath:     ParseString("FORGE_DB_PATH", "autonomy_v2.db"),
		ListenAddr: ParseString("AUTONOMY_V2_LISTEN_ADDR", ":8080"),
		AdminToken: ParseString("ADMIN_TOKEN", ""),
		LogLevel:   ParseString("AUTONOMY_V2_LOG_LEVEL", "info"),

		WorkerEnabled:      ParseBool("AUTONOMY_V2_WORKER_ENABLED", false),
		WorkerPID:          ParseInt("AUTONOMY_V2_WORKER_PID", 0),
		WorkerTickInterval: time.Duration(ParseInt("AUTONOMY_V2_WORKER_TICK_INTERVAL_SECONDS", 3)) * time.Second,
		WorkerEnv:          ParseString("AUTONOMY_V2_WORKER_ENV", "local"),
		WorkerLane:         ParseString("AUTONOMY_V2_WORKER_LANE", "default"),

		EventBusBackend: ParseString("AUTONOMY_V2_EVENTBUS_BACKEND", "memory"),
		RedisAddr:       ParseString("AUTONOMY_V2_REDIS_ADDR", ""),

		KillSwitchOverrideDir: ParseString("AUTONOMY_V2_KILLSWITCH_OVERRIDE_DIR", ""),
		ConfigExportPath:      ParseString("AUTONOMY_V2_CONFIG_EXPORT_PATH", ""),
	}
}
