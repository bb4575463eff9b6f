// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eventbus

import (
	"context"
	"database/sql"
)

// Bus is the EventBus contract: durable, ordered publish plus best-effort
// live fan-out. Implementations MUST persist before delivering to live
// subscribers, and a failure of live delivery MUST NOT fail Publish.
type Bus interface {
	Publish(ctx context.Context, runID, eventType string, payload map[string]any) (Event, error)
	Replay(ctx context.Context, runID string, limit int) ([]Event, error)
	Subscribe(runID string) (ch <-chan Event, cancel func())
}

// New selects a Bus implementation by backend name ("memory" or "redis").
// An unrecognized backend, or a "redis" backend with no address configured,
// falls back to "memory".
func New(backend string, db *sql.DB, redisAddr string) Bus {
	mem := NewMemoryBus(db)
	if backend == "redis" && redisAddr != "" {
		return NewRedisBus(mem, redisAddr)
	}
	return mem
}
