// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package eventbus owns the per-run, append-only, totally ordered event log
// described by the autonomy data model, plus best-effort live fan-out to
// in-process (and optionally Redis-backed) subscribers.
package eventbus

// Well-known event types published by the worker and graph ticker.
const (
	EventRunStarted          = "RUN_STARTED"
	EventRunSucceeded        = "RUN_SUCCEEDED"
	EventRunBlocked          = "RUN_BLOCKED"
	EventStepStarted         = "STEP_STARTED"
	EventStepSucceeded       = "STEP_SUCCEEDED"
	EventStepFailed          = "STEP_FAILED"
	EventWorkerTickRequested = "WORKER_V2_TICK_REQUESTED"
)

// Event is one row of a run's ordered event log.
type Event struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"run_id"`
	Ts        string         `json:"ts"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// subscriberQueueSize bounds the per-subscriber live fan-out channel. When a
// slow subscriber's queue is full, that event is not delivered to it rather
// than blocking the publisher; the subscriber stays registered.
const subscriberQueueSize = 64
