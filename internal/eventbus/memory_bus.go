// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/autonomyv2/autonomyd/internal/log"
)

// MemoryBus persists events to run_events_v2 and fans them out to
// in-process subscribers. It is the default EventBus backend.
type MemoryBus struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[string][]chan Event
}

// NewMemoryBus wraps an already-migrated database handle.
func NewMemoryBus(db *sql.DB) *MemoryBus {
	return &MemoryBus{db: db, subs: make(map[string][]chan Event)}
}

// Publish persists the event, then best-effort delivers it to any live
// subscriber for run_id. Delivery never blocks the caller and never fails
// the publish.
func (b *MemoryBus) Publish(ctx context.Context, runID, eventType string, payload map[string]any) (Event, error) {
	ts := time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)

	var payloadJSON sql.NullString
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("eventbus: marshal payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO run_events_v2 (run_id, ts, event_type, payload_json) VALUES (?, ?, ?, ?)
	`, runID, ts, eventType, payloadJSON)
	if err != nil {
		return Event{}, fmt.Errorf("eventbus: insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, fmt.Errorf("eventbus: last insert id: %w", err)
	}

	event := Event{ID: id, RunID: runID, Ts: ts, EventType: eventType, Payload: payload}
	b.deliver(runID, event)
	return event, nil
}

func (b *MemoryBus) deliver(runID string, event Event) {
	b.mu.Lock()
	subs := append([]chan Event(nil), b.subs[runID]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			log.WithComponent("eventbus").Warn().
				Str("event", "eventbus.subscriber_dropped").
				Str("run_id", runID).
				Msg("slow subscriber dropped a live event")
		}
	}
}

// Replay returns up to limit events for run_id ordered (ts asc, id asc).
func (b *MemoryBus) Replay(ctx context.Context, runID string, limit int) ([]Event, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, run_id, ts, event_type, payload_json
		FROM run_events_v2 WHERE run_id = ? ORDER BY ts ASC, id ASC LIMIT ?
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("eventbus: replay: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payloadJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Ts, &e.EventType, &payloadJSON); err != nil {
			return nil, fmt.Errorf("eventbus: scan event: %w", err)
		}
		if payloadJSON.Valid {
			if err := json.Unmarshal([]byte(payloadJSON.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("eventbus: unmarshal payload: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventbus: replay rows: %w", err)
	}
	return events, nil
}

// Subscribe registers a bounded live fan-out channel for run_id. The
// returned cancel func MUST be called to release the subscription.
func (b *MemoryBus) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberQueueSize)

	b.mu.Lock()
	b.subs[runID] = append(b.subs[runID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chs := b.subs[runID]
		for i, c := range chs {
			if c == ch {
				b.subs[runID] = append(chs[:i], chs[i+1:]...)
				break
			}
		}
		if len(b.subs[runID]) == 0 {
			delete(b.subs, runID)
		}
		close(ch)
	}

	return ch, cancel
}
