// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package eventbus

import (
	"context"
	"encoding/json"

	"github.com/autonomyv2/autonomyd/internal/log"
	"github.com/redis/go-redis/v9"
)

// RedisBus wraps a MemoryBus (which remains the durable source of truth and
// local fan-out) and additionally republishes every event onto a per-run
// Redis pub/sub channel, so subscribers on other processes observe it too.
type RedisBus struct {
	mem    *MemoryBus
	client *redis.Client
}

// NewRedisBus constructs a RedisBus backed by mem for persistence and a
// Redis client connected to addr for cross-process fan-out.
func NewRedisBus(mem *MemoryBus, addr string) *RedisBus {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisBus{mem: mem, client: client}
}

func channelName(runID string) string {
	return "autonomyv2:events:" + runID
}

// Publish persists via the wrapped MemoryBus, delivers to local subscribers,
// and best-effort publishes to the run's Redis channel.
func (b *RedisBus) Publish(ctx context.Context, runID, eventType string, payload map[string]any) (Event, error) {
	event, err := b.mem.Publish(ctx, runID, eventType, payload)
	if err != nil {
		return Event{}, err
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.WithComponent("eventbus").Error().Err(err).Str("event", "eventbus.redis_marshal_failed").Msg("failed to marshal event for redis publish")
		return event, nil
	}

	if err := b.client.Publish(ctx, channelName(runID), data).Err(); err != nil {
		log.WithComponent("eventbus").Warn().Err(err).
			Str("event", "eventbus.redis_publish_failed").
			Str("run_id", runID).
			Msg("redis publish failed; event remains durable and locally delivered")
	}

	return event, nil
}

// Replay delegates to the wrapped MemoryBus; Redis holds no durable state.
func (b *RedisBus) Replay(ctx context.Context, runID string, limit int) ([]Event, error) {
	return b.mem.Replay(ctx, runID, limit)
}

// Subscribe returns a channel fed by both in-process delivery and the run's
// Redis channel, so subscribers observe events published by any process.
func (b *RedisBus) Subscribe(runID string) (<-chan Event, func()) {
	localCh, localCancel := b.mem.Subscribe(runID)

	out := make(chan Event, subscriberQueueSize)
	pubsub := b.client.Subscribe(context.Background(), channelName(runID))

	done := make(chan struct{})

	go func() {
		for {
			select {
			case e, ok := <-localCh:
				if !ok {
					return
				}
				select {
				case out <- e:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		close(done)
		localCancel()
		_ = pubsub.Close()
		// out is intentionally left unclosed: the feeder goroutines above
		// may still be mid-select when cancel runs, and closing a channel
		// concurrent goroutines can send on risks a send-on-closed panic.
		// It is abandoned for GC once both feeders observe done.
	}

	return out, cancel
}
