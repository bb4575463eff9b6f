// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package graphticker advances one run by exactly one step per call: it
// selects the next dispatchable step, consults the policy gate, executes the
// step by kind, and persists the resulting state and events.
//
// Callers must hold the run's lease before calling TickRun; the ticker does
// not acquire or check leases itself.
package graphticker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/autonomyv2/autonomyd/internal/eventbus"
	"github.com/autonomyv2/autonomyd/internal/runstore"
)

// PolicyGate can veto dispatch of a selected step. The default set by New
// (AllowAllPolicyGate) permits everything, matching the original's
// duck-typed, optional policy_loader hook.
type PolicyGate interface {
	DispatchAllowed(state *runstore.State, step runstore.StepDef) (ok bool, reason string)
}

// AllowAllPolicyGate is the default permissive PolicyGate.
type AllowAllPolicyGate struct{}

// DispatchAllowed always allows dispatch.
func (AllowAllPolicyGate) DispatchAllowed(*runstore.State, runstore.StepDef) (bool, string) {
	return true, ""
}

// ArtifactWriter records step-level artifacts. The default set by New
// (NoopArtifactWriter) does nothing, matching the original's optional
// artifact_writer hook.
type ArtifactWriter interface {
	WriteStep(ctx context.Context, runID, stepID string, artifacts map[string]any) error
}

// NoopArtifactWriter is the default no-op ArtifactWriter.
type NoopArtifactWriter struct{}

// WriteStep does nothing and never fails.
func (NoopArtifactWriter) WriteStep(context.Context, string, string, map[string]any) error {
	return nil
}

// Ticker advances run state one step at a time.
type Ticker struct {
	store    *runstore.Store
	bus      eventbus.Bus
	policy   PolicyGate
	artifact ArtifactWriter
}

// Option configures a Ticker beyond its required store and bus.
type Option func(*Ticker)

// WithPolicyGate overrides the default permissive policy gate.
func WithPolicyGate(p PolicyGate) Option {
	return func(t *Ticker) { t.policy = p }
}

// WithArtifactWriter overrides the default no-op artifact writer.
func WithArtifactWriter(w ArtifactWriter) Option {
	return func(t *Ticker) { t.artifact = w }
}

// New constructs a Ticker over store and bus, defaulting to a permissive
// policy gate and a no-op artifact writer.
func New(store *runstore.Store, bus eventbus.Bus, opts ...Option) *Ticker {
	t := &Ticker{store: store, bus: bus, policy: AllowAllPolicyGate{}, artifact: NoopArtifactWriter{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func now() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// TickRun advances run_id by at most one step and returns the resulting
// state. Calling TickRun on a terminal run is a no-op that returns the
// unchanged state.
func (t *Ticker) TickRun(ctx context.Context, runID string) (*runstore.State, error) {
	state, err := t.store.GetRunState(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("graphticker: get state: %w", err)
	}

	// Step 1: terminality.
	if state.Status.Terminal() {
		return state, nil
	}

	mutated := false

	// Step 2: start transition.
	if state.StartedAt == "" {
		state.StartedAt = now()
		state.Status = runstore.StatusRunning
		mutated = true
		if _, err := t.bus.Publish(ctx, runID, eventbus.EventRunStarted, map[string]any{"run_id": runID}); err != nil {
			return nil, fmt.Errorf("graphticker: publish run_started: %w", err)
		}
	}

	// Step 3: step selection.
	stepID, step, found := selectStep(state)
	if !found {
		if state.Status == runstore.StatusRunning {
			state.Status = runstore.StatusSucceeded
			state.FinishedAt = now()
			if _, err := t.bus.Publish(ctx, runID, eventbus.EventRunSucceeded, map[string]any{"run_id": runID}); err != nil {
				return nil, fmt.Errorf("graphticker: publish run_succeeded: %w", err)
			}
			if err := t.store.PutRunState(ctx, runID, state); err != nil {
				return nil, fmt.Errorf("graphticker: persist: %w", err)
			}
			return state, nil
		}
		if mutated {
			if err := t.store.PutRunState(ctx, runID, state); err != nil {
				return nil, fmt.Errorf("graphticker: persist: %w", err)
			}
		}
		return state, nil
	}

	// Step 4: policy gate.
	if ok, reason := t.policy.DispatchAllowed(state, step); !ok {
		state.Status = runstore.StatusBlocked
		state.LastError = &runstore.LastError{Stage: "dispatch", Reason: reason, StepID: stepID}
		if _, err := t.bus.Publish(ctx, runID, eventbus.EventRunBlocked, map[string]any{"run_id": runID, "reason": reason, "step_id": stepID}); err != nil {
			return nil, fmt.Errorf("graphticker: publish run_blocked: %w", err)
		}
		if err := t.store.PutRunState(ctx, runID, state); err != nil {
			return nil, fmt.Errorf("graphticker: persist: %w", err)
		}
		return state, nil
	}

	// Step 5: step execution. Every call that reaches dispatch consumes one
	// tick, regardless of whether the dispatched step ultimately succeeds.
	if _, err := t.bus.Publish(ctx, runID, eventbus.EventStepStarted, map[string]any{"run_id": runID, "step_id": stepID}); err != nil {
		return nil, fmt.Errorf("graphticker: publish step_started: %w", err)
	}
	state.TicksUsed++

	switch normalizeKind(step.Kind) {
	case "noop":
		state.StepStates[stepID] = runstore.StepState{Status: runstore.StepSucceeded, UpdatedAt: now()}
		if err := t.artifact.WriteStep(ctx, runID, stepID, nil); err != nil {
			return nil, fmt.Errorf("graphticker: write artifact: %w", err)
		}
		if _, err := t.bus.Publish(ctx, runID, eventbus.EventStepSucceeded, map[string]any{"run_id": runID, "step_id": stepID}); err != nil {
			return nil, fmt.Errorf("graphticker: publish step_succeeded: %w", err)
		}
	default:
		reason := "unsupported_kind:" + step.Kind
		state.StepStates[stepID] = runstore.StepState{Status: runstore.StepFailed, UpdatedAt: now()}
		state.Status = runstore.StatusFailed
		state.FinishedAt = now()
		state.LastError = &runstore.LastError{Stage: "step", Reason: reason, StepID: stepID}
		if _, err := t.bus.Publish(ctx, runID, eventbus.EventStepFailed, map[string]any{"run_id": runID, "step_id": stepID, "reason": reason}); err != nil {
			return nil, fmt.Errorf("graphticker: publish step_failed: %w", err)
		}
		if err := t.store.PutRunState(ctx, runID, state); err != nil {
			return nil, fmt.Errorf("graphticker: persist: %w", err)
		}
		return state, nil
	}

	// Step 6: completion probe.
	if _, _, found := selectStep(state); !found && state.Status == runstore.StatusRunning {
		state.Status = runstore.StatusSucceeded
		state.FinishedAt = now()
		if _, err := t.bus.Publish(ctx, runID, eventbus.EventRunSucceeded, map[string]any{"run_id": runID}); err != nil {
			return nil, fmt.Errorf("graphticker: publish run_succeeded: %w", err)
		}
		if err := t.store.PutRunState(ctx, runID, state); err != nil {
			return nil, fmt.Errorf("graphticker: persist: %w", err)
		}
		return state, nil
	}

	// Step 7: persist.
	if err := t.store.PutRunState(ctx, runID, state); err != nil {
		return nil, fmt.Errorf("graphticker: persist: %w", err)
	}
	return state, nil
}

func normalizeKind(kind string) string {
	out := make([]byte, len(kind))
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// selectStep computes the ordered step list (entry_step first, then the
// remaining step ids in lexicographic order) and returns the first whose own
// state is not succeeded and whose every dep has succeeded.
func selectStep(state *runstore.State) (stepID string, step runstore.StepDef, found bool) {
	order := orderedStepIDs(state.Graph)
	for _, id := range order {
		def := state.Graph.Steps[id]
		if stepStatus(state, id) == runstore.StepSucceeded {
			continue
		}
		if allDepsSucceeded(state, def.Deps) {
			return id, def, true
		}
	}
	return "", runstore.StepDef{}, false
}

func orderedStepIDs(graph runstore.Graph) []string {
	seen := make(map[string]bool, len(graph.Steps))
	var order []string

	if graph.EntryStep != "" {
		if _, ok := graph.Steps[graph.EntryStep]; ok {
			order = append(order, graph.EntryStep)
			seen[graph.EntryStep] = true
		}
	}

	rest := make([]string, 0, len(graph.Steps))
	for id := range graph.Steps {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func stepStatus(state *runstore.State, stepID string) runstore.StepStatus {
	if s, ok := state.StepStates[stepID]; ok {
		return s.Status
	}
	return runstore.StepPending
}

func allDepsSucceeded(state *runstore.State, deps []string) bool {
	for _, dep := range deps {
		if stepStatus(state, dep) != runstore.StepSucceeded {
			return false
		}
	}
	return true
}
