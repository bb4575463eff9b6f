// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package runstore owns the Run and Run State Blob: the durable record of
// one job instance and the mutable progress blob a worker advances while
// holding that run's lease.
package runstore

// Status is a run's lifecycle stage. The terminal set is absorbing: once a
// run reaches succeeded, failed, blocked, or canceled it never leaves.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether s is one of the absorbing terminal statuses.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusBlocked, StatusCanceled:
		return true
	default:
		return false
	}
}

// StepStatus is the per-step progress marker inside a run's state blob.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepDef is one node of a run graph.
type StepDef struct {
	ID   string   `json:"id"`
	Deps []string `json:"deps"`
	Kind string   `json:"kind"`
}

// Graph is the immutable DAG of steps embedded in a run at creation time.
type Graph struct {
	EntryStep string             `json:"entry_step"`
	Steps     map[string]StepDef `json:"steps"`
}

// StepState is the mutable progress record for one step.
type StepState struct {
	Status    StepStatus `json:"status"`
	UpdatedAt string     `json:"updated_at,omitempty"`
}

// LastError is the structured failure recorded on a run's state when a step
// or the dispatch policy rejects progress.
type LastError struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	StepID string `json:"step_id,omitempty"`
}

// State is the whole-blob, whole-replace mutable progress record for a run.
type State struct {
	SchemaVersion string               `json:"schema_version"`
	Status        Status               `json:"status"`
	Graph         Graph                `json:"run_graph"`
	StepStates    map[string]StepState `json:"step_states"`
	Artifacts     map[string]any       `json:"artifacts"`
	StartedAt     string               `json:"started_at,omitempty"`
	FinishedAt    string               `json:"finished_at,omitempty"`
	LastError     *LastError           `json:"last_error,omitempty"`
	TicksUsed     int                  `json:"ticks_used,omitempty"`
}

// Summary is the run row's non-blob columns, returned by GetRun/ListRuns so
// handlers that only need the summary need not parse the state blob.
type Summary struct {
	RunID         string
	SchemaVersion string
	Status        Status
	Env           string
	Lane          string
	Mode          string
	JobType       string
	RequestedBy   string
	ParentRunID   string
	CreatedAt     string
	StartedAt     string
	FinishedAt    string
	LastError     *LastError
	Graph         Graph
	Params        map[string]any
}

// Filter narrows ListRuns to a subset of runs.
type Filter struct {
	Env         string
	Lane        string
	Status      string
	RequestedBy string
}
