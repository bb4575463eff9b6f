// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"fmt"
	"sync/atomic"
)

// GuardStatus reports whether the background worker may start, and why.
type GuardStatus struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

// CanStartWorker applies the enable-flag and pid-pinning gates. configuredPID
// of 0 means "any pid".
func CanStartWorker(enabled bool, configuredPID, pid int) GuardStatus {
	if !enabled {
		return GuardStatus{Enabled: false, Reason: "worker disabled by flag"}
	}
	if configuredPID != 0 && configuredPID != pid {
		return GuardStatus{Enabled: false, Reason: fmt.Sprintf("pid mismatch (pid=%d expected=%d)", pid, configuredPID)}
	}
	return GuardStatus{Enabled: true, Reason: "ok"}
}

// started is process-global: at most one background loop may ever start,
// even across multiple attempts from a process-reloader.
var started atomic.Bool

// MarkStartedOnce returns true exactly once per process lifetime; every
// subsequent call returns false.
func MarkStartedOnce() bool {
	return started.CompareAndSwap(false, true)
}
