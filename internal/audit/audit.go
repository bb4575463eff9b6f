// SPDX-License-Identifier: MIT

// Package audit provides the append-only operator/action audit log described
// by the Autonomy V2 data model: every admin mutation writes a row here, on
// both success and failure, with secret-shaped payload keys stripped before
// they ever reach disk.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"time"

	"github.com/autonomyv2/autonomyd/internal/log"
)

// secretKeyPattern matches payload keys that must never be persisted.
var secretKeyPattern = regexp.MustCompile(`(?i)(token|password|secret|key)`)

// ErrorDetail is the structured error carried on a failed audit outcome.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record is one audit_log row awaiting persistence.
type Record struct {
	ActorID   string
	ActorRole string
	Action    string
	TargetID  string
	Result    string // "success", "idle", "denied", "error"
	Payload   map[string]any
	Error     *ErrorDetail
}

// Logger persists Records to the audit_log table. It never returns an error
// to the caller: per the propagation policy, audit failures must not fail
// the originating request.
type Logger struct {
	db *sql.DB
}

// NewLogger wraps an already-open database handle. The audit_log table is
// created by the sqlite bootstrap migration, not by this package.
func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Record writes one audit row. Failures are logged but swallowed.
func (l *Logger) Record(ctx context.Context, rec Record) {
	ts := time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)

	filtered := filterSecrets(rec.Payload)

	var payloadJSON, errorJSON sql.NullString
	if filtered != nil {
		if b, err := json.Marshal(filtered); err == nil {
			payloadJSON = sql.NullString{String: string(b), Valid: true}
		}
	}
	if rec.Error != nil {
		if b, err := json.Marshal(rec.Error); err == nil {
			errorJSON = sql.NullString{String: string(b), Valid: true}
		}
	}

	logger := log.WithComponent("audit")

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, actor_id, actor_role, action, target_id, result, payload_json, error_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ts, nullIfEmpty(rec.ActorID), nullIfEmpty(rec.ActorRole), rec.Action, nullIfEmpty(rec.TargetID), rec.Result, payloadJSON, errorJSON)
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "audit.persist_failed").
			Str("action", rec.Action).
			Msg("failed to persist audit row")
		return
	}

	log.AuditInfo(ctx, "audit.recorded", "audit row recorded", map[string]any{
		"action": rec.Action,
		"result": rec.Result,
	})
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// filterSecrets drops any key whose lowercased name contains a secret-shaped
// substring (token|password|secret|key), per the Audit Row invariant.
func filterSecrets(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if secretKeyPattern.MatchString(k) {
			continue
		}
		out[k] = v
	}
	return out
}
