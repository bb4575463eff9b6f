// SPDX-License-Identifier: MIT

package audit

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			actor_id TEXT,
			actor_role TEXT,
			action TEXT NOT NULL,
			target_id TEXT,
			result TEXT NOT NULL,
			payload_json TEXT,
			error_json TEXT
		)
	`)
	require.NoError(t, err)
	return db
}

func TestLogger_Record_Success(t *testing.T) {
	db := openTestDB(t)
	logger := NewLogger(db)

	logger.Record(context.Background(), Record{
		ActorID:   "console",
		ActorRole: "admin",
		Action:    "tick_once",
		Result:    "success",
		Payload:   map[string]any{"env": "local", "lane": "default"},
	})

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE action = 'tick_once'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestLogger_Record_FiltersSecrets(t *testing.T) {
	db := openTestDB(t)
	logger := NewLogger(db)

	logger.Record(context.Background(), Record{
		Action: "admin_auth",
		Result: "denied",
		Payload: map[string]any{
			"endpoint":    "/api/autonomy/v2/worker/tick_once",
			"admin_token": "should-not-appear",
			"X-Secret":    "also-should-not-appear",
			"password":    "nope",
			"api_key":     "nope",
		},
		Error: &ErrorDetail{Code: "INVALID_ADMIN_TOKEN", Message: "invalid or missing admin token"},
	})

	var payloadJSON string
	require.NoError(t, db.QueryRow(`SELECT payload_json FROM audit_log WHERE action = 'admin_auth'`).Scan(&payloadJSON))
	assert.Contains(t, payloadJSON, "endpoint")
	assert.NotContains(t, payloadJSON, "should-not-appear")
	assert.NotContains(t, payloadJSON, "also-should-not-appear")
	assert.NotContains(t, payloadJSON, "nope")
}

func TestLogger_Record_SwallowsDBErrors(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close()) // force failure

	logger := NewLogger(db)

	assert.NotPanics(t, func() {
		logger.Record(context.Background(), Record{Action: "x", Result: "error"})
	})
}

func TestFilterSecrets_NilPayload(t *testing.T) {
	assert.Nil(t, filterSecrets(nil))
}
