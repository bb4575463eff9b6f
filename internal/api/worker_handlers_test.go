// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerStatus_Success(t *testing.T) {
	c := newTestContainer(t, "")
	router := c.NewRouter()

	rr := getJSON(t, router, "/api/autonomy/v2/worker/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	decodeBody(t, rr, &body)
	assert.Contains(t, body, "guard")
	assert.Contains(t, body, "config")
	assert.Contains(t, body, "kill_switch")
	assert.Contains(t, body, "worker")

	killSwitch, ok := body["kill_switch"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "local", killSwitch["env"])
	assert.Equal(t, "default", killSwitch["lane"])
	assert.Equal(t, true, killSwitch["lane_enabled"], "no blob or override is set, so a lane defaults to enabled")
}

func TestTickOnce_AdminTokenNotConfigured_Returns503(t *testing.T) {
	c := newTestContainer(t, "")
	router := c.NewRouter()

	rr := postJSON(t, router, "/api/autonomy/v2/worker/tick_once", map[string]any{
		"env": "local", "lane": "default", "owner_id": "tester",
	})

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var envelope map[string]map[string]string
	decodeBody(t, rr, &envelope)
	assert.Equal(t, "ADMIN_TOKEN_NOT_CONFIGURED", envelope["error"]["code"])
}

func TestTickOnce_InvalidAdminToken_Returns401(t *testing.T) {
	c := newTestContainer(t, "secret-token")
	router := c.NewRouter()

	buf := `{"env":"local","lane":"default","owner_id":"tester"}`
	req := httptest.NewRequest(http.MethodPost, "/api/autonomy/v2/worker/tick_once", strings.NewReader(buf))
	req.Header.Set("X-Admin-Token", "wrong-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var envelope map[string]map[string]string
	decodeBody(t, rr, &envelope)
	assert.Equal(t, "INVALID_ADMIN_TOKEN", envelope["error"]["code"])
}

func TestTickOnce_ValidAdminToken_TicksIdleWhenNoRunnableRun(t *testing.T) {
	c := newTestContainer(t, "secret-token")
	router := c.NewRouter()

	buf := `{"env":"local","lane":"default","owner_id":"tester"}`
	req := httptest.NewRequest(http.MethodPost, "/api/autonomy/v2/worker/tick_once", strings.NewReader(buf))
	req.Header.Set("X-Admin-Token", "secret-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	decodeBody(t, rr, &body)
	assert.Equal(t, "idle", body["status"], "no queued run exists, so the tick is idle")
}

func TestTickOnce_ValidAdminToken_TicksCreatedRun(t *testing.T) {
	c := newTestContainer(t, "secret-token")
	router := c.NewRouter()

	runID := createTestRun(t, router)

	buf := `{"env":"local","lane":"default","owner_id":"tester"}`
	req := httptest.NewRequest(http.MethodPost, "/api/autonomy/v2/worker/tick_once", strings.NewReader(buf))
	req.Header.Set("X-Admin-Token", "secret-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	decodeBody(t, rr, &body)
	assert.Equal(t, "success", body["status"])

	getRR := getJSON(t, router, "/api/autonomy/v2/runs/"+runID)
	require.Equal(t, http.StatusOK, getRR.Code)
	var runBody map[string]any
	decodeBody(t, getRR, &runBody)
	assert.Equal(t, float64(1), runBody["ticks_used"], "the noop run's single step must have been dispatched")
}
