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

func TestSetLane_AdminTokenNotConfigured_Returns503(t *testing.T) {
	c := newTestContainer(t, "")
	router := c.NewRouter()

	rr := postJSON(t, router, "/api/autonomy/v2/kill_switch/lane", map[string]any{
		"env": "local", "lane": "default", "enabled": false,
	})

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var envelope map[string]map[string]string
	decodeBody(t, rr, &envelope)
	assert.Equal(t, "ADMIN_TOKEN_NOT_CONFIGURED", envelope["error"]["code"])
}

func TestSetLane_InvalidAdminToken_Returns401(t *testing.T) {
	c := newTestContainer(t, "secret-token")
	router := c.NewRouter()

	buf := `{"env":"local","lane":"default","enabled":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/autonomy/v2/kill_switch/lane", strings.NewReader(buf))
	req.Header.Set("X-Admin-Token", "wrong-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var envelope map[string]map[string]string
	decodeBody(t, rr, &envelope)
	assert.Equal(t, "INVALID_ADMIN_TOKEN", envelope["error"]["code"])
}

func TestSetLane_ValidAdminToken_DisablesLane(t *testing.T) {
	c := newTestContainer(t, "secret-token")
	router := c.NewRouter()

	buf := `{"env":"local","lane":"default","enabled":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/autonomy/v2/kill_switch/lane", strings.NewReader(buf))
	req.Header.Set("X-Admin-Token", "secret-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	decodeBody(t, rr, &body)
	assert.Equal(t, false, body["enabled"])

	statusRR := getJSON(t, router, "/api/autonomy/v2/worker/status")
	require.Equal(t, http.StatusOK, statusRR.Code)
	var statusBody map[string]any
	decodeBody(t, statusRR, &statusBody)
	killSwitch := statusBody["kill_switch"].(map[string]any)
	assert.Equal(t, false, killSwitch["lane_enabled"], "SetLane must take effect immediately on the next read")
}

func TestSetLane_MissingFields_Returns400(t *testing.T) {
	c := newTestContainer(t, "secret-token")
	router := c.NewRouter()

	buf := `{"env":"local"}`
	req := httptest.NewRequest(http.MethodPost, "/api/autonomy/v2/kill_switch/lane", strings.NewReader(buf))
	req.Header.Set("X-Admin-Token", "secret-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
