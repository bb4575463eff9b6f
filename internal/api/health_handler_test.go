// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHealth_Success(t *testing.T) {
	c := newTestContainer(t, "")
	router := c.NewRouter()

	rr := getJSON(t, router, "/api/health")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	decodeBody(t, rr, &body)
	assert.Contains(t, body, "autonomy_v2_worker")
	assert.Contains(t, body, "version")

	guard := body["autonomy_v2_worker"].(map[string]any)
	assert.Equal(t, false, guard["enabled"], "the background worker is disabled in this test container")
}

func TestRouter_HealthzAndReadyz(t *testing.T) {
	c := newTestContainer(t, "")
	router := c.NewRouter()

	rr := getJSON(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = getJSON(t, router, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
}
