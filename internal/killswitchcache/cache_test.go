// SPDX-License-Identifier: MIT

package killswitchcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_GetMiss(t *testing.T) {
	c := newTestCache(t)
	_, _, ok := c.Get("local", "default")
	assert.False(t, ok)
}

func TestCache_SetThenGet(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set("local", "default", false, true))

	enabled, blobPresent, ok := c.Get("local", "default")
	require.True(t, ok)
	assert.False(t, enabled)
	assert.True(t, blobPresent)
}

func TestCache_ScopedByEnvAndLane(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set("local", "default", false, false))
	require.NoError(t, c.Set("local", "other", true, true))

	enabled, blobPresent, ok := c.Get("local", "other")
	require.True(t, ok)
	assert.True(t, enabled)
	assert.True(t, blobPresent)

	_, _, ok = c.Get("prod", "default")
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set("local", "default", true, true))
	require.NoError(t, c.Invalidate("local", "default"))

	_, _, ok := c.Get("local", "default")
	assert.False(t, ok)
}

func TestCache_SetEnabled_PreservesBlobPresent(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set("local", "default", true, true))

	require.NoError(t, c.SetEnabled("local", "default", false))

	enabled, blobPresent, ok := c.Get("local", "default")
	require.True(t, ok)
	assert.False(t, enabled, "SetEnabled must overwrite the enabled bit")
	assert.True(t, blobPresent, "SetEnabled must not clobber the cached blob_present bit")
}

func TestCache_SetEnabled_OnFreshEntry_DefaultsBlobPresentFalse(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.SetEnabled("local", "default", true))

	enabled, blobPresent, ok := c.Get("local", "default")
	require.True(t, ok)
	assert.True(t, enabled)
	assert.False(t, blobPresent, "a fresh entry has no known blob state")
}

func TestParseOverrideFilename(t *testing.T) {
	cases := []struct {
		name     string
		wantEnv  string
		wantLane string
		wantOK   bool
	}{
		{"local__default.flag", "local", "default", true},
		{"prod__canary.flag", "prod", "canary", true},
		{"missing-suffix", "", "", false},
		{"noseparator.flag", "", "", false},
		{"__.flag", "", "", false},
	}
	for _, tc := range cases {
		env, lane, ok := parseOverrideFilename(tc.name)
		assert.Equal(t, tc.wantOK, ok, tc.name)
		if tc.wantOK {
			assert.Equal(t, tc.wantEnv, env, tc.name)
			assert.Equal(t, tc.wantLane, lane, tc.name)
		}
	}
}
