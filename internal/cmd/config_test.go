package cmd

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/qrlink/internal/config"
)

func TestConfigSetGetPath(t *testing.T) {
	c := newCLI(t)

	res := c.run("config", "path")
	require.NoError(t, res.err)
	assert.Equal(t, filepath.Join(c.home, "config.yaml")+"\n", res.stdout)

	res = c.run("config", "set", "realtime.reconnect", "true")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Set realtime.reconnect = true")

	res = c.run("config", "get", "realtime.reconnect")
	require.NoError(t, res.err)
	assert.Equal(t, "true\n", res.stdout)

	cfg, err := config.LoadFile(c.home)
	require.NoError(t, err)
	assert.True(t, cfg.Realtime.Reconnect)
	// The environment override is never written back.
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
}

func TestConfigSetRejectsInvalid(t *testing.T) {
	c := newCLI(t)

	res := c.run("config", "set", "api.base_url", "ftp://example.com")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "api.base_url must be an absolute http/https URL")

	res = c.run("config", "set", "nope", "x")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "unknown configuration key: nope")
	assert.Contains(t, res.stderr, "qrlink config view")
}

func TestConfigViewRedactsSecrets(t *testing.T) {
	c := newCLI(t)
	t.Setenv("QRLINK_STORE_VAULT_TOKEN", "s3cret")

	res := c.run("config", "view", "--format", "json")
	require.NoError(t, res.err, res.stderr)
	assert.NotContains(t, res.stdout, "s3cret")

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Contains(t, view, "API")

	res = c.run("config", "view")
	require.NoError(t, res.err)
	assert.True(t, strings.HasPrefix(res.stdout, "Configuration file: "))
	assert.Contains(t, res.stdout, "base_url: "+c.api.srv.URL)

	res = c.run("config", "get", "store.vault_token")
	require.NoError(t, res.err)
	assert.Equal(t, redacted+"\n", res.stdout)
}
