package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/qrlink/internal/domain"
	"github.com/felixgeelhaar/qrlink/internal/exitcode"
)

func TestDevicesListRequiresSession(t *testing.T) {
	c := newCLI(t)

	res := c.run("devices", "list")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))
	assert.Contains(t, res.stderr, "✗ Failed to load devices: ")
}

func TestDevicesList(t *testing.T) {
	c := newCLI(t)
	c.login()

	res := c.run("devices", "list")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "DEVICE ID")
	assert.Contains(t, res.stdout, "Laptop")
	// Unnamed devices fall back to their ID.
	assert.Regexp(t, `dev-2\s+dev-2\s+active`, res.stdout)

	res = c.run("devices", "list", "--format", "json")
	require.NoError(t, res.err, res.stderr)
	var devices []domain.Device
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-1", devices[0].DeviceID)
}

func TestDevicesRevoke(t *testing.T) {
	c := newCLI(t)
	c.login()

	res := c.run("devices", "revoke", "dev-1")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
	assert.Empty(t, c.api.revoked)

	res = c.run("devices", "revoke", "dev-1", "--yes")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Device revoked successfully!")
	assert.NotContains(t, res.stdout, "Laptop")
	assert.Contains(t, res.stdout, "dev-2")

	res = c.run("devices", "revoke", "missing", "--yes")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.RequestError, exitcode.DetermineExitCode(res.err))
	assert.Contains(t, res.stderr, "Device not found")

	c.api.mu.Lock()
	defer c.api.mu.Unlock()
	assert.Equal(t, []string{"dev-1"}, c.api.revoked)
}

func TestDevicesRevokeRequiresSession(t *testing.T) {
	c := newCLI(t)

	res := c.run("devices", "revoke", "dev-1", "--yes")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "-", formatTimestamp(""))
	assert.Equal(t, "yesterday", formatTimestamp("yesterday"))
	assert.NotEqual(t, "-", formatTimestamp("2024-01-02T10:00:00"))
}
