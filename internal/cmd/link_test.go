package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/qrlink/internal/exitcode"
)

func TestLinkScanRequiresSession(t *testing.T) {
	c := newCLI(t)

	res := c.run("link", "scan", `{"session_id":"abc"}`)
	require.Error(t, res.err)
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(res.err))
	assert.Contains(t, res.stderr, "You must be logged in to scan a QR code")
	assert.Empty(t, c.api.scanned)
}

func TestLinkScan(t *testing.T) {
	c := newCLI(t)
	c.login()

	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{
			name:    "argument",
			args:    []string{`{"session_id":"abc"}`},
			wantOut: "Device linked successfully!",
		},
		{
			name:    "stdin",
			stdin:   "  {\"session_id\":\"from-stdin\"}\n",
			args:    []string{"-"},
			wantOut: "Device linked successfully!",
		},
		{
			name:     "not json",
			args:     []string{"hello"},
			wantCode: exitcode.UsageError,
			wantErr:  "Invalid QR code",
		},
		{
			name:     "missing session id",
			args:     []string{`{"id":"abc"}`},
			wantCode: exitcode.UsageError,
			wantErr:  "Invalid QR code",
		},
		{
			name:     "server rejects",
			args:     []string{`{"session_id":"expired"}`},
			wantCode: exitcode.RequestError,
			wantErr:  "Session expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.runWithInput(context.Background(), tt.stdin, append([]string{"link", "scan"}, tt.args...)...)
			if tt.wantErr != "" {
				require.Error(t, res.err)
				assert.Equal(t, tt.wantCode, exitcode.DetermineExitCode(res.err))
				assert.Contains(t, res.stderr, "✗ "+tt.wantErr)
				return
			}
			require.NoError(t, res.err, res.stderr)
			assert.Contains(t, res.stdout, tt.wantOut)
		})
	}

	c.api.mu.Lock()
	defer c.api.mu.Unlock()
	assert.Equal(t, []string{"abc", "from-stdin"}, c.api.scanned)
}

func TestLinkScanFromFileJSON(t *testing.T) {
	c := newCLI(t)
	c.login()

	path := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(path, []byte(`{"session_id":"file-1"}`), 0o600))

	res := c.run("link", "scan", "--file", path, "--format", "json")
	require.NoError(t, res.err, res.stderr)

	var view linkView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Equal(t, linkView{Outcome: "linked", Message: "Device linked successfully!", SessionID: "file-1"}, view)

	res = c.run("link", "scan", "--file", path, `{"session_id":"x"}`)
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
}

func TestLinkScanOversizedPayload(t *testing.T) {
	c := newCLI(t)
	c.login()

	res := c.runWithInput(context.Background(), strings.Repeat("a", maxPayloadBytes+1), "link", "scan")
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Invalid QR code")
}

func TestLinkShow(t *testing.T) {
	c := newCLI(t)

	res := c.run("link", "show", "abc123")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, `{"session_id":"abc123"}`)
	assert.Greater(t, strings.Count(res.stdout, "\n"), 10)

	png := filepath.Join(t.TempDir(), "qr.png")
	res = c.run("link", "show", "abc123", "--png", png, "--format", "json")
	require.NoError(t, res.err, res.stderr)
	assert.FileExists(t, png)
	var view qrView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Equal(t, "abc123", view.SessionID)

	res = c.run("link", "show", " ")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(res.err))
}
