package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/qrlink/internal/exitcode"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/tui"
)

func TestAuthLoginStatusLogout(t *testing.T) {
	c := newCLI(t)

	res := c.run("auth", "login", "--username", "alice", "--password", "pw")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "✓ Login successful!")
	assert.Contains(t, res.stdout, "Logged in as alice <alice@example.com>")

	data, err := os.ReadFile(filepath.Join(c.home, "credentials.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), testToken)

	res = c.run("auth", "status", "--format", "json")
	require.NoError(t, res.err, res.stderr)
	var status statusView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, "alice", status.User.Username)
	assert.Equal(t, "tok_"+log.Fingerprint(testToken), status.Token)
	assert.Nil(t, status.ExpiresAt)

	res = c.run("auth", "logout")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "Logged out")

	res = c.run("auth", "status")
	require.NoError(t, res.err)
	assert.Equal(t, "Not logged in\n", res.stdout)

	res = c.run("auth", "logout")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Not logged in")
}

func TestAuthLoginErrors(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{"missing password", []string{"--username", "alice"}, exitcode.UsageError, "Please fill in all fields"},
		{"blank username", []string{"--username", " ", "--password", "pw"}, exitcode.UsageError, "Please fill in all fields"},
		{"rejected", []string{"--username", "alice", "--password", "wrong"}, exitcode.RequestError, "Invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.run(append([]string{"auth", "login"}, tt.args...)...)
			require.Error(t, res.err)
			assert.Equal(t, tt.wantCode, exitcode.DetermineExitCode(res.err))
			assert.Contains(t, res.stderr, "✗ "+tt.wantMsg)
		})
	}

	_, err := os.Stat(filepath.Join(c.home, "credentials.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestAuthLoginUnreachableServer(t *testing.T) {
	c := newCLI(t)
	c.api.srv.Close()

	res := c.run("auth", "login", "--username", "alice", "--password", "pw")
	require.Error(t, res.err)
	assert.Equal(t, exitcode.NetworkError, exitcode.DetermineExitCode(res.err))
	assert.Contains(t, res.stderr, "Unable to connect to server")
}

func TestAuthRegister(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name     string
		args     []string
		wantErr  bool
		wantCode int
		wantMsg  string
	}{
		{
			name:     "missing field",
			args:     []string{"--username", "bob", "--password", "x", "--confirm-password", "x"},
			wantErr:  true,
			wantCode: exitcode.UsageError,
			wantMsg:  "Please fill in all fields",
		},
		{
			name:     "password mismatch",
			args:     []string{"--username", "bob", "--email", "b@x.io", "--password", "x", "--confirm-password", "y"},
			wantErr:  true,
			wantCode: exitcode.UsageError,
			wantMsg:  "Passwords don't match",
		},
		{
			name:     "server rejects",
			args:     []string{"--username", "taken", "--email", "t@x.io", "--password", "x", "--confirm-password", "x"},
			wantErr:  true,
			wantCode: exitcode.RequestError,
			wantMsg:  "Username already registered",
		},
		{
			name:    "created",
			args:    []string{"--username", "bob", "--email", "b@x.io", "--password", "x", "--confirm-password", "x"},
			wantMsg: "Account created successfully!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.run(append([]string{"auth", "register"}, tt.args...)...)
			if tt.wantErr {
				require.Error(t, res.err)
				assert.Equal(t, tt.wantCode, exitcode.DetermineExitCode(res.err))
				assert.Contains(t, res.stderr, tt.wantMsg)
				return
			}
			require.NoError(t, res.err, res.stderr)
			assert.Contains(t, res.stdout, tt.wantMsg)
		})
	}

	// Registration never logs in.
	res := c.run("auth", "status")
	require.NoError(t, res.err)
	assert.Equal(t, "Not logged in\n", res.stdout)
}

func TestAuthCorruptStoreStartsAnonymous(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.WriteFile(filepath.Join(c.home, "credentials.json"), []byte(`{"version":1,"entries":{"token":"t1"}}`), 0o600))

	res := c.run("auth", "status")
	require.NoError(t, res.err)
	assert.Equal(t, "Not logged in\n", res.stdout)
	assert.Contains(t, res.stderr, "Stored session ignored")
}

func TestValidateRegister(t *testing.T) {
	assert.NoError(t, validateRegister(registerInput("a", "a@x", "p", "p")))
	assert.EqualError(t, validateRegister(registerInput("a", "", "p", "p")), msgFillAllFields)
	assert.EqualError(t, validateRegister(registerInput("a", "a@x", "p", "q")), msgPasswordMismatch)
}

func registerInput(username, email, password, confirm string) tui.RegisterInput {
	return tui.RegisterInput{Username: username, Email: email, Password: password, ConfirmPassword: confirm}
}
