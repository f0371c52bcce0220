package ux

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
)

func newTestNotifier(opts NotifierOptions) (*Notifier, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	opts.NoColor = true
	return NewNotifier(&out, &errOut, opts), &out, &errOut
}

func TestNotifierSuccessAndInfo(t *testing.T) {
	n, out, errOut := newTestNotifier(NotifierOptions{})
	n.Success("Login successful!")
	n.Info("alice <alice@example.com>")
	n.Warn("channel stale")

	assert.Equal(t, "✓ Login successful!\nalice <alice@example.com>\n", out.String())
	assert.Equal(t, "! channel stale\n", errOut.String())
}

func TestNotifierQuietKeepsErrors(t *testing.T) {
	n, out, errOut := newTestNotifier(NotifierOptions{Quiet: true})
	n.Success("Device linked successfully!")
	n.Warn("ignored")
	n.Error(qerrors.RequestFailed(400, "Session expired"))

	assert.Empty(t, out.String())
	assert.Equal(t, "✗ Session expired\n", errOut.String())
}

func TestNotifierErrorSuggestions(t *testing.T) {
	n, _, errOut := newTestNotifier(NotifierOptions{Verbose: true})
	n.Error(qerrors.NetworkUnavailable(stderrors.New("dial tcp: connection refused")))

	lines := strings.Split(strings.TrimSpace(errOut.String()), "\n")
	assert.Equal(t, "✗ "+qerrors.MsgNetworkUnavailable, lines[0])
	assert.Contains(t, errOut.String(), "code: NET-001")
	assert.Contains(t, errOut.String(), "cause: dial tcp: connection refused")
	assert.Contains(t, errOut.String(), "→ Run 'qrlink doctor' to check connectivity")
}

func TestNotifierErrorMessage(t *testing.T) {
	n, _, errOut := newTestNotifier(NotifierOptions{})
	n.ErrorMessage("Failed to load devices: boom", stderrors.New("boom"))
	assert.Equal(t, "✗ Failed to load devices: boom\n", errOut.String())
}

func TestSuggestions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"nil", nil, nil},
		{"attached", qerrors.NotAuthenticated(), []string{"Run 'qrlink auth login' first"}},
		{"unauthorized", qerrors.RequestFailed(401, "Invalid credentials"), []string{"Log in again with: qrlink auth login"}},
		{"other rejection", qerrors.RequestFailed(400, "Session expired"), nil},
		{"config key", stderrors.New("unknown configuration key: foo"), []string{"List the available keys with: qrlink config view"}},
		{"plain", stderrors.New("plain"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggestions(tt.err))
		})
	}
}
