package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testToken = "t1"

// syncBuffer is a bytes.Buffer safe for a command writing while a test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeAPI is an httptest stand-in for the device-linking server.
type fakeAPI struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	devices []map[string]any
	revoked []string
	scanned []string
	conns   []*websocket.Conn
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		devices: []map[string]any{
			{"id": 1, "device_id": "dev-1", "device_name": "Laptop", "created_at": "2024-01-01T10:00:00", "last_active": "2024-01-02T10:00:00", "is_active": true},
			{"id": 2, "device_id": "dev-2", "device_name": "", "created_at": "2024-01-03T10:00:00", "is_active": true},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "alice" || req.Password != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": testToken,
			"token_type":   "bearer",
			"user":         map[string]any{"id": 1, "username": "alice", "email": "alice@example.com", "created_at": "2024-01-01T00:00:00", "is_active": true},
		})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username == "taken" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Username already registered"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "User created", "user": map[string]any{"id": 2, "username": req.Username}})
	})
	mux.HandleFunc("POST /qr/scan", func(w http.ResponseWriter, r *http.Request) {
		if !api.authorized(w, r) {
			return
		}
		var req struct {
			SessionID string `json:"session_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.SessionID == "expired" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Session expired"})
			return
		}
		api.mu.Lock()
		api.scanned = append(api.scanned, req.SessionID)
		api.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"status": "linked"})
	})
	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		if !api.authorized(w, r) {
			return
		}
		api.mu.Lock()
		defer api.mu.Unlock()
		writeJSON(w, http.StatusOK, api.devices)
	})
	mux.HandleFunc("DELETE /devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !api.authorized(w, r) {
			return
		}
		id := r.PathValue("id")
		api.mu.Lock()
		defer api.mu.Unlock()
		for i, d := range api.devices {
			if d["device_id"] == id {
				api.devices = append(api.devices[:i], api.devices[i+1:]...)
				api.revoked = append(api.revoked, id)
				writeJSON(w, http.StatusOK, map[string]any{"message": "revoked"})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Device not found"})
	})
	mux.HandleFunc("/ws/listen", func(w http.ResponseWriter, r *http.Request) {
		conn, err := api.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		api.mu.Lock()
		api.conns = append(api.conns, conn)
		api.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (api *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
		return false
	}
	return true
}

func (api *fakeAPI) connCount() int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return len(api.conns)
}

// push sends frame on the newest realtime connection.
func (api *fakeAPI) push(t *testing.T, frame string) {
	t.Helper()
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.conns) > 0
	}, 5*time.Second, 10*time.Millisecond)

	api.mu.Lock()
	defer api.mu.Unlock()
	conn := api.conns[len(api.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cli runs qrlink commands against one home directory and API server.
type cli struct {
	t    *testing.T
	home string
	api  *fakeAPI
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	api := newFakeAPI(t)
	t.Setenv("CI", "true")
	t.Setenv("QRLINK_HOME", "")
	t.Setenv("QRLINK_API_BASE_URL", api.srv.URL)
	t.Setenv("QRLINK_STORE_BACKEND", "file")
	return &cli{t: t, home: t.TempDir(), api: api}
}

type result struct {
	stdout string
	stderr string
	err    error
}

func (c *cli) run(args ...string) result {
	return c.runWithInput(context.Background(), "", args...)
}

func (c *cli) runWithInput(ctx context.Context, stdin string, args ...string) result {
	c.t.Helper()
	var out, errOut syncBuffer
	err := c.exec(ctx, stdin, &out, &errOut, args...)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func (c *cli) exec(ctx context.Context, stdin string, out, errOut *syncBuffer, args ...string) error {
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--home", c.home, "--no-color", "--log-level", "error"}, args...))
	return execute(ctx, root)
}

func (c *cli) login() {
	c.t.Helper()
	res := c.run("auth", "login", "--username", "alice", "--password", "pw")
	require.NoError(c.t, res.err, res.stderr)
}
