package security

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestAuditLogger(t *testing.T) *AuditLogger {
	t.Helper()
	logger, err := NewAuditLogger(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestLogAuditEvent(t *testing.T) {
	logger := newTestAuditLogger(t)

	event := &AuditEvent{Type: AuditLogin, Actor: "alice", Result: ResultSuccess}
	if err := logger.Log(event); err != nil {
		t.Fatalf("Failed to log event: %v", err)
	}

	if event.ID == "" {
		t.Error("ID should be generated")
	}
	if event.Severity != SeverityInfo {
		t.Errorf("Severity = %s, want info", event.Severity)
	}

	logFile := filepath.Join(logger.Dir(), "audit-"+event.Timestamp.Format(dateLayout)+".jsonl")
	info, err := os.Stat(logFile)
	if err != nil {
		t.Fatalf("Log file was not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Log file mode = %o, want 600", info.Mode().Perm())
	}
}

func TestLoginNeverWritesRawToken(t *testing.T) {
	logger := newTestAuditLogger(t)
	token := "eyJhbGciOiJIUzI1NiJ9.secret-payload.signature"

	if err := logger.LogLogin("alice", token, nil); err != nil {
		t.Fatalf("LogLogin: %v", err)
	}
	if err := logger.LogTokenRotated("alice", token, token+"2", false); err != nil {
		t.Fatalf("LogTokenRotated: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(logger.Dir(), "*.jsonl"))
	if len(files) != 1 {
		t.Fatalf("expected one audit file, got %d", len(files))
	}
	raw, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret-payload") {
		t.Error("audit file contains the raw token")
	}
	if !strings.Contains(string(raw), `"token":"tok_`) {
		t.Error("audit file should contain the token fingerprint")
	}
}

func TestFailuresAreWarnings(t *testing.T) {
	logger := newTestAuditLogger(t)

	if err := logger.LogDeviceRevoked("alice", "dev-1", stderrors.New("Device not found")); err != nil {
		t.Fatal(err)
	}

	events, err := logger.Query(AuditFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Result != ResultFailure || e.Severity != SeverityWarning {
		t.Errorf("got result=%s severity=%s", e.Result, e.Severity)
	}
	if e.Details["error"] != "Device not found" {
		t.Errorf("error detail = %v", e.Details["error"])
	}
	if e.Resource != "dev-1" {
		t.Errorf("resource = %s", e.Resource)
	}
}

func TestQueryFilters(t *testing.T) {
	logger := newTestAuditLogger(t)

	_ = logger.LogLogin("alice", "t1", nil)
	_ = logger.LogLinkScan("alice", "sess-1", "linked", nil)
	_ = logger.LogLinkScan("alice", "sess-2", "link_failed", stderrors.New("expired"))
	_ = logger.LogLogout("alice", nil)
	_ = logger.LogLogin("bob", "", stderrors.New("Invalid credentials"))

	tests := []struct {
		name   string
		filter AuditFilter
		want   int
	}{
		{"all", AuditFilter{}, 5},
		{"exact type", AuditFilter{EventType: AuditLinkScan}, 2},
		{"type prefix", AuditFilter{EventType: "auth"}, 3},
		{"actor", AuditFilter{Actor: "bob"}, 1},
		{"failures", AuditFilter{Result: ResultFailure}, 2},
		{"limit keeps newest", AuditFilter{Limit: 2}, 2},
		{"future since", AuditFilter{Since: time.Now().Add(time.Hour)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}

	events, _ := logger.Query(AuditFilter{Limit: 1})
	if events[0].Actor != "bob" {
		t.Errorf("limit should keep the newest event, got %s", events[0].Actor)
	}
}

func TestDailyRotation(t *testing.T) {
	logger := newTestAuditLogger(t)
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	logger.now = func() time.Time { return day }

	_ = logger.LogLogin("alice", "t1", nil)
	day = day.Add(2 * time.Minute)
	_ = logger.LogLogout("alice", nil)

	files, _ := filepath.Glob(filepath.Join(logger.Dir(), "audit-*.jsonl"))
	if len(files) != 2 {
		t.Fatalf("expected two day files, got %v", files)
	}

	events, err := logger.Query(AuditFilter{Since: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != AuditLogout {
		t.Errorf("expected only the logout on the second day, got %d events", len(events))
	}
}

func TestQuerySkipsCorruptLines(t *testing.T) {
	logger := newTestAuditLogger(t)
	_ = logger.LogLogin("alice", "t1", nil)

	path := filepath.Join(logger.Dir(), "audit-"+time.Now().UTC().Format(dateLayout)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n\n")
	f.Close()
	_ = logger.LogLogout("alice", nil)

	events, err := logger.Query(AuditFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *AuditLogger
	if err := l.LogLogin("alice", "t1", nil); err != nil {
		t.Errorf("LogLogin on nil logger: %v", err)
	}
	if err := l.LogDeviceRevoked("alice", "dev-1", nil); err != nil {
		t.Errorf("LogDeviceRevoked on nil logger: %v", err)
	}
}
