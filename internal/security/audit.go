// Package security records the local audit trail of session and device
// actions. Raw tokens are never written; only their fingerprints are.
package security

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/qrlink/internal/log"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditLogin         AuditEventType = "auth.login"
	AuditLogout        AuditEventType = "auth.logout"
	AuditRegister      AuditEventType = "auth.register"
	AuditTokenRotated  AuditEventType = "auth.token_rotated"
	AuditLinkScan      AuditEventType = "link.scan"
	AuditDeviceRevoked AuditEventType = "device.revoke"
)

// AuditSeverity represents the severity level of an audit event
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
	SeverityError   AuditSeverity = "error"
)

// Results recorded on events.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

const dateLayout = "2006-01-02"

// AuditEvent represents one audit record
type AuditEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      AuditEventType `json:"type"`
	Severity  AuditSeverity  `json:"severity"`

	// Actor is the username, or empty for anonymous actions.
	Actor string `json:"actor,omitempty"`

	// Resource is what was acted upon: a device ID or link session ID.
	Resource string `json:"resource,omitempty"`

	Result  string         `json:"result"`
	Details map[string]any `json:"details,omitempty"`
}

// AuditLogger appends events to one JSONL file per day.
type AuditLogger struct {
	mu sync.Mutex

	dir         string
	currentFile *os.File
	currentDate string
	now         func() time.Time
}

// NewAuditLogger creates an audit logger writing under dir.
func NewAuditLogger(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &AuditLogger{dir: dir, now: time.Now}, nil
}

// Dir returns the directory holding the audit files.
func (l *AuditLogger) Dir() string {
	return l.dir
}

// Log appends event, filling in ID and Timestamp when unset. A nil logger
// drops the event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
		if event.Result == ResultFailure {
			event.Severity = SeverityWarning
		}
	}

	if err := l.rotateIfNeeded(event.Timestamp); err != nil {
		return fmt.Errorf("failed to rotate audit file: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := l.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return l.currentFile.Sync()
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

func withError(details map[string]any, err error) map[string]any {
	if err == nil {
		return details
	}
	if details == nil {
		details = map[string]any{}
	}
	details["error"] = err.Error()
	return details
}

// LogLogin records a login attempt. token may be empty on failure.
func (l *AuditLogger) LogLogin(username, token string, err error) error {
	details := map[string]any{}
	if token != "" {
		details["token"] = "tok_" + log.Fingerprint(token)
	}
	return l.Log(&AuditEvent{
		Type:    AuditLogin,
		Actor:   username,
		Result:  result(err),
		Details: withError(details, err),
	})
}

// LogLogout records a logout.
func (l *AuditLogger) LogLogout(username string, err error) error {
	return l.Log(&AuditEvent{
		Type:    AuditLogout,
		Actor:   username,
		Result:  result(err),
		Details: withError(nil, err),
	})
}

// LogRegister records an account registration.
func (l *AuditLogger) LogRegister(username string, err error) error {
	return l.Log(&AuditEvent{
		Type:    AuditRegister,
		Actor:   username,
		Result:  result(err),
		Details: withError(nil, err),
	})
}

// LogTokenRotated records a server-pushed token rotation.
func (l *AuditLogger) LogTokenRotated(username, oldToken, newToken string, reconnected bool) error {
	return l.Log(&AuditEvent{
		Type:   AuditTokenRotated,
		Actor:  username,
		Result: ResultSuccess,
		Details: map[string]any{
			"from":        "tok_" + log.Fingerprint(oldToken),
			"to":          "tok_" + log.Fingerprint(newToken),
			"reconnected": reconnected,
		},
	})
}

// LogLinkScan records a QR scan outcome.
func (l *AuditLogger) LogLinkScan(username, sessionID, outcome string, err error) error {
	return l.Log(&AuditEvent{
		Type:     AuditLinkScan,
		Actor:    username,
		Resource: sessionID,
		Result:   result(err),
		Details:  withError(map[string]any{"outcome": outcome}, err),
	})
}

// LogDeviceRevoked records a device revocation.
func (l *AuditLogger) LogDeviceRevoked(username, deviceID string, err error) error {
	return l.Log(&AuditEvent{
		Type:     AuditDeviceRevoked,
		Actor:    username,
		Resource: deviceID,
		Result:   result(err),
		Details:  withError(nil, err),
	})
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	Since     time.Time
	Until     time.Time
	EventType AuditEventType
	Actor     string
	Result    string
	Limit     int
}

// Matches checks if an event matches the filter
func (f *AuditFilter) Matches(event *AuditEvent) bool {
	if !f.Since.IsZero() && event.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && event.Timestamp.After(f.Until) {
		return false
	}
	if f.EventType != "" && event.Type != f.EventType && !strings.HasPrefix(string(event.Type), string(f.EventType)+".") {
		return false
	}
	if f.Actor != "" && event.Actor != f.Actor {
		return false
	}
	if f.Result != "" && event.Result != f.Result {
		return false
	}
	return true
}

// Query returns matching events, newest last. With a Limit, the most
// recent matches are kept.
func (l *AuditLogger) Query(filter AuditFilter) ([]*AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles(filter.Since, filter.Until)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit files: %w", err)
	}

	events := []*AuditEvent{}
	for _, file := range files {
		fileEvents, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit file %s: %w", file, err)
		}
		for _, event := range fileEvents {
			if filter.Matches(event) {
				events = append(events, event)
			}
		}
	}

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

func (l *AuditLogger) rotateIfNeeded(at time.Time) error {
	date := at.UTC().Format(dateLayout)
	if l.currentDate == date && l.currentFile != nil {
		return nil
	}

	if l.currentFile != nil {
		_ = l.currentFile.Close()
	}

	filename := filepath.Join(l.dir, fmt.Sprintf("audit-%s.jsonl", date))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}

	l.currentFile = file
	l.currentDate = date
	return nil
}

// logFiles returns the day files overlapping [since, until], oldest first.
func (l *AuditLogger) logFiles(since, until time.Time) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "audit-*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var startDay, endDay string
	if !since.IsZero() {
		startDay = since.UTC().Format(dateLayout)
	}
	if !until.IsZero() {
		endDay = until.UTC().Format(dateLayout)
	}

	filtered := []string{}
	for _, file := range files {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "audit-"), ".jsonl")
		if _, err := time.Parse(dateLayout, day); err != nil {
			continue
		}
		if startDay != "" && day < startDay {
			continue
		}
		if endDay != "" && day > endDay {
			continue
		}
		filtered = append(filtered, file)
	}
	return filtered, nil
}

func readLogFile(filename string) ([]*AuditEvent, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	events := []*AuditEvent{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event AuditEvent
		if err := json.Unmarshal(line, &event); err == nil {
			events = append(events, &event)
		}
	}
	return events, scanner.Err()
}

// Close closes the current audit file.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		l.currentDate = ""
		return err
	}
	return nil
}
