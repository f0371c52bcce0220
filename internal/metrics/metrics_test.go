package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	tests := []struct {
		name   string
		metric interface{}
	}{
		{"CommandExecutions", m.CommandExecutions},
		{"CommandDuration", m.CommandDuration},
		{"HTTPRequests", m.HTTPRequests},
		{"HTTPLatency", m.HTTPLatency},
		{"SessionTransitions", m.SessionTransitions},
		{"SessionDiscarded", m.SessionDiscarded},
		{"TokenRotations", m.TokenRotations},
		{"SessionAuthenticated", m.SessionAuthenticated},
		{"RealtimeFrames", m.RealtimeFrames},
		{"RealtimeConnections", m.RealtimeConnections},
		{"RealtimeConnected", m.RealtimeConnected},
		{"LinkAttempts", m.LinkAttempts},
		{"StoreOperations", m.StoreOperations},
		{"Errors", m.Errors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestCommandMetrics(t *testing.T) {
	_, m := NewRegistry()

	m.RecordCommand("auth login", 1500*time.Millisecond, true)
	m.RecordCommand("link scan", time.Second, false)

	if got := testutil.ToFloat64(m.CommandExecutions.WithLabelValues("auth login", "true")); got != 1 {
		t.Errorf("CommandExecutions auth login/true = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CommandExecutions.WithLabelValues("link scan", "false")); got != 1 {
		t.Errorf("CommandExecutions link scan/false = %v, want 1", got)
	}
}

func TestHTTPMetrics(t *testing.T) {
	_, m := NewRegistry()

	m.RecordHTTP("POST", "/auth/login", "ok", 200*time.Millisecond)
	m.RecordHTTP("POST", "/auth/login", "request_failed", 100*time.Millisecond)
	m.RecordHTTP("GET", "/devices", "network_unavailable", time.Second)

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/auth/login", "ok")); got != 1 {
		t.Errorf("HTTPRequests ok = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HTTPRequests); got != 3 {
		t.Errorf("HTTPRequests series = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(m.HTTPLatency); got != 2 {
		t.Errorf("HTTPLatency series = %v, want 2", got)
	}
}

func TestSessionMetrics(t *testing.T) {
	_, m := NewRegistry()

	m.RecordTransition("login", true)
	m.RecordTransition("update_user", false)
	m.RecordDiscard("realtime")
	m.RecordRotation(false)
	m.SetAuthenticated(true)

	if got := testutil.ToFloat64(m.SessionTransitions.WithLabelValues("login", "applied")); got != 1 {
		t.Errorf("SessionTransitions login/applied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionTransitions.WithLabelValues("update_user", "refused")); got != 1 {
		t.Errorf("SessionTransitions update_user/refused = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionDiscarded.WithLabelValues("realtime")); got != 1 {
		t.Errorf("SessionDiscarded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TokenRotations.WithLabelValues("false")); got != 1 {
		t.Errorf("TokenRotations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionAuthenticated); got != 1 {
		t.Errorf("SessionAuthenticated = %v, want 1", got)
	}

	m.SetAuthenticated(false)
	if got := testutil.ToFloat64(m.SessionAuthenticated); got != 0 {
		t.Errorf("SessionAuthenticated after logout = %v, want 0", got)
	}
}

func TestRealtimeMetrics(t *testing.T) {
	_, m := NewRegistry()

	m.RecordConnection("connected", true)
	m.RecordFrame("profile_updated")
	m.RecordFrame("ignored")
	m.RecordConnection("closed", false)

	if got := testutil.ToFloat64(m.RealtimeFrames.WithLabelValues("profile_updated")); got != 1 {
		t.Errorf("RealtimeFrames = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RealtimeConnections.WithLabelValues("connected")); got != 1 {
		t.Errorf("RealtimeConnections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RealtimeConnected); got != 0 {
		t.Errorf("RealtimeConnected = %v, want 0", got)
	}
}

func TestLinkStoreAndErrorMetrics(t *testing.T) {
	_, m := NewRegistry()

	m.RecordLink("linked")
	m.RecordStore("file", "save", true)
	m.RecordError("QR-001")
	m.RecordError("")

	if got := testutil.ToFloat64(m.LinkAttempts.WithLabelValues("linked")); got != 1 {
		t.Errorf("LinkAttempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreOperations.WithLabelValues("file", "save", "true")); got != 1 {
		t.Errorf("StoreOperations = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.Errors); got != 1 {
		t.Errorf("Errors series = %v, want 1 (empty code ignored)", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordCommand("x", time.Second, true)
	m.RecordHTTP("GET", "/", "ok", time.Second)
	m.RecordTransition("login", true)
	m.RecordDiscard("user")
	m.RecordRotation(true)
	m.SetAuthenticated(true)
	m.RecordFrame("ignored")
	m.RecordConnection("connected", true)
	m.RecordLink("linked")
	m.RecordStore("memory", "load", true)
	m.RecordError("NET-001")
}
