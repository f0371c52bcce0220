package health

import (
	"context"
	"net"
	"net/url"

	"github.com/felixgeelhaar/qrlink/internal/config"
	"github.com/felixgeelhaar/qrlink/internal/errors"
)

// Pinger reports whether the API server answers HTTP.
type Pinger interface {
	Ping(ctx context.Context) (int, error)
	BaseURL() string
}

// APIChecker treats any HTTP response as reachable.
type APIChecker struct {
	client Pinger
}

// NewAPIChecker creates the api-server check.
func NewAPIChecker(client Pinger) *APIChecker {
	return &APIChecker{client: client}
}

func (c *APIChecker) Name() string { return "api-server" }

func (c *APIChecker) Check(ctx context.Context) *Result {
	status, err := c.client.Ping(ctx)
	if err != nil {
		return Unhealthy(errors.UserMessage(err)).
			WithDetail("url", c.client.BaseURL()).
			WithDetail("error", err.Error())
	}
	return Healthy("API server reachable").
		WithDetail("url", c.client.BaseURL()).
		WithDetail("status", status)
}

// RealtimeChecker verifies TCP reachability of the websocket host. It does
// not authenticate.
type RealtimeChecker struct {
	baseURL string
	dialer  net.Dialer
}

// NewRealtimeChecker creates the realtime-endpoint check for a ws:// or
// wss:// base URL.
func NewRealtimeChecker(baseURL string) *RealtimeChecker {
	return &RealtimeChecker{baseURL: baseURL}
}

func (c *RealtimeChecker) Name() string { return "realtime-endpoint" }

func (c *RealtimeChecker) Check(ctx context.Context) *Result {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return Unhealthy("Invalid realtime URL").WithDetail("url", c.baseURL)
	}

	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "wss" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return Unhealthy("Realtime endpoint unreachable").
			WithDetail("address", host).
			WithDetail("error", err.Error())
	}
	_ = conn.Close()
	return Healthy("Realtime endpoint reachable").WithDetail("address", host)
}

// Prober performs a read against the credential store.
type Prober interface {
	Probe(ctx context.Context) error
}

// StoreChecker probes the configured credential store backend.
type StoreChecker struct {
	store   Prober
	backend string
}

// NewStoreChecker creates the credential-store check.
func NewStoreChecker(store Prober, backend string) *StoreChecker {
	return &StoreChecker{store: store, backend: backend}
}

func (c *StoreChecker) Name() string { return "credential-store" }

func (c *StoreChecker) Check(ctx context.Context) *Result {
	if err := c.store.Probe(ctx); err != nil {
		return Unhealthy("Credential store unavailable").
			WithDetail("backend", c.backend).
			WithDetail("error", err.Error())
	}
	if c.backend == config.BackendMemory {
		return Degraded("Memory store: the session is lost when qrlink exits").WithDetail("backend", c.backend)
	}
	return Healthy("Credential store readable").WithDetail("backend", c.backend)
}
