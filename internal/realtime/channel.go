// Package realtime keeps the single inbound WebSocket used for
// server-pushed session updates.
//
// The channel performs I/O only. Profile updates are handed to the consumer
// of Updates(), which owns every state change.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/metrics"
)

// EventKind names a connection lifecycle event.
type EventKind string

const (
	EventOpened       EventKind = "opened"
	EventClosed       EventKind = "closed"
	EventError        EventKind = "error"
	EventReconnecting EventKind = "reconnecting"
)

// Event is a lifecycle notification. It never implies a session change.
type Event struct {
	Kind  EventKind
	Epoch uint64
	Err   error
	// Delay is set on EventReconnecting.
	Delay time.Duration
}

// Config configures a Channel.
type Config struct {
	// BaseURL is the ws:// or wss:// server root.
	BaseURL string
	// Path defaults to /ws/listen.
	Path string
	// Reconnect redials dropped connections with exponential backoff.
	Reconnect bool
	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration
	// HandshakeTimeout bounds a single dial.
	HandshakeTimeout time.Duration
}

const (
	defaultPath             = "/ws/listen"
	defaultMaxBackoff       = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

// Channel owns at most one live connection at a time.
type Channel struct {
	cfg     Config
	dialer  *websocket.Dialer
	logger  *log.Logger
	metrics *metrics.Metrics

	updates   chan Update
	lifecycle chan Event

	mu      sync.Mutex
	current *connection
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithMetrics records frames and connection events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// New creates a closed Channel.
func New(cfg Config, opts ...Option) *Channel {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	c := &Channel{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:    log.Nop(),
		updates:   make(chan Update, 16),
		lifecycle: make(chan Event, 32),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("realtime")
	return c
}

// Updates delivers profile_updated frames. It is never closed.
func (c *Channel) Updates() <-chan Update {
	return c.updates
}

// Lifecycle delivers connection events. Events are dropped when nobody reads.
func (c *Channel) Lifecycle() <-chan Event {
	return c.lifecycle
}

// Open closes any existing connection and starts dialing a new one for
// token in the background. It returns immediately; dial failures surface on
// Lifecycle.
func (c *Channel) Open(token string, epoch uint64) error {
	target, err := c.listenURL(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.stop()
		c.current = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		ch:     c,
		epoch:  epoch,
		target: target,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: c.logger.With("epoch", epoch, log.Token("token", token)),
	}
	c.current = conn
	go conn.run(ctx)

	return nil
}

// Close tears down the live connection, if any, and waits for its reader
// to exit. It is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	c.current.stop()
	c.current = nil
	return nil
}

// isOpen reports whether a connection instance exists, dialing or connected.
func (c *Channel) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// isConnected reports whether the live instance has completed its handshake.
func (c *Channel) isConnected() bool {
	c.mu.Lock()
	conn := c.current
	c.mu.Unlock()
	return conn != nil && conn.connected()
}

// liveEpoch returns the epoch of the live instance, or 0.
func (c *Channel) liveEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.current.epoch
}

func (c *Channel) listenURL(token string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid realtime base URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("realtime base URL must use ws:// or wss://, got %q", c.cfg.BaseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.cfg.Path
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Channel) emit(ev Event) {
	c.metrics.RecordConnection(string(ev.Kind), ev.Kind == EventOpened)
	select {
	case c.lifecycle <- ev:
	default:
	}
}

// connection is one Open..Close instance, including its reconnects.
type connection struct {
	ch     *Channel
	epoch  uint64
	target string
	cancel context.CancelFunc
	done   chan struct{}
	logger *log.Logger

	mu sync.Mutex
	ws *websocket.Conn
}

func (k *connection) connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ws != nil
}

func (k *connection) stop() {
	k.cancel()

	k.mu.Lock()
	if k.ws != nil {
		deadline := time.Now().Add(closeGracePeriod)
		_ = k.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = k.ws.Close()
	}
	k.mu.Unlock()

	<-k.done
}

func (k *connection) run(ctx context.Context) {
	defer close(k.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = k.ch.cfg.MaxBackoff

	for {
		err := k.session(ctx, b)
		if ctx.Err() != nil {
			k.ch.emit(Event{Kind: EventClosed, Epoch: k.epoch})
			k.logger.Debug("realtime channel closed")
			return
		}

		k.ch.emit(Event{Kind: EventError, Epoch: k.epoch, Err: err})
		if !k.ch.cfg.Reconnect {
			k.logger.Warn("realtime channel lost", "error", err)
			k.ch.emit(Event{Kind: EventClosed, Epoch: k.epoch, Err: err})
			return
		}

		delay := b.NextBackOff()
		k.logger.Info("realtime channel lost, reconnecting", "error", err, "delay", delay)
		k.ch.emit(Event{Kind: EventReconnecting, Epoch: k.epoch, Err: err, Delay: delay})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			k.ch.emit(Event{Kind: EventClosed, Epoch: k.epoch})
			return
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection fails or ctx ends.
func (k *connection) session(ctx context.Context, b *backoff.ExponentialBackOff) error {
	ws, resp, err := k.ch.dialer.DialContext(ctx, k.target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial realtime channel: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial realtime channel: %w", err)
	}

	k.mu.Lock()
	if ctx.Err() != nil {
		k.mu.Unlock()
		_ = ws.Close()
		return ctx.Err()
	}
	k.ws = ws
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.ws = nil
		k.mu.Unlock()
		_ = ws.Close()
	}()

	b.Reset()
	k.logger.Info("realtime channel opened")
	k.ch.emit(Event{Kind: EventOpened, Epoch: k.epoch})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		update, kind, ok := ParseFrame(data)
		k.ch.metrics.RecordFrame(kind)
		if !ok {
			k.logger.Debug("realtime frame ignored", "kind", kind)
			continue
		}
		update.Epoch = k.epoch

		select {
		case k.ch.updates <- update:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
