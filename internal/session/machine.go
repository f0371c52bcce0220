// Package session owns the process-wide login session.
//
// Machine is the only writer of the credential store and the only code that
// opens or closes the realtime channel. Every transition holds one lock for
// its whole duration, store I/O included, and persists before it publishes:
// no subscriber ever observes a session that is not durably recorded. A
// failed store write leaves the session where it was.
package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/qrlink/internal/credstore"
	"github.com/felixgeelhaar/qrlink/internal/domain"
	"github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/metrics"
	"github.com/felixgeelhaar/qrlink/internal/realtime"
	"github.com/felixgeelhaar/qrlink/internal/telemetry"
)

// Transition event names used in logs, spans and metrics.
const (
	EventLoad       = "load"
	EventLogin      = "login"
	EventLogout     = "logout"
	EventUpdateUser = "update_user"
	EventRealtime   = "profile_updated"
)

// Store persists the credential pair.
type Store interface {
	Load(ctx context.Context) (*credstore.Credentials, error)
	Save(ctx context.Context, token string, user domain.User) error
	Clear(ctx context.Context) error
}

// Channel is the realtime connection the machine drives.
type Channel interface {
	Open(token string, epoch uint64) error
	Close() error
	Updates() <-chan realtime.Update
}

// Machine is the session state machine.
type Machine struct {
	store   Store
	channel Channel
	logger  *log.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	reconnectOnRotation bool

	// mu serializes transitions.
	mu sync.Mutex

	snapMu sync.RWMutex
	snap   Snapshot

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithMetrics records transitions.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithReconnectOnRotation reopens the realtime channel with the new token
// when an update rotates it. Off by default, in which case the live channel
// keeps the old token and snapshots report ChannelStale.
func WithReconnectOnRotation(enabled bool) Option {
	return func(m *Machine) { m.reconnectOnRotation = enabled }
}

// New creates a Machine in the Anonymous state. Call LoadStoredData to
// restore a persisted session.
func New(store Store, channel Channel, opts ...Option) *Machine {
	m := &Machine{
		store:   store,
		channel: channel,
		logger:  log.Nop(),
		now:     time.Now,
		subs:    make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("session")
	m.snap = Snapshot{State: Anonymous, At: m.now()}
	return m
}

// Snapshot returns the current session.
func (m *Machine) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// Token returns the current bearer token.
func (m *Machine) Token() (string, bool) {
	s := m.Snapshot()
	return s.Token, s.IsAuthenticated()
}

// Generation returns the current generation. Pass it to UpdateUserAt to
// have an update discarded if the session changes in the meantime.
func (m *Machine) Generation() uint64 {
	return m.Snapshot().Generation
}

// LoadStoredData restores the persisted session. A read failure settles to
// Anonymous and is returned for reporting only.
func (m *Machine) LoadStoredData(ctx context.Context) (err error) {
	ctx, span := telemetry.StartTransitionSpan(ctx, EventLoad)
	defer func() { telemetry.End(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.store.Load(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "stored credentials unusable, starting anonymous", "error", err)
		m.metrics.RecordTransition(EventLoad, false)
		_ = m.channel.Close()
		m.publish(Snapshot{State: Anonymous, Generation: m.snap.Generation, Cause: EventLoad})
		return err
	}
	if creds == nil {
		m.metrics.RecordTransition(EventLoad, true)
		_ = m.channel.Close()
		m.publish(Snapshot{State: Anonymous, Generation: m.snap.Generation, Cause: EventLoad})
		return nil
	}

	gen := m.snap.Generation + 1
	open := m.openChannel(ctx, creds.Token, gen)
	m.metrics.RecordTransition(EventLoad, true)
	m.publish(Snapshot{
		State:       Authenticated,
		Token:       creds.Token,
		User:        creds.User,
		Generation:  gen,
		ChannelOpen: open,
		Cause:       EventLoad,
	})
	m.logger.InfoContext(ctx, "session restored", "user", creds.User.Username, log.Token("token", creds.Token))
	return nil
}

// Login records an authenticated session. The pair is persisted first; on
// failure the session is unchanged and a PersistenceFailure is returned.
// Logging in while authenticated replaces the session and its channel.
func (m *Machine) Login(ctx context.Context, token string, user domain.User) (err error) {
	ctx, span := telemetry.StartTransitionSpan(ctx, EventLogin)
	defer func() { telemetry.End(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, token, user); err != nil {
		m.metrics.RecordTransition(EventLogin, false)
		m.logger.LogErrorContext(ctx, "login not applied", err)
		return err
	}

	gen := m.snap.Generation + 1
	open := m.openChannel(ctx, token, gen)
	m.metrics.RecordTransition(EventLogin, true)
	m.publish(Snapshot{
		State:       Authenticated,
		Token:       token,
		User:        user,
		Generation:  gen,
		ChannelOpen: open,
		Cause:       EventLogin,
	})
	span.SetAttributes(attribute.Int64("session.generation", int64(gen)))
	m.logger.InfoContext(ctx, "session authenticated", "user", user.Username, log.Token("token", token), "generation", gen)
	return nil
}

// Logout clears the stored pair and closes the channel. It is idempotent;
// when already anonymous it still clears leftovers from the store.
func (m *Machine) Logout(ctx context.Context) (err error) {
	ctx, span := telemetry.StartTransitionSpan(ctx, EventLogout)
	defer func() { telemetry.End(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		m.metrics.RecordTransition(EventLogout, false)
		m.logger.LogErrorContext(ctx, "logout not applied", err)
		return err
	}

	_ = m.channel.Close()

	gen := m.snap.Generation
	if m.snap.IsAuthenticated() {
		gen++
	}
	m.metrics.RecordTransition(EventLogout, true)
	m.publish(Snapshot{State: Anonymous, Generation: gen, Cause: EventLogout})
	m.logger.InfoContext(ctx, "session cleared", "generation", gen)
	return nil
}

// UpdateUser replaces the user, and the token when one is supplied.
func (m *Machine) UpdateUser(ctx context.Context, user domain.User, token string) error {
	return m.UpdateUserAt(ctx, m.Generation(), user, token)
}

// UpdateUserAt is UpdateUser for work initiated at generation gen. If the
// session changed since, the update is discarded with StaleUpdate.
func (m *Machine) UpdateUserAt(ctx context.Context, gen uint64, user domain.User, token string) (err error) {
	ctx, span := telemetry.StartTransitionSpan(ctx, EventUpdateUser)
	defer func() { telemetry.End(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.snap.Generation {
		m.metrics.RecordDiscard("user")
		m.logger.InfoContext(ctx, "stale user update discarded", "initiated", gen, "current", m.snap.Generation)
		return errors.StaleUpdate(gen, m.snap.Generation)
	}
	if !m.snap.IsAuthenticated() {
		m.metrics.RecordTransition(EventUpdateUser, false)
		return errors.NotAuthenticated()
	}
	return m.applyUpdate(ctx, EventUpdateUser, user, token)
}

// Run applies realtime updates until ctx is done. Failures are logged and
// never returned; frames from a superseded connection are discarded.
func (m *Machine) Run(ctx context.Context) error {
	updates := m.channel.Updates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-updates:
			m.handleRealtime(ctx, u)
		}
	}
}

func (m *Machine) handleRealtime(ctx context.Context, u realtime.Update) {
	ctx, span := telemetry.StartTransitionSpan(ctx, EventRealtime)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.snap.IsAuthenticated() || u.Epoch != m.snap.Generation {
		m.metrics.RecordDiscard("realtime")
		m.logger.InfoContext(ctx, "stale realtime update discarded",
			"epoch", u.Epoch, "generation", m.snap.Generation, "state", m.snap.State.String())
		return
	}

	if err := m.applyUpdate(ctx, EventRealtime, u.User, u.AccessToken); err != nil {
		telemetry.RecordError(span, err)
	}
}

// applyUpdate runs with mu held and the session authenticated.
func (m *Machine) applyUpdate(ctx context.Context, event string, user domain.User, token string) error {
	current := m.snap
	newToken := current.Token
	if token != "" {
		newToken = token
	}

	if err := m.store.Save(ctx, newToken, user); err != nil {
		m.metrics.RecordTransition(event, false)
		m.logger.LogErrorContext(ctx, "user update not applied", err)
		return err
	}

	next := current
	next.Token = newToken
	next.User = user
	next.Cause = event

	if newToken != current.Token {
		if m.reconnectOnRotation {
			next.Generation++
			next.ChannelOpen = m.openChannel(ctx, newToken, next.Generation)
			next.ChannelStale = false
			m.metrics.RecordRotation(true)
			m.logger.InfoContext(ctx, "token rotated, realtime channel reopened",
				log.Token("token", newToken), "generation", next.Generation)
		} else {
			next.ChannelStale = current.ChannelOpen
			m.metrics.RecordRotation(false)
			m.logger.WarnContext(ctx, "token rotated without reconnect",
				log.Token("token", newToken), log.Token("channel_token", current.Token))
		}
	}

	m.metrics.RecordTransition(event, true)
	m.publish(next)
	m.logger.InfoContext(ctx, "user updated", "user", user.Username, "source", event)
	return nil
}

// openChannel opens a channel for token, replacing any live one.
func (m *Machine) openChannel(ctx context.Context, token string, epoch uint64) bool {
	if err := m.channel.Open(token, epoch); err != nil {
		m.logger.ErrorContext(ctx, "realtime channel not opened", "error", err)
		return false
	}
	return true
}

// Subscribe returns a channel that always holds the latest snapshot. A slow
// reader skips intermediate snapshots but never blocks a transition. The
// current snapshot is delivered immediately.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.subsMu.Lock()
	if m.closed {
		m.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	offer(ch, m.Snapshot())
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// Close closes the realtime channel and all subscriptions. The persisted
// session is kept.
func (m *Machine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.channel.Close()

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if !m.closed {
		m.closed = true
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
	}
	return err
}

// publish runs with mu held.
func (m *Machine) publish(s Snapshot) {
	s.At = m.now()

	m.snapMu.Lock()
	m.snap = s
	m.snapMu.Unlock()

	m.metrics.SetAuthenticated(s.IsAuthenticated())

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		offer(ch, s)
	}
}

// offer replaces whatever ch holds with s.
func offer(ch chan Snapshot, s Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
