// Package credstore persists the bearer token and user profile as a pair.
//
// Both keys are always written and cleared together through a Backend whose
// Put and Delete are atomic over all keys they are given. A store found
// holding only one of the two keys is reported as a PersistenceFailure so
// callers fall back to an anonymous session instead of trusting it.
package credstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/qrlink/internal/domain"
	"github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/metrics"
)

// Persisted keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// ErrPartialPair is the cause attached when only one key of the pair exists.
var ErrPartialPair = stderrors.New("credential store holds only one of token and user")

// Backend is a durable key/value medium.
type Backend interface {
	// Get returns the values of the requested keys that exist.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	// Put writes all values or none.
	Put(ctx context.Context, values map[string]string) error
	// Delete removes all keys or none. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Name identifies the backend in logs and health checks.
	Name() string
}

// HealthChecker is implemented by backends with a server-side health
// endpoint. Probe calls it before reading.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Credentials is the persisted session pair.
type Credentials struct {
	Token string
	User  domain.User
}

// Store implements load/save/clear of the credential pair on a Backend.
type Store struct {
	backend Backend
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records every operation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, logger: log.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("credstore").With("backend", backend.Name())
	return s
}

// Backend returns the underlying medium.
func (s *Store) Backend() Backend {
	return s.backend
}

// Load returns the stored pair, or nil when nothing is stored.
func (s *Store) Load(ctx context.Context) (*Credentials, error) {
	values, err := s.backend.Get(ctx, KeyToken, KeyUser)
	s.metrics.RecordStore(s.backend.Name(), "load", err == nil)
	if err != nil {
		return nil, errors.PersistenceFailure("load", err)
	}

	token := values[KeyToken]
	rawUser, hasUser := values[KeyUser]
	hasToken := token != ""

	switch {
	case !hasToken && !hasUser:
		return nil, nil
	case hasToken != hasUser:
		return nil, errors.PersistenceFailure("load", ErrPartialPair)
	}

	var user domain.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, errors.PersistenceFailure("load", fmt.Errorf("decode user: %w", err))
	}
	if err := user.Validate(); err != nil {
		return nil, errors.PersistenceFailure("load", err)
	}

	s.logger.Debug("credentials loaded", log.Token("token", token), "user", user.Username)
	return &Credentials{Token: token, User: user}, nil
}

// Save writes token and user together.
func (s *Store) Save(ctx context.Context, token string, user domain.User) error {
	if strings.TrimSpace(token) == "" {
		return errors.PersistenceFailure("save", stderrors.New("empty token"))
	}
	if err := user.Validate(); err != nil {
		return errors.PersistenceFailure("save", err)
	}

	rawUser, err := json.Marshal(user)
	if err != nil {
		return errors.PersistenceFailure("save", fmt.Errorf("encode user: %w", err))
	}

	err = s.backend.Put(ctx, map[string]string{
		KeyToken: token,
		KeyUser:  string(rawUser),
	})
	s.metrics.RecordStore(s.backend.Name(), "save", err == nil)
	if err != nil {
		return errors.PersistenceFailure("save", err)
	}

	s.logger.Debug("credentials saved", log.Token("token", token), "user", user.Username)
	return nil
}

// Clear removes both keys.
func (s *Store) Clear(ctx context.Context) error {
	err := s.backend.Delete(ctx, KeyToken, KeyUser)
	s.metrics.RecordStore(s.backend.Name(), "clear", err == nil)
	if err != nil {
		return errors.PersistenceFailure("clear", err)
	}
	s.logger.Debug("credentials cleared")
	return nil
}

// Probe checks backend health when supported, then performs a read without
// interpreting the result.
func (s *Store) Probe(ctx context.Context) error {
	if hc, ok := s.backend.(HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return errors.PersistenceFailure("probe", err)
		}
	}
	if _, err := s.backend.Get(ctx, KeyToken); err != nil {
		return errors.PersistenceFailure("probe", err)
	}
	return nil
}
