// Package linking confirms QR link sessions from the scanning device.
package linking

import (
	"context"

	"github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/metrics"
	"github.com/felixgeelhaar/qrlink/internal/platform"
)

// Outcome classifies a scan.
type Outcome string

const (
	OutcomeLinked           Outcome = "linked"
	OutcomeNotAuthenticated Outcome = "not_authenticated"
	OutcomeInvalidPayload   Outcome = "invalid_payload"
	OutcomeLinkFailed       Outcome = "link_failed"
)

// User-facing messages.
const (
	MsgLinked           = "Device linked successfully!"
	MsgNotAuthenticated = "You must be logged in to scan a QR code"
	MsgInvalidPayload   = "Invalid QR code"
)

// Result reports one scan.
type Result struct {
	Outcome   Outcome
	Message   string
	SessionID string
	Err       error
}

// OK reports whether the device was linked.
func (r Result) OK() bool {
	return r.Outcome == OutcomeLinked
}

// Scanner confirms a link session on the server.
type Scanner interface {
	ScanQR(ctx context.Context, sessionID, token string) (*platform.Response, error)
}

// Flow handles scanned payloads. It keeps no state between calls;
// suppressing duplicate scans is up to the caller.
type Flow struct {
	scanner Scanner
	logger  *log.Logger
	metrics *metrics.Metrics
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

// WithMetrics records outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Flow) { f.metrics = m }
}

// NewFlow creates a Flow.
func NewFlow(scanner Scanner, opts ...Option) *Flow {
	f := &Flow{scanner: scanner, logger: log.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.WithComponent("linking")
	return f
}

// HandleScannedPayload validates rawText and confirms the link session,
// authenticated as the scanning device with currentToken.
func (f *Flow) HandleScannedPayload(ctx context.Context, rawText, currentToken string) Result {
	res := f.handle(ctx, rawText, currentToken)
	f.metrics.RecordLink(string(res.Outcome))
	if res.Err != nil {
		f.logger.InfoContext(ctx, "link attempt failed", "outcome", res.Outcome, "error", res.Err)
	} else {
		f.logger.InfoContext(ctx, "device linked", "session_id", res.SessionID)
	}
	return res
}

func (f *Flow) handle(ctx context.Context, rawText, currentToken string) Result {
	if currentToken == "" {
		return Result{
			Outcome: OutcomeNotAuthenticated,
			Message: MsgNotAuthenticated,
			Err:     errors.NotAuthenticatedFor(MsgNotAuthenticated),
		}
	}

	payload, err := ParsePayload(rawText)
	if err != nil {
		return Result{Outcome: OutcomeInvalidPayload, Message: MsgInvalidPayload, Err: err}
	}

	if _, err := f.scanner.ScanQR(ctx, payload.SessionID, currentToken); err != nil {
		return Result{
			Outcome:   OutcomeLinkFailed,
			Message:   errors.UserMessage(err),
			SessionID: payload.SessionID,
			Err:       err,
		}
	}

	return Result{Outcome: OutcomeLinked, Message: MsgLinked, SessionID: payload.SessionID}
}
