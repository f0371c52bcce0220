package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Connectivity errors (NET-001 to NET-099)
	ErrCodeNetworkUnavailable ErrorCode = "NET-001"

	// Server rejections (REQ-001 to REQ-099)
	ErrCodeRequestFailed ErrorCode = "REQ-001"

	// QR payload errors (QR-001 to QR-099)
	ErrCodeInvalidQRPayload ErrorCode = "QR-001"

	// Session errors (AUTH-001 to AUTH-099, SESSION-001 to SESSION-099)
	ErrCodeNotAuthenticated ErrorCode = "AUTH-001"
	ErrCodeStaleUpdate      ErrorCode = "SESSION-001"

	// Credential store errors (STORE-001 to STORE-099)
	ErrCodePersistenceFailure ErrorCode = "STORE-001"

	// Local input validation (VAL-001 to VAL-099)
	ErrCodeValidationFailed ErrorCode = "VAL-001"
)

// Messages shown to the user for errors that carry no server text.
const (
	MsgNetworkUnavailable = "Unable to connect to server. Please check your internet connection."
	MsgNotAuthenticated   = "You must be logged in to scan a QR code"
	MsgInvalidQRPayload   = "Invalid QR code"
	MsgPersistenceFailure = "Failed to persist credentials"
	MsgStaleUpdate        = "Session changed before the update was applied"
)

// Error is the single tagged error type used across qrlink.
// Error() yields the user-facing message, followed by the cause when one
// is attached; Message alone is what the user sees.
type Error struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	// Status is the HTTP status for RequestFailed errors. Informational only.
	Status int
	Cause  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new Error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &Error{Code: code})
}

// UserMessage returns the text to show the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Message
	}
	return err.Error()
}

// Common error constructors for the qrlink taxonomy

// NetworkUnavailable creates a connectivity error
func NetworkUnavailable(cause error) *Error {
	return Wrap(ErrCodeNetworkUnavailable, MsgNetworkUnavailable, cause).
		WithSuggestion("Check that the API server is running and reachable").
		WithSuggestion("Run 'qrlink doctor' to check connectivity")
}

// RequestFailed creates a server rejection error carrying the server's message verbatim
func RequestFailed(status int, message string) *Error {
	e := New(ErrCodeRequestFailed, message)
	e.Status = status
	return e
}

// InvalidQRPayload creates a malformed QR payload error
func InvalidQRPayload(cause error) *Error {
	return Wrap(ErrCodeInvalidQRPayload, MsgInvalidQRPayload, cause).
		WithSuggestion(`The QR code must encode {"session_id": "<id>"}`)
}

// NotAuthenticated creates a missing session error
func NotAuthenticated() *Error {
	return New(ErrCodeNotAuthenticated, MsgNotAuthenticated).
		WithSuggestion("Run 'qrlink auth login' first")
}

// NotAuthenticatedFor creates a missing session error with a custom message
func NotAuthenticatedFor(message string) *Error {
	return New(ErrCodeNotAuthenticated, message).
		WithSuggestion("Run 'qrlink auth login' first")
}

// PersistenceFailure creates a credential store error
func PersistenceFailure(op string, cause error) *Error {
	return Wrap(ErrCodePersistenceFailure, fmt.Sprintf("%s: %s", MsgPersistenceFailure, op), cause).
		WithSuggestion("Check permissions and availability of the credential store").
		WithSuggestion("Run 'qrlink doctor' to probe the configured backend")
}

// ValidationFailed creates a local input validation error
func ValidationFailed(message string) *Error {
	return New(ErrCodeValidationFailed, message)
}

// StaleUpdate creates an error for updates superseded by a newer transition
func StaleUpdate(initiated, current uint64) *Error {
	return Wrap(ErrCodeStaleUpdate, MsgStaleUpdate,
		fmt.Errorf("generation %d superseded by %d", initiated, current))
}
