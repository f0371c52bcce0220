package cmd

import (
	"context"
	"errors"
	"fmt"

	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/tui"
)

// Messages shown by the auth commands.
const (
	msgFillAllFields    = "Please fill in all fields"
	msgPasswordMismatch = "Passwords don't match"
	msgLoginSuccess     = "Login successful!"
	msgRegisterSuccess  = "Account created successfully!"
	msgLogoutSuccess    = "Logged out"
	msgDevicesFailed    = "Failed to load devices"
	msgDeviceRevoked    = "Device revoked successfully!"
)

// prefixed puts prefix in front of the user-facing message of err and keeps
// its code, so the exit code is unchanged.
func prefixed(prefix string, err error) error {
	if err == nil {
		return nil
	}
	e, ok := qerrors.As(err)
	if !ok {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	out := *e
	out.Message = prefix + ": " + e.Message
	return &out
}

// Interrupted reports whether err ended the command because the user
// cancelled: a signal on ctx or an aborted prompt.
func Interrupted(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tui.ErrAborted) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
