package ux

import (
	"net/http"
	"strings"

	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
)

// Suggestions returns recovery hints for err. Coded errors carry their own;
// a 401 rejection and a few well-known plain errors get defaults.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	if e, ok := qerrors.As(err); ok {
		if e.Code == qerrors.ErrCodeRequestFailed && e.Status == http.StatusUnauthorized && len(e.Suggestions) == 0 {
			return []string{"Log in again with: qrlink auth login"}
		}
		return e.Suggestions
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "unknown configuration key"):
		return []string{"List the available keys with: qrlink config view"}
	case strings.Contains(msg, "permission denied"):
		return []string{"Check permissions on the qrlink home directory (--home or $QRLINK_HOME)"}
	case strings.Contains(msg, "failed to parse config"):
		return []string{"Fix or remove the file shown by: qrlink config path"}
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no route to host"):
		return []string{"Check your network connection and firewall settings"}
	}
	return nil
}
