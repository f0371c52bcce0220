package exitcode

import (
	"os"
	"strings"

	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage or rejected local input
	UsageError = 2

	// AuthError indicates a missing or rejected session
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// RequestError indicates the server rejected the request
	RequestError = 7

	// StorageError indicates the credential store could not be read or written
	StorageError = 8

	// Interrupted indicates the user cancelled with SIGINT/SIGTERM
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps coded errors to exit codes. Uncoded errors fall back
// to cobra's usage messages, then GeneralError.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch qerrors.CodeOf(err) {
	case qerrors.ErrCodeValidationFailed, qerrors.ErrCodeInvalidQRPayload:
		return UsageError
	case qerrors.ErrCodeNotAuthenticated:
		return AuthError
	case qerrors.ErrCodeNetworkUnavailable:
		return NetworkError
	case qerrors.ErrCodeRequestFailed:
		return RequestError
	case qerrors.ErrCodePersistenceFailure:
		return StorageError
	case qerrors.ErrCodeStaleUpdate:
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") ||
		strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "required flag") ||
		strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or input)"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case RequestError:
		return "Request rejected by server"
	case StorageError:
		return "Credential store error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
