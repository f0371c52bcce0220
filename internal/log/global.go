package log

import (
	"log/slog"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

// SetDefaultLogger installs logger for code that has no logger of its own,
// including third-party packages writing through log/slog. Passing nil
// restores the fallback.
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
	if logger != nil {
		slog.SetDefault(slog.New(logger.Handler()))
	}
}

// DefaultLogger returns the installed logger, or a text logger on stderr.
func DefaultLogger() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := Default()
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	return defaultLogger.Load()
}
