// pkg/logger/logger.go

package logger

import (
	"go.uber.org/zap"
)

var log *zap.Logger

// L returns the global logger instance, initializing a fallback logger if
// nothing has been set up yet.
func L() *zap.Logger {
	if log == nil {
		log = NewFallbackLogger()
		zap.ReplaceGlobals(log)
	}
	return log
}

// InitFallback makes sure a usable global logger exists. Safe to call more
// than once; the first initialization wins.
func InitFallback() {
	if log == nil {
		InitializeWithFallback()
	}
}

// Sync flushes any buffered log entries. Should be called before the
// application exits. Sync errors on stdout are expected on some platforms
// and are ignored.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
