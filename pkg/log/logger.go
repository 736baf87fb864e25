package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tferrors "github.com/YuminosukeSato/tabflow/pkg/errors"
)

var (
	providerMu     sync.RWMutex
	globalProvider LoggerProvider = NewZerologProvider(LevelInfo)
)

// SetupLogger installs a zerolog provider as the global provider and routes
// library warnings (convergence, undefined metrics) through it.
// format is "json" or "console".
func SetupLogger(loglevel, format string, out io.Writer) error {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return err
	}
	if out == nil {
		out = os.Stderr
	}

	var console bool
	switch strings.ToLower(format) {
	case "", "json":
	case "console", "text":
		console = true
	default:
		return tferrors.NewValidationError("log.format", "must be json or console", format)
	}

	SetGlobalLoggerProvider(NewZerologProvider(level, WithWriter(out), WithConsole(console)))
	return nil
}

// SetGlobalLoggerProvider replaces the provider used by GetLogger and
// GetLoggerWithName, and re-registers the warning sink.
func SetGlobalLoggerProvider(p LoggerProvider) {
	providerMu.Lock()
	globalProvider = p
	providerMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	tferrors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn(w.Error(), ErrorTypeKey, fmt.Sprintf("%T", w))
	})
}

// GetLogger returns the default logger of the global provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns a named logger of the global provider.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, tferrors.NewValidationError("log.level", "must be one of debug, info, warn, error", level)
	}
}

// ToLogLevel is ParseLevel for hard-coded levels. It panics on unknown input.
func ToLogLevel(level string) Level {
	lv, err := ParseLevel(level)
	if err != nil {
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
	return lv
}
