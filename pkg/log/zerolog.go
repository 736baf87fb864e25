package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const (
	// ErrAttrKey is the field key errors are logged under.
	ErrAttrKey = "error"
	// NameKey is the field key set by GetLoggerWithName.
	NameKey = "logger"
)

// ZerologProvider is the production LoggerProvider backed by zerolog.
// Loggers handed out by one provider share its level, so SetLevel applies to
// loggers that were created earlier.
type ZerologProvider struct {
	base  zerolog.Logger
	level *atomic.Int64
}

// ProviderOption configures a ZerologProvider.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	out     io.Writer
	console bool
}

// WithWriter sets the destination of log records. Defaults to os.Stderr.
func WithWriter(w io.Writer) ProviderOption {
	return func(c *providerConfig) { c.out = w }
}

// WithConsole switches to zerolog's human readable console format.
func WithConsole(console bool) ProviderOption {
	return func(c *providerConfig) { c.console = console }
}

// NewZerologProvider creates a provider emitting records at or above level.
func NewZerologProvider(level Level, opts ...ProviderOption) *ZerologProvider {
	cfg := providerConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := cfg.out
	if cfg.console {
		out = zerolog.ConsoleWriter{Out: cfg.out, TimeFormat: time.RFC3339}
	}

	lv := &atomic.Int64{}
	lv.Store(int64(level))
	return &ZerologProvider{
		base:  zerolog.New(out).With().Timestamp().Logger(),
		level: lv,
	}
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.base.With().Str(NameKey, name).Logger(), level: p.level}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int64(level))
}

type zerologLogger struct {
	zl    zerolog.Logger
	level *atomic.Int64
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(LevelDebug, l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(LevelInfo, l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(LevelWarn, l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	l.emit(LevelError, l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{
		zl:    l.zl.With().Fields(normalizeFields(fields)).Logger(),
		level: l.level,
	}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= Level(l.level.Load())
}

func (l *zerologLogger) emit(level Level, ev *zerolog.Event, msg string, fields []any) {
	if ev == nil || level < Level(l.level.Load()) {
		return
	}
	kv := normalizeFields(fields)
	for i := 1; i < len(kv); i += 2 {
		if err, ok := kv[i].(error); ok {
			if st := extractStacktrace(err); st != "" {
				ev = ev.Str(StacktraceKey, st)
			}
			kv[i] = err.Error()
		}
	}
	ev.Fields(kv).Msg(msg)
}

// normalizeFields turns a loose field list into strict key/value pairs.
// A bare error in key position becomes ErrAttrKey; a dangling key gets a nil value.
func normalizeFields(fields []any) []interface{} {
	kv := make([]interface{}, 0, len(fields)+1)
	for i := 0; i < len(fields); i++ {
		if err, ok := fields[i].(error); ok {
			kv = append(kv, ErrAttrKey, err)
			continue
		}
		key := fmt.Sprintf("%v", fields[i])
		if i+1 >= len(fields) {
			kv = append(kv, key, nil)
			break
		}
		kv = append(kv, key, fields[i+1])
		i++
	}
	return kv
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
