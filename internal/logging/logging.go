// Package logging provides the structured logger used across classledger and
// its implementations: a no-op default, a log/slog adapter, a Rollbar
// reporter and a fan-out combinator.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Logger is the minimal structured logger accepted by the store, the
// persistence adapter and the service. Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Noop returns a logger that discards everything.
func Noop() Logger { return noopLogger{} }

// OrNoop returns l, or a no-op logger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlog wraps an slog logger. A nil logger uses slog.Default().
func NewSlog(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

// New builds an slog-backed logger writing to w in the given format
// ("json" or "text") at the given level name.
func New(w io.Writer, format, level string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &SlogLogger{l: slog.New(h)}
}

// ParseLevel maps a level name to an slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *SlogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// Enabled reports whether the underlying handler emits records at level.
func (s *SlogLogger) Enabled(level slog.Level) bool {
	return s.l.Enabled(context.Background(), level)
}

// Multi fans every call out to each non-nil logger.
type Multi []Logger

func (m Multi) Debug(msg string, args ...any) {
	for _, l := range m {
		if l != nil {
			l.Debug(msg, args...)
		}
	}
}

func (m Multi) Info(msg string, args ...any) {
	for _, l := range m {
		if l != nil {
			l.Info(msg, args...)
		}
	}
}

func (m Multi) Warn(msg string, args ...any) {
	for _, l := range m {
		if l != nil {
			l.Warn(msg, args...)
		}
	}
}

func (m Multi) Error(msg string, args ...any) {
	for _, l := range m {
		if l != nil {
			l.Error(msg, args...)
		}
	}
}
