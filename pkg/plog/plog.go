// Package plog is the process-wide structured logger. It wraps log/slog with
// package-level helpers so every component logs through the same sink, which
// can be swapped at runtime for the host application's log collaborator.
package plog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Log levels. Notice sits between Debug and Info and is used for per-entry
// progress lines; Critical sits above Error and marks aborted operations.
const (
	LevelDebug    = slog.LevelDebug
	LevelNotice   = slog.Level(-2)
	LevelInfo     = slog.LevelInfo
	LevelWarn     = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelNotice:   "NOTICE",
	LevelCritical: "CRITICAL",
}

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// levelGate applies the global level to a handler supplied from outside,
// which has no notion of our LevelVar.
type levelGate struct {
	next slog.Handler
}

func (g *levelGate) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= currentLevel.Level() && g.next.Enabled(ctx, level)
}

func (g *levelGate) Handle(ctx context.Context, r slog.Record) error {
	return g.next.Handle(ctx, r)
}

func (g *levelGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelGate{next: g.next.WithAttrs(attrs)}
}

func (g *levelGate) WithGroup(name string) slog.Handler {
	return &levelGate{next: g.next.WithGroup(name)}
}

var (
	defaultLogger atomic.Pointer[slog.Logger]
	currentLevel  = new(slog.LevelVar)
)

// replaceLevelName prints our custom levels by name instead of "INFO-2".
func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		if name, found := levelNames[lvl]; found {
			a.Value = slog.StringValue(name)
		}
	}
	return a
}

func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: currentLevel, ReplaceAttr: replaceLevelName}
}

func init() {
	currentLevel.Set(LevelInfo)
	// Handler for info-level logs (and below) to stdout, warnings and up to stderr.
	defaultLogger.Store(slog.New(&LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(os.Stdout, handlerOptions()),
		stderrHandler: slog.NewTextHandler(os.Stderr, handlerOptions()),
	}))
}

// SetOutput redirects all log levels to a single writer, primarily for
// testing and for the CLI's rotated log file.
func SetOutput(w io.Writer) {
	defaultLogger.Store(slog.New(slog.NewTextHandler(w, handlerOptions())))
}

// SetHandler routes all log records through h, filtered by the global level.
func SetHandler(h slog.Handler) {
	defaultLogger.Store(slog.New(&levelGate{next: h}))
}

// SetLevel sets the minimum level that is logged.
func SetLevel(level slog.Level) {
	currentLevel.Set(level)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return currentLevel.Level()
}

// ParseLevel converts a config/flag string into a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "notice":
		return LevelNotice, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level: %q. Must be 'debug', 'notice', 'info', 'warn', 'error' or 'critical'", s)
}

// Logger returns the current underlying slog.Logger.
func Logger() *slog.Logger {
	return defaultLogger.Load()
}

func logAt(level slog.Level, msg string, args ...any) {
	defaultLogger.Load().Log(context.Background(), level, msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) { logAt(LevelDebug, msg, args...) }

// Notice logs a per-entry progress message.
func Notice(msg string, args ...any) { logAt(LevelNotice, msg, args...) }

// Info logs an informational message.
func Info(msg string, args ...any) { logAt(LevelInfo, msg, args...) }

// Warn logs a warning message.
func Warn(msg string, args ...any) { logAt(LevelWarn, msg, args...) }

// Error logs an error message.
func Error(msg string, args ...any) { logAt(LevelError, msg, args...) }

// Critical logs a message for an operation that was aborted.
func Critical(msg string, args ...any) { logAt(LevelCritical, msg, args...) }
