// Package logger provides structured logging for tablesync.
// Messages go to stderr through log/slog. The default level is warn so a
// manual run only shows pipeline progress; the --verbose flag lowers it to
// debug to trace each stage and retry.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	level             = slog.LevelWarn
	format            = FormatText
	output  io.Writer = os.Stderr
	current           = build()
)

// build creates a logger from the package settings (caller must hold lock).
func build() *slog.Logger {
	lvl := level
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	current = build()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	current = build()
}

// SetLevel sets the minimum level: debug, info, warn or error.
func SetLevel(name string) error {
	var lvl slog.Level
	switch strings.ToLower(name) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning", "":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	current = build()
	return nil
}

// SetFormat selects the text or json handler.
func SetFormat(name string) error {
	switch name {
	case FormatText, FormatJSON:
	case "":
		name = FormatText
	default:
		return fmt.Errorf("unknown log format %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	format = name
	current = build()
	return nil
}

// L returns the current logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// With returns the current logger with attrs attached.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

type ctxKey struct{}

// WithContext returns a context carrying l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or the current logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return L()
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}
