// Package logging wires the process's structured logger. It wraps log/slog,
// using tint for human-readable console output and slog's own JSON handler
// for production/aggregated output.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Format selects the rendering of log records.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// New builds a slog.Logger per the given level and format. level accepts
// debug/info/warn/error (case-insensitive), defaulting to info.
func New(level string, format Format) *slog.Logger {
	lvl := ParseLevel(level)

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05.000",
		})
	}

	return slog.New(handler)
}

// ParseLevel parses a level string, defaulting to info on anything unknown.
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

// ParseFormat parses a format string, defaulting to console on anything
// unknown.
func ParseFormat(format string) Format {
	if strings.EqualFold(format, "json") {
		return FormatJSON
	}
	return FormatConsole
}

type loggerKey struct{}

// WithContext attaches logger to ctx so downstream calls can retrieve it
// via FromContext without threading it through every function signature.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the logger attached by WithContext, falling back
// to slog.Default() when none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
