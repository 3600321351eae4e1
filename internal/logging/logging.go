// Package logging configures the gateway's structured, JSON-line logger
// and the per-request correlation fields it carries.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the root slog logger to emit JSON lines at the given
// level (case-insensitive; defaults to INFO on an unrecognized value).
func Setup(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID returns a logger scoped to one request, carrying the
// request_id field through every subsequent log line so logs, metrics, and
// persisted rows can be joined on the same key.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

type contextKey int

const loggerContextKey contextKey = iota

// IntoContext stashes a request-scoped logger on the context.
func IntoContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext retrieves the request-scoped logger, or slog.Default() if
// none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
