package log

import (
	"context"
	"log/slog"
	"os"
)

// service is stamped on every record from the default logger so aggregated
// logs can be filtered down to this process.
const service = "spreadpilot"

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	})).With(slog.String("service", service))
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Configure sets the level for the package logger and installs it as the
// process-wide slog default. Call it once after flag parsing.
func Configure(level slog.Level) {
	defaultLogLevel.Set(level)
	slog.SetDefault(defaultLogger)
}
