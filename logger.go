package codescope

import (
	"context"
	"log/slog"
)

// Logger provides structured logging.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// NewSlogLogger adapts a *slog.Logger to Logger. A nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLogger{logger: logger}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	l.logger.DebugContext(ctx, msg, keysAndValues...)
}

func (l *slogLogger) Info(ctx context.Context, msg string, keysAndValues ...any) {
	l.logger.InfoContext(ctx, msg, keysAndValues...)
}

func (l *slogLogger) Error(ctx context.Context, msg string, keysAndValues ...any) {
	l.logger.ErrorContext(ctx, msg, keysAndValues...)
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
