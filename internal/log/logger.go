package log

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Logger provides structured diagnostics on top of slog. It never carries
// audit data; the hash-chained audit log is the record of decisions.
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = DefaultConfig().Output
	}
	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{slog: slog.New(handler), config: config}
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config}
}

// WithTrace scopes the logger to one orchestrator run.
func (l *Logger) WithTrace(traceID string) *Logger {
	return l.With("trace", traceID)
}

// WithStep scopes the logger to one plan step.
func (l *Logger) WithStep(index int, task string) *Logger {
	return l.With("step", index, "task", task)
}

// WithError adds error details to the logger. Coded errors contribute
// error_code and suggestions.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	if gateErr, ok := err.(*errors.GateError); ok {
		args := []any{
			"error", gateErr.Message,
			"error_code", string(gateErr.Code),
		}
		if len(gateErr.Suggestions) > 0 {
			args = append(args, "suggestions", gateErr.Suggestions)
		}
		if gateErr.Cause != nil {
			args = append(args, "cause", gateErr.Cause.Error())
		}
		return l.With(args...)
	}

	return l.With("error", err.Error())
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.slogLevel())
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}
