// Package logger provides the engine's structured logging, shared by every
// migration phase; WithRunID, WithPhase, and WithWorkflow attach correlation
// fields to a logger's lines.
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with contextual fields used across the migration run.
type Logger struct {
	*slog.Logger
}

// New creates a logger. format "json" is for non-interactive use (CI, piped
// output); anything else gets tint's colored console handler, the default
// for a human running the migration from a terminal.
func New(level, format string) *Logger {
	var handler slog.Handler

	logLevel := parseLevel(level)

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
			AddSource:  false,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithContext returns a logger with trace_id from context, if present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := ctx.Value(traceIDKey{}); traceID != nil {
		return &Logger{Logger: l.With("trace_id", traceID)}
	}
	return l
}

type traceIDKey struct{}

// WithRunID adds run_id to every subsequent log line from this logger.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.With("run_id", runID)}
}

// WithPhase adds the current migration phase name to the logger.
func (l *Logger) WithPhase(phase string) *Logger {
	return &Logger{Logger: l.With("phase", phase)}
}

// WithWorkflow adds the workflow under processing to the logger.
func (l *Logger) WithWorkflow(name string) *Logger {
	return &Logger{Logger: l.With("workflow", name)}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
