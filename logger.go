package kmeansmr

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pipeline-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRound adds a round field to the logger.
func (l *Logger) WithRound(round uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("round", round),
	}
}

// WithStage adds a stage field to the logger.
func (l *Logger) WithStage(stage Stage) *Logger {
	return &Logger{
		Logger: l.Logger.With("stage", string(stage)),
	}
}

// WithK adds a k (cluster count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogStage logs the end of a pipeline stage.
func (l *Logger) LogStage(ctx context.Context, stage Stage, round int, records int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "stage failed",
			"stage", string(stage),
			"round", round,
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "stage completed",
			"stage", string(stage),
			"round", round,
			"records", records,
			"duration", duration,
		)
	}
}

// LogPublish logs a centroid publish.
func (l *Logger) LogPublish(ctx context.Context, round uint64, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "centroid publish failed",
			"round", round,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "centroids published",
			"round", round,
			"k", k,
		)
	}
}

// LogTransition logs a state machine transition.
func (l *Logger) LogTransition(ctx context.Context, from, to State) {
	level := slog.LevelDebug
	if to == StateFailed {
		level = slog.LevelWarn
	}
	l.Log(ctx, level, "pipeline state changed",
		"from", from.String(),
		"to", to.String(),
	)
}
