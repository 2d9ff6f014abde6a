package asyncarray

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/asyncarray/device"
)

// Logger wraps slog.Logger with buffer-lifecycle helpers.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogAlloc logs a host or device allocation of count elements.
func (l *Logger) LogAlloc(ctx context.Context, space Space, count, bytes int, err error) {
	log := l.WithCount(count)
	if err != nil {
		log.ErrorContext(ctx, "allocation failed",
			"space", space.String(),
			"bytes", bytes,
			"error", err,
		)
	} else {
		log.DebugContext(ctx, "allocated",
			"space", space.String(),
			"bytes", bytes,
		)
	}
}

// LogRelease logs which release path a buffer took.
func (l *Logger) LogRelease(ctx context.Context, path ReleasePath, bytes int, ptr device.Ptr) {
	l.DebugContext(ctx, "release",
		"path", path.String(),
		"bytes", bytes,
		"device_ptr", ptr.String(),
	)
}

// LogFallback logs a synchronous release on a stream without a completion hook.
func (l *Logger) LogFallback(ctx context.Context, ptr device.Ptr) {
	l.DebugContext(ctx, "stream has no completion hook, synchronizing before free",
		"device_ptr", ptr.String(),
	)
}

// LogReclaimed logs device storage released after its device was closed.
func (l *Logger) LogReclaimed(ctx context.Context, ptr device.Ptr, cause error) {
	l.WarnContext(ctx, "device closed before buffer release, storage reclaimed with the device",
		"device_ptr", ptr.String(),
		"error", cause,
	)
}

// LogAbort logs a fatal failure.
func (l *Logger) LogAbort(ctx context.Context, err *AbortError) {
	l.ErrorContext(ctx, "fatal",
		"op", err.Op,
		"error", err.Err,
	)
}
