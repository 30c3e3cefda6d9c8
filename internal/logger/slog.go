package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

var (
	slogger *slog.Logger
	logFile *os.File
)

// Options controls where log records go.
type Options struct {
	// Dir is the directory for the daily log file. Empty disables the file.
	Dir string
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
	// Debug lowers the level to debug and mirrors records to stderr.
	Debug bool
}

// InitSlog initializes the slog-based logger.
// The terminal belongs to the user-facing output, so records only reach
// stderr when Debug is set.
func InitSlog(opts Options) error {
	var writers []io.Writer

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return err
		}

		logFileName := "pubctl-" + time.Now().Format("2006-01-02") + ".log"
		logFilePath := filepath.Join(opts.Dir, logFileName)

		var err error
		logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writers = append(writers, logFile)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
		writers = append(writers, os.Stderr)
	}

	var writer io.Writer = io.Discard
	if len(writers) > 0 {
		writer = io.MultiWriter(writers...)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)

	return nil
}

// CloseSlog closes the slog log file
func CloseSlog() error {
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Slog returns the slog.Logger instance for structured logging
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

// Context keys for structured logging
type contextKey string

const (
	ContextKeyRunID      contextKey = "run_id"
	ContextKeyWorkerMode contextKey = "worker_mode"
	ContextKeyPublisher  contextKey = "publisher"
)

// WithValue returns a copy of ctx carrying a log field.
func WithValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithContext returns a logger with context fields
func WithContext(ctx context.Context) *slog.Logger {
	logger := Slog()

	if runID := ctx.Value(ContextKeyRunID); runID != nil {
		logger = logger.With("run_id", runID)
	}
	if mode := ctx.Value(ContextKeyWorkerMode); mode != nil {
		logger = logger.With("worker_mode", mode)
	}
	if publisher := ctx.Value(ContextKeyPublisher); publisher != nil {
		logger = logger.With("publisher", publisher)
	}

	return logger
}

// InfoContext logs an info message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// ErrorContext logs an error with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// WarnContext logs a warning with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// DebugContext logs debug info with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}
