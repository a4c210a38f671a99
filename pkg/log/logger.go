// Package log provides structured logging utilities for the mining client.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// FileConfig configures the optional rotating file sink. When Path is empty
// logs go to stdout only.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	return NewWithFile(service, version, level, format, FileConfig{})
}

// NewWithFile creates a new logger that additionally writes to a rotating
// file sink when file.Path is set.
func NewWithFile(service, version, level, format string, file FileConfig) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if file.Path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    orDefault(file.MaxSizeMB, 100),
			MaxBackups: orDefault(file.MaxBackups, 5),
			MaxAge:     orDefault(file.MaxAgeDays, 28),
			Compress:   file.Compress,
		})
	}

	// Create handler based on format
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	// Create base logger with service context
	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	// Extract common context values if they exist
	logger := l.Logger

	// Add request ID if available
	if reqID := ctx.Value("request_id"); reqID != nil {
		logger = logger.With("request_id", reqID)
	}

	// Add trace ID if available
	if traceID := ctx.Value("trace_id"); traceID != nil {
		logger = logger.With("trace_id", traceID)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithWorker returns a logger with worker-specific fields
func (l *Logger) WithWorker(address string, workerID int) *Logger {
	return l.WithFields("address", address, "worker_id", workerID)
}

// WithChallenge returns a logger with challenge-specific fields
func (l *Logger) WithChallenge(challengeID string, difficulty string) *Logger {
	return l.WithFields("challenge_id", challengeID, "difficulty", difficulty)
}

// WithAddress returns a logger with an address field
func (l *Logger) WithAddress(address string) *Logger {
	return l.WithFields("address", address)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Performance logging helpers

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, duration int64) {
	l.Info("operation completed",
		"operation", operation,
		"duration_ns", duration,
		"duration_ms", float64(duration)/1e6,
	)
}

// LogThroughput logs throughput metrics
func (l *Logger) LogThroughput(operation string, count int64, duration int64) {
	throughput := float64(count) / (float64(duration) / 1e9) // ops per second
	l.Info("throughput metrics",
		"operation", operation,
		"count", count,
		"duration_ns", duration,
		"throughput_ops_sec", throughput,
	)
}

// Connection logging helpers

// LogConnection logs connection events
func (l *Logger) LogConnection(event, remoteAddr string) {
	l.Info("connection event",
		"event", event,
		"remote_addr", remoteAddr,
	)
}

// Mining-specific logging helpers

// LogSolutionFound logs when a worker finds a nonce satisfying the difficulty predicate
func (l *Logger) LogSolutionFound(address, challengeID string, workerID int, nonce uint32) {
	l.Info("solution found",
		"address", address,
		"challenge_id", challengeID,
		"worker_id", workerID,
		"nonce", nonce,
	)
}

// LogSubmissionResult logs the outcome of a solution submission to the network
func (l *Logger) LogSubmissionResult(address, challengeID string, accepted bool, reason string) {
	l.Info("submission result",
		"address", address,
		"challenge_id", challengeID,
		"accepted", accepted,
		"reason", reason,
	)
}

// LogRotation logs a challenge rotation or mutation detected by the poller
func (l *Logger) LogRotation(previousChallengeID, newChallengeID string, reason string) {
	l.Info("challenge rotated",
		"previous_challenge_id", previousChallengeID,
		"new_challenge_id", newChallengeID,
		"reason", reason,
	)
}

// LogDevFeeTrigger logs a dev-fee cohort being scheduled
func (l *Logger) LogDevFeeTrigger(feeAddress string, solutionCount int64, ratio float64) {
	l.Info("dev fee triggered",
		"fee_address", feeAddress,
		"solution_count", solutionCount,
		"ratio", ratio,
	)
}

// LogWorkerStopped logs a worker halting, with the reason it stopped
func (l *Logger) LogWorkerStopped(address string, workerID int, reason string) {
	l.Info("worker stopped",
		"address", address,
		"worker_id", workerID,
		"reason", reason,
	)
}
