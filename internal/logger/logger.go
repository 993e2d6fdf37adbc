// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context, optional rotating
// file output, and trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Config selects log level and an optional rotating log file.
type Config struct {
	Service    string
	Level      slog.Level
	File       string // empty: stdout only
	MaxSizeMB  int    // default 50
	MaxBackups int    // default 7
	MaxAgeDays int    // default 30
}

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return newLogger(os.Stdout, service, level)
}

// New builds the logger described by cfg and installs it as the slog
// default. When cfg.File is set, output goes to stdout and the rotating
// file, and the standard library logger is redirected there too.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	if cfg.File == "" {
		return Init(cfg.Service, cfg.Level), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log dir: %w", err)
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 7
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}
	rot := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	w := io.MultiWriter(os.Stdout, rot)
	log.SetOutput(w)
	return newLogger(w, cfg.Service, cfg.Level), rot, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newLogger(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a tag and the candle timestamp.
// Format: "{tag}-{unix}". Replays of the same candle get the same id.
func GenerateTraceID(tag string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", tag, ts.Unix())
}

// LogWithTrace returns slog attributes including the trace ID from context.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
