package logger

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	logger, closer, err := New(Config{Service: "paperbot", Level: slog.LevelDebug, File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		log.SetOutput(os.Stderr)
		closer.Close()
	}()

	logger.Info("candle processed", slog.String("tag", "NIFTY"))
	log.Printf("[ledger] OPEN test")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	if !strings.Contains(out, `"service":"paperbot"`) || !strings.Contains(out, "candle processed") {
		t.Errorf("structured line missing:\n%s", out)
	}
	if !strings.Contains(out, "[ledger] OPEN test") {
		t.Errorf("std log line missing:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	// Set and retrieve
	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	tid := GenerateTraceID("NIFTY", ts)

	if tid != "NIFTY-1772620200" {
		t.Errorf("trace id = %s", tid)
	}
	if GenerateTraceID("NIFTY", ts) != tid {
		t.Error("trace id must be deterministic for a candle")
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	// No trace ID
	attrs := LogWithTrace(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	attrs = LogWithTrace(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with trace id set")
	}
}
