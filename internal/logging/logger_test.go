package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chronicle/internal/services"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.log")

	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", String("stage", "segment"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Fatalf("log file = %q, want JSON record", data)
	}
	if !strings.Contains(string(data), `"stage":"segment"`) {
		t.Fatalf("log file = %q, want stage attribute", data)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWithContextAnnotatesIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := services.WithBatchID(context.Background(), 7)
	ctx = services.WithItemID(ctx, 42)
	ctx = services.WithStage(ctx, "merge")
	ctx = services.WithRequestID(ctx, "req-1")

	WithContext(ctx, logger).Info("annotated")

	out := buf.String()
	for _, want := range []string{`"batch_id":7`, `"item_id":42`, `"stage":"merge"`, `"request_id":"req-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should report disabled at every level")
	}
	logger.Error("swallowed")
}
