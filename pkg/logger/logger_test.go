package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("yaml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf), WithFormat("json")); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "score submitted",
		Int64("player_id", 42),
		Int64("total", 150),
		Duration("took", 3*time.Millisecond),
		Error(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "score submitted" {
		t.Errorf("unexpected msg: %v", rec["msg"])
	}
	if rec["player_id"] != float64(42) {
		t.Errorf("unexpected player_id: %v", rec["player_id"])
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Level() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", Level())
	}
	Get().Debug(ctx, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}

	if err := SetLevelString("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggerNamedAndWith(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Named("ranking").With(String("component", "engine")).Info(ctx, "rebuilt", Int("size", 10))

	out := buf.String()
	if !strings.Contains(out, "component=engine") {
		t.Errorf("expected bound field in output, got %q", out)
	}
	if !strings.Contains(out, "ranking.size=10") {
		t.Errorf("expected grouped field in output, got %q", out)
	}
}
