package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}).WithComponent(ComponentLedger)
	l.Info("hello", FieldAmount, 42)
	out := buf.String()
	if !strings.Contains(out, `"component":"ledger"`) || !strings.Contains(out, `"amount":42`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	req := httptest.NewRequest("GET", "/api/state", nil)
	ctx := context.WithValue(req.Context(), LoggerContextKey, l)
	if FromContext(ctx) != l {
		t.Fatalf("expected the stored logger")
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
}

func TestStructuredLoggerError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))
	sl.LogError(context.Background(), "persist failed", errors.New("disk full"), ComponentStorage, OpPersist, nil)
	out := buf.String()
	for _, want := range []string{"persist failed", "error=\"disk full\"", "operation=persist", "component=storage"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}
