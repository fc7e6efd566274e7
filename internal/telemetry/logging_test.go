package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	setupTracerProvider(t)

	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	ctx, span := StartSpan(context.Background(), "checkout")
	logger.InfoContext(ctx, "order created", "order_id", "order-1")
	span.End()

	logger.InfoContext(context.Background(), "no span")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0]["trace_id"] != TraceID(ctx) || entries[0]["span_id"] != SpanID(ctx) {
		t.Errorf("expected span ids on first entry, got %v", entries[0])
	}
	if entries[0]["order_id"] != "order-1" {
		t.Errorf("expected order_id attribute, got %v", entries[0]["order_id"])
	}
	if _, ok := entries[1]["trace_id"]; ok {
		t.Errorf("expected no trace_id without a span, got %v", entries[1])
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("dropped")
	logger.Warn("kept")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["msg"] != "kept" {
		t.Fatalf("expected only the warning, got %v", entries)
	}
}

func TestLoggerKeepsGroupsAndAttrs(t *testing.T) {
	setupTracerProvider(t)

	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).
		With("service", "checkout-api").
		WithGroup("payment").
		With("source", "webhook")

	ctx, span := StartSpan(context.Background(), "reconcile")
	defer span.End()
	logger.InfoContext(ctx, "reconciled", "transitioned", true)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]

	if entry["service"] != "checkout-api" {
		t.Errorf("expected top-level service attr, got %v", entry["service"])
	}
	if _, ok := entry["trace_id"]; !ok {
		t.Error("expected trace_id at top level")
	}
	group, ok := entry["payment"].(map[string]any)
	if !ok {
		t.Fatalf("expected payment group, got %v", entry["payment"])
	}
	if group["source"] != "webhook" || group["transitioned"] != true {
		t.Errorf("unexpected group contents %v", group)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: " INFO ", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
