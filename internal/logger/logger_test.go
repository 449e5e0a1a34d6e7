package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/RelayForge/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return rec
}

func TestLoggerAddsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newLogger(&buf, config.Logging{Level: "info", Service: "fraud-agent"})
	defer closer.Close()

	ctx := WithAgentID(WithRequestID(context.Background(), "req-9"), "fraud-agent-001")
	l.InfoContext(ctx, "task completed", "task_id", "t-1")

	rec := decodeLine(t, &buf)
	if rec["service"] != "fraud-agent" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["request_id"] != "req-9" {
		t.Errorf("request_id = %v", rec["request_id"])
	}
	if rec["agent_id"] != "fraud-agent-001" {
		t.Errorf("agent_id = %v", rec["agent_id"])
	}
	if rec["task_id"] != "t-1" {
		t.Errorf("task_id = %v", rec["task_id"])
	}
}

func TestLoggerAsyncKeepsAttrs(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newLogger(&buf, config.Logging{Level: "info", Service: "registry", Async: true})

	l.With("component", "discovery").InfoContext(WithRequestID(context.Background(), "req-1"), "discovery refresh failed")
	closer.Close()

	rec := decodeLine(t, &buf)
	if rec["component"] != "discovery" || rec["request_id"] != "req-1" || rec["service"] != "registry" {
		t.Fatalf("attributes lost across async hop: %v", rec)
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newLogger(&buf, config.Logging{Level: "warn"})
	defer closer.Close()

	l.Info("ignored")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()

	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
	if got := AgentID(ctx); got != "" {
		t.Errorf("expected empty agent ID, got %q", got)
	}

	ctx = WithAgentID(WithRequestID(ctx, "req-123"), "agent-7")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
	if got := AgentID(ctx); got != "agent-7" {
		t.Errorf("expected agent-7, got %q", got)
	}
}
