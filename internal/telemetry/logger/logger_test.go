package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "text", Output: &buf})

	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line emitted at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn line missing")
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("hello", "answer", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["answer"] != float64(42) {
		t.Errorf("entry = %v", entry)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("auth configured", "password", "s3cret", "user", "admin")

	out := buf.String()
	if strings.Contains(out, "s3cret") {
		t.Errorf("password leaked into log output: %s", out)
	}
	if !strings.Contains(out, redactedPlaceholder) {
		t.Errorf("redaction placeholder missing: %s", out)
	}
	if !strings.Contains(out, "admin") {
		t.Errorf("non-sensitive attribute lost: %s", out)
	}
}

func TestRedactSensitive_CaseInsensitive(t *testing.T) {
	a := redactSensitive(slog.String("PASSWORD", "x"))
	if a.Value.String() != redactedPlaceholder {
		t.Errorf("PASSWORD not redacted: %v", a.Value)
	}
	b := redactSensitive(slog.String("bind", "127.0.0.1"))
	if b.Value.String() != "127.0.0.1" {
		t.Errorf("benign attribute modified: %v", b.Value)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
