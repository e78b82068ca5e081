package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewFormats(t *testing.T) {
	color.NoColor = true

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer := New(&buf, Options{Level: "info", Format: "json"})
		defer closer.Close()
		logger.Debug("hidden")
		logger.Info("hello", "round", 2)

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
		}
		if rec["msg"] != "hello" || rec["round"] != 2.0 {
			t.Errorf("unexpected record %v", rec)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer := New(&buf, Options{Format: "text"})
		defer closer.Close()
		logger.Info("hello", "k", "v")
		if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "k=v") {
			t.Errorf("unexpected text output %q", buf.String())
		}
	})

	t.Run("color", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer := New(&buf, Options{Level: "debug", Format: "color"})
		defer closer.Close()
		logger.With("email", "a@example.com").WithGroup("meta").Info("Starting", "round", 1)
		out := buf.String()
		for _, want := range []string{"INFO:", "Starting", "email=a@example.com", "meta.round=1"} {
			if !strings.Contains(out, want) {
				t.Errorf("color output %q missing %q", out, want)
			}
		}
	})
}

func TestFileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizsolver.log")
	var console bytes.Buffer
	logger, closer := New(&console, Options{Level: "info", Format: "text", File: path})
	logger.Warn("disk check", "free", "low")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("expected JSON in log file, got %q: %v", data, err)
	}
	if rec["msg"] != "disk check" {
		t.Errorf("unexpected file record %v", rec)
	}
	if !strings.Contains(console.String(), "disk check") {
		t.Errorf("console should also receive the record, got %q", console.String())
	}
}
