package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuhlman-labs/migration-auditor/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"default level", "invalid", slog.LevelInfo},
		{"empty level", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLevel(tt.level)
			if got != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "info"}, Options{Console: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("visible", "repo", "billing")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "repo=billing") {
		t.Errorf("console output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("non-terminal console output contains ANSI escapes: %q", out)
	}
}

func TestNewLogger_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "error"}, Options{Console: &buf, Verbose: true})
	defer logger.Close()

	logger.Debug("page fetched", "page", 2)
	if !strings.Contains(buf.String(), "page fetched") {
		t.Errorf("verbose logger dropped debug line: %q", buf.String())
	}
}

func TestNewLogger_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	var console bytes.Buffer

	logger := NewLogger(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		OutputFile: path,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}, Options{Console: &console})

	logger.Info("stage finished", "stage", "branches", "failed", 0)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file line is not JSON: %v (%q)", err, data)
	}
	if entry["msg"] != "stage finished" || entry["stage"] != "branches" {
		t.Errorf("file entry = %v", entry)
	}
	if !strings.Contains(console.String(), "stage finished") {
		t.Errorf("console missing line: %q", console.String())
	}
}

func TestMultiHandler_RespectsEachLevel(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("run_id", "r1").WithGroup("unit")

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("Enabled(debug) = false, want true")
	}

	logger.Debug("detail", "name", "billing")
	logger.Warn("unit failed", "name", "billing")

	if !strings.Contains(debugBuf.String(), "detail") || !strings.Contains(debugBuf.String(), "unit failed") {
		t.Errorf("debug handler output = %q", debugBuf.String())
	}
	if strings.Contains(warnBuf.String(), "detail") {
		t.Errorf("warn handler received debug record: %q", warnBuf.String())
	}
	if !strings.Contains(warnBuf.String(), "run_id=r1") || !strings.Contains(warnBuf.String(), "unit.name=billing") {
		t.Errorf("attrs or group not propagated: %q", warnBuf.String())
	}
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	var l *Logger
	if err := l.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	logger := NewLogger(config.LoggingConfig{}, Options{Console: &bytes.Buffer{}})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
