package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shopfinder/pkg/config"
)

func TestInit(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	// Pre-existing log must be rotated to .old
	if err := os.WriteFile(serverLog, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	RequestLogger.Info("request", "path", "/health")
	slog.Debug("debug line")
	cleanup()

	old, err := os.ReadFile(serverLog + ".old")
	if err != nil {
		t.Fatalf("rotated log missing: %v", err)
	}
	if string(old) != "previous run\n" {
		t.Errorf("rotated content = %q", old)
	}

	server, _ := os.ReadFile(serverLog)
	if !strings.Contains(string(server), "debug line") {
		t.Error("server log should contain DEBUG output")
	}
	requests, _ := os.ReadFile(requestLog)
	if !strings.Contains(string(requests), "path=/health") {
		t.Error("request log should contain request line")
	}
}

func TestParseLevel(t *testing.T) {
	t.Cleanup(func() { EnableTrace = false })

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if ParseLevel("trace") != slog.LevelDebug || !EnableTrace {
		t.Error("TRACE should map to DEBUG and enable trace logs")
	}
}

func TestMultiHandler_FansOut(t *testing.T) {
	var debugBuf, infoBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}}

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("multiHandler should be enabled when any child is")
	}

	logger := slog.New(h).With("component", "test")
	logger.Debug("quiet")
	logger.Info("loud")

	if !strings.Contains(debugBuf.String(), "quiet") || !strings.Contains(debugBuf.String(), "loud") {
		t.Errorf("debug handler missed output: %q", debugBuf.String())
	}
	if strings.Contains(infoBuf.String(), "quiet") {
		t.Error("info handler should filter debug records")
	}
	if !strings.Contains(infoBuf.String(), "component=test") {
		t.Error("attrs should propagate to every handler")
	}
}
