package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"market-feed-go/config"
)

func TestNewRejectsInvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestNewWithFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Outputs = []string{"file"}
	cfg.OutputFile = filepath.Join(t.TempDir(), "feed.log")
	cfg.Format = "console"
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()
	l.Info("hello")
}

func TestLogFeedAndError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.LogFeed("symbol_added", map[string]interface{}{"symbol": "AAPL"})
	l.LogError(errors.New("boom"), map[string]interface{}{"action": "stop"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	feed := entries[0].ContextMap()
	if entries[0].Message != "feed_event" || feed["event"] != "symbol_added" || feed["symbol"] != "AAPL" {
		t.Errorf("unexpected feed entry: %+v", entries[0])
	}
	if _, ok := feed["ts"]; !ok {
		t.Errorf("feed entry missing ts: %v", feed)
	}
	errEntry := entries[1].ContextMap()
	if entries[1].Level != zapcore.ErrorLevel || errEntry["error"] != "boom" || errEntry["action"] != "stop" {
		t.Errorf("unexpected error entry: %+v", entries[1])
	}
}

func TestErrorFileReceivesOnlyErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := FromAppConfig(config.LogConfig{
		Outputs:    []string{"file"},
		OutputFile: filepath.Join(dir, "feed.log"),
		ErrorFile:  filepath.Join(dir, "error.log"),
	})
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("poller started")
	l.Error("poll failed")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	all, _ := os.ReadFile(cfg.OutputFile)
	errs, _ := os.ReadFile(cfg.ErrorFile)
	if !strings.Contains(string(all), "poller started") || !strings.Contains(string(all), "poll failed") {
		t.Errorf("main log missing entries: %s", all)
	}
	if strings.Contains(string(errs), "poller started") || !strings.Contains(string(errs), "poll failed") {
		t.Errorf("error log should only hold errors: %s", errs)
	}
}

func TestFromAppConfigKeepsDefaults(t *testing.T) {
	cfg := FromAppConfig(config.LogConfig{Level: "debug"})
	if cfg.Level != "debug" || cfg.Format != "json" || len(cfg.Outputs) != 1 || cfg.Outputs[0] != "stdout" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestNewFailsOnUnwritableErrorFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ErrorFile = filepath.Join(t.TempDir(), "missing", "error.log")
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for unwritable error file")
	}
}
