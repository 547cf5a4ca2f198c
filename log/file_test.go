package log

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewFile_WritesJSONToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vanguard.log")

	l := NewFile(slog.LevelInfo, DefaultRotatingFileConfig(path))
	l.Info("booting", "chain", "dev")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (raw: %s)", err, data)
	}
	if entry["msg"] != "booting" {
		t.Errorf("msg = %v, want booting", entry["msg"])
	}
	if entry["chain"] != "dev" {
		t.Errorf("chain = %v, want dev", entry["chain"])
	}
}

func TestDefaultRotatingFileConfig(t *testing.T) {
	cfg := DefaultRotatingFileConfig("/tmp/x.log")
	if cfg.Path != "/tmp/x.log" {
		t.Errorf("Path = %q, want /tmp/x.log", cfg.Path)
	}
	if cfg.MaxSizeMB != 100 {
		t.Errorf("MaxSizeMB = %d, want 100", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups != 5 {
		t.Errorf("MaxBackups = %d, want 5", cfg.MaxBackups)
	}
	if cfg.MaxAgeDays != 28 {
		t.Errorf("MaxAgeDays = %d, want 28", cfg.MaxAgeDays)
	}
	if !cfg.Compress {
		t.Error("Compress should default to true")
	}
}

func TestNewFile_ZeroValueDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zero.log")

	l := NewFile(slog.LevelInfo, RotatingFileConfig{Path: path})
	l.Info("still works")

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to be created: %v", err)
	}
}
