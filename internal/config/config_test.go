package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.DBPath != def.DBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, def.DBPath)
	}
	if cfg.Watcher.QueueSize != 256 {
		t.Errorf("QueueSize = %d, want 256", cfg.Watcher.QueueSize)
	}
	if cfg.Alerting.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Alerting.Workers)
	}
}

func TestLoadJSONOverridesAndDerivesPaths(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.json")
	body := `{
  "data_dir": "` + data + `",
  "http_addr": "127.0.0.1:9999",
  "watcher": {"queue_size": 8, "debounce": "250ms"},
  "alerting": {"workers": 2}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != filepath.Join(data, "agentwatch.db") {
		t.Errorf("DBPath = %q, want derived from data_dir", cfg.DBPath)
	}
	if cfg.ReportsDir != filepath.Join(data, "reports") {
		t.Errorf("ReportsDir = %q", cfg.ReportsDir)
	}
	if cfg.Watcher.QueueSize != 8 {
		t.Errorf("QueueSize = %d, want 8", cfg.Watcher.QueueSize)
	}
	if cfg.Watcher.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", cfg.Watcher.Debounce)
	}
	if cfg.Alerting.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Alerting.Workers)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "log:\n  mode: prod\n  level: debug\nreports:\n  interval: 1h\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Mode != "prod" || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Reports.Interval != time.Hour {
		t.Errorf("Reports.Interval = %v", cfg.Reports.Interval)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AGENTWATCH_HTTP_ADDR", "0.0.0.0:1234")
	t.Setenv("AGENTWATCH_ALERTING_WORKERS", "9")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:1234" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Alerting.Workers != 9 {
		t.Errorf("Workers = %d", cfg.Alerting.Workers)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Watcher.QueueSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for queue_size 0")
	}
	cfg = Default()
	cfg.Alerting.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for workers 0")
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
