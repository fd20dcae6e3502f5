package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALERT_TRIAGE_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Processing.ChunkSize != 10000 {
		t.Fatalf("expected default chunk size 10000, got %d", cfg.Processing.ChunkSize)
	}
	if cfg.Processing.OutputPath != "alerts_with_priority.csv" {
		t.Fatalf("unexpected default output path %q", cfg.Processing.OutputPath)
	}
	if cfg.Processing.Workers <= 0 {
		t.Fatalf("expected positive default workers")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`
logging:
  level: debug
processing:
  chunkSize: 250
  workers: 3
cache:
  enabled: true
  addr: localhost:6379
  resultTTL: 1m
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ALERT_TRIAGE_WORKERS", "6")
	t.Setenv("ALERT_TRIAGE_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Processing.ChunkSize != 250 || cfg.Processing.Workers != 6 {
		t.Fatalf("unexpected processing config %+v", cfg.Processing)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
	if !cfg.Cache.Enabled || cfg.Cache.ResultTTL != time.Minute || cfg.Cache.ReadTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected cache config %+v", cfg.Cache)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("processing:\n  chunkSize: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected chunk size validation error")
	}

	if err := os.WriteFile(path, []byte("cache:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected cache addr validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
