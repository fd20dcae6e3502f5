package main

import (
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/miradorstack/alert-triage/internal/ingest"
	"github.com/miradorstack/alert-triage/internal/scoring"
)

func TestGeneratedFilesLoad(t *testing.T) {
	dir := t.TempDir()
	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}
	rng := rand.New(rand.NewPCG(7, 7))

	alertsPath := filepath.Join(dir, "alerts.csv")
	if err := writeAlerts(alertsPath, rng, ips, 25, 0, time.Hour); err != nil {
		t.Fatalf("write alerts: %v", err)
	}
	configPath := filepath.Join(dir, "config.json")
	if err := writeConfig(configPath, ips); err != nil {
		t.Fatalf("write config: %v", err)
	}

	raws, err := ingest.ReadFile(alertsPath)
	if err != nil {
		t.Fatalf("read generated alerts: %v", err)
	}
	if len(raws) != 25 {
		t.Fatalf("expected 25 rows, got %d", len(raws))
	}
	for _, raw := range raws {
		if _, err := scoring.ParseAlert(raw); err != nil {
			t.Fatalf("generated row on line %d does not parse: %v", raw.Line, err)
		}
	}

	cfg, err := scoring.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.TimeWindow() != 10*time.Minute || cfg.CountThreshold() != 5 {
		t.Fatalf("unexpected frequency threshold: %v / %d", cfg.TimeWindow(), cfg.CountThreshold())
	}
	if got := cfg.IPBlacklist(); len(got) != 3 || !cfg.IsBlacklisted(ips[0]) {
		t.Fatalf("expected first three generated ips blacklisted, got %v", got)
	}
	if cfg.AlertTypeWeightFor("malware") == 0 {
		t.Fatalf("expected alert type weights in generated config")
	}
}

func TestGeneratedMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.csv")
	rng := rand.New(rand.NewPCG(1, 2))
	if err := writeAlerts(path, rng, []string{"10.0.0.1"}, 5, 1, time.Minute); err != nil {
		t.Fatalf("write alerts: %v", err)
	}
	raws, err := ingest.ReadFile(path)
	if err != nil {
		t.Fatalf("read alerts: %v", err)
	}
	for _, raw := range raws {
		_, err := scoring.ParseAlert(raw)
		var malformed *scoring.MalformedAlertError
		if !errors.As(err, &malformed) || malformed.Field != "severity" {
			t.Fatalf("expected severity error for line %d, got %v", raw.Line, err)
		}
	}
}
