package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := Init(path, "localhost", 9001); err != nil {
		t.Fatalf("Init: %v", err)
	}

	cfg, err := Load(path, "SYNN")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "localhost" || cfg.Port != 9001 {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if cfg.SlotDuration != 5 || cfg.SlotsPerEpoch != 432 {
		t.Fatalf("expected defaults to survive, got %+v", cfg)
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := Init(path, "localhost", 9001); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(path, "localhost", 9002); err == nil {
		t.Fatalf("expected Init to refuse an existing config file")
	}
}

func TestLoadRejectsMissingPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"host":"localhost"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, "SYNN"); err == nil {
		t.Fatalf("expected Load to reject a config missing port")
	}
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := Init(path, "localhost", 9001); err != nil {
		t.Fatalf("Init: %v", err)
	}

	t.Setenv("SYNN_PORT", "9100")
	cfg, err := Load(path, "SYNN")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("port=%d want 9100 (env override)", cfg.Port)
	}
}
