package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.DefaultTimeoutSeconds != 30 {
		t.Errorf("default timeout = %d, want 30", cfg.DefaultTimeoutSeconds)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("default log level = %q, want warn", cfg.LogLevel)
	}
	if cfg.Trace {
		t.Error("trace should default to off")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	wd, _ := os.Getwd()
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with no config file: %v", err)
	}
	if cfg.DefaultTimeoutSeconds != 30 {
		t.Errorf("timeout = %d, want 30", cfg.DefaultTimeoutSeconds)
	}
}

func TestLoadFromFile(t *testing.T) {
	wd, _ := os.Getwd()
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	yaml := "trace: true\ndefault_timeout_seconds: 90\n"
	if err := os.WriteFile(filepath.Join(tmp, "sess0run.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Trace {
		t.Error("trace should be enabled from file")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("trace=true should raise level to debug, got %q", cfg.LogLevel)
	}
	if cfg.DefaultTimeoutSeconds != 90 {
		t.Errorf("timeout = %d, want 90", cfg.DefaultTimeoutSeconds)
	}
}
