package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "version: 1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.BaseDir != "./data" {
		t.Fatalf("Storage.BaseDir = %q, want ./data", cfg.Storage.BaseDir)
	}
	if cfg.Agentloop.MaxStepLimit != 40 {
		t.Fatalf("Agentloop.MaxStepLimit = %d, want 40", cfg.Agentloop.MaxStepLimit)
	}
	if cfg.Pulse.TickInterval != 30*time.Second {
		t.Fatalf("Pulse.TickInterval = %v, want 30s", cfg.Pulse.TickInterval)
	}
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	body := "version: 1\nstorage:\n  base_dir: /var/lib/agent\nagentloop:\n  max_step_limit: 100\n  base_step_limit: 10\n"
	path := writeConfigFile(t, dir, "config.yaml", body)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.BaseDir != "/var/lib/agent" {
		t.Fatalf("Storage.BaseDir = %q, want /var/lib/agent", cfg.Storage.BaseDir)
	}
	if cfg.Agentloop.MaxStepLimit != 100 {
		t.Fatalf("Agentloop.MaxStepLimit = %d, want 100", cfg.Agentloop.MaxStepLimit)
	}
}

func TestLoadRejectsBaseStepLimitAboveMax(t *testing.T) {
	dir := t.TempDir()
	body := "version: 1\nagentloop:\n  base_step_limit: 50\n  max_step_limit: 10\n"
	path := writeConfigFile(t, dir, "config.yaml", body)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var ve *ConfigValidationError
	if !errorsAs(err, &ve) {
		t.Fatalf("expected *ConfigValidationError, got %T", err)
	}
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "version: 1\npulse:\n  store_file: from-file.json\n")

	t.Setenv("PULSE_STORE_FILE_PATH", "from-env.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pulse.StoreFile != "from-env.json" {
		t.Fatalf("Pulse.StoreFile = %q, want from-env.json", cfg.Pulse.StoreFile)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.yaml", "agentloop:\n  max_step_limit: 60\n")
	path := writeConfigFile(t, dir, "config.yaml", "version: 1\n$include: base.yaml\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agentloop.MaxStepLimit != 60 {
		t.Fatalf("Agentloop.MaxStepLimit = %d, want 60 (from include)", cfg.Agentloop.MaxStepLimit)
	}
}

// errorsAs avoids importing "errors" twice across test helpers in this file.
func errorsAs(err error, target **ConfigValidationError) bool {
	ve, ok := err.(*ConfigValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}
