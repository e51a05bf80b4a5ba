package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Defaults()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := writeConfig(t, `
storePath: /tmp/custom.db
maxHistoryMessages: 10
logLevel: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorePath != "/tmp/custom.db" {
		t.Fatalf("storePath = %q", cfg.StorePath)
	}
	if cfg.MaxHistoryMessages != 10 {
		t.Fatalf("maxHistoryMessages = %d", cfg.MaxHistoryMessages)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("logLevel = %q", cfg.LogLevel)
	}
	// unset fields still carry their defaults.
	if cfg.MaxPollDelayMs != Defaults().MaxPollDelayMs {
		t.Fatalf("expected default maxPollDelayMs to survive a partial override, got %d", cfg.MaxPollDelayMs)
	}
}

func TestLoadExpandsEnvironmentVariablesInYAML(t *testing.T) {
	t.Setenv("GATEWAY_TEST_DB_PATH", "/tmp/from-env.db")
	path := writeConfig(t, `
storePath: ${GATEWAY_TEST_DB_PATH}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorePath != "/tmp/from-env.db" {
		t.Fatalf("storePath = %q, expected expansion of GATEWAY_TEST_DB_PATH", cfg.StorePath)
	}
}

func TestLoadAppliesEnvOverridesOverYAML(t *testing.T) {
	path := writeConfig(t, `
storePath: /tmp/from-yaml.db
`)
	t.Setenv("GATEWAY_STORE_PATH", "/tmp/from-env-override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorePath != "/tmp/from-env-override.db" {
		t.Fatalf("expected GATEWAY_STORE_PATH to win over the YAML value, got %q", cfg.StorePath)
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
