// Package config loads the gateway's own settings (spec §A.3): everything
// the engine needs beyond the provider API keys already read by
// internal/modelregistry.BindingsFromEnv. Grounded on
// internal/config/loader.go's os.ExpandEnv + yaml.v3 pattern, stripped of
// $include resolution and JSON5 support — this module's config is a flat
// handful of fields, not a multi-file layered system, so neither is needed.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the gateway's own runtime settings.
type Config struct {
	// StorePath is the SQLite database file path (spec §4.5).
	StorePath string `yaml:"storePath"`
	// MaxHistoryMessages is the history cap for the async engine's upstream
	// prompt (spec §4.4). It is loaded and overridable here, but cmd/gateway
	// does not pass it to the async engine, which applies its own built-in
	// default of 50.
	MaxHistoryMessages int `yaml:"maxHistoryMessages"`
	// InitialPollDelayMs/MaxPollDelayMs are the poll-schedule bounds of the
	// async engine (spec §4.4 step 8). Like MaxHistoryMessages they are not
	// passed to the async engine, which uses its built-in 1000ms/5000ms.
	InitialPollDelayMs int `yaml:"initialPollDelayMs"`
	MaxPollDelayMs     int `yaml:"maxPollDelayMs"`
	// Concurrency caps per provider (spec §4.2, §5), keyed by provider name.
	Concurrency map[string]int64 `yaml:"concurrency"`
	// LogLevel and LogFormat configure internal/telemetry.
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Defaults returns the gateway's built-in settings, used when no config
// file is supplied and no environment override is set.
func Defaults() Config {
	return Config{
		StorePath:          "chat.db",
		MaxHistoryMessages: 50,
		InitialPollDelayMs: 1000,
		MaxPollDelayMs:     5000,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load reads settings from an optional YAML file, applying environment
// variable overrides on top (spec §A.3). path may be empty, in which case
// only defaults and environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEWAY_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GATEWAY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v, ok := envInt("GATEWAY_MAX_HISTORY_MESSAGES"); ok {
		cfg.MaxHistoryMessages = v
	}
	if v, ok := envInt("GATEWAY_INITIAL_POLL_DELAY_MS"); ok {
		cfg.InitialPollDelayMs = v
	}
	if v, ok := envInt("GATEWAY_MAX_POLL_DELAY_MS"); ok {
		cfg.MaxPollDelayMs = v
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
