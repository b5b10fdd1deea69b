package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamplex/pkg/env"
	"streamplex/pkg/logger"
)

func TestSaveAndLoadFile(t *testing.T) {
	logger.Init("DEBUG")

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := &Config{
		AddonPort:              7001,
		AddonBaseURL:           "http://example.com:7001",
		LogLevel:               "DEBUG",
		RegistryBaseURL:        "https://registry.example.com",
		ManifestTTLSeconds:     60,
		PluginTTLSeconds:       120,
		ResolveTTLSeconds:      3600,
		ProviderTimeoutSeconds: 15,
		TMDBAPIKey:             "secret-key",
	}
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	// Secrets never land on disk.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(raw), "secret-key") {
		t.Fatal("TMDB API key was written to the config file")
	}

	var loaded Config
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.AddonPort != 7001 || loaded.RegistryBaseURL != "https://registry.example.com" {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.PluginTTL() != 2*time.Minute {
		t.Errorf("PluginTTL = %v", loaded.PluginTTL())
	}
	if loaded.ProviderTimeout() != 15*time.Second {
		t.Errorf("ProviderTimeout = %v", loaded.ProviderTimeout())
	}
}

func TestApplyEnvOverridesOnlySetKeys(t *testing.T) {
	cfg := &Config{
		AddonPort:          7000,
		LogLevel:           "INFO",
		RegistryBaseURL:    "https://registry.example.com",
		ManifestTTLSeconds: 300,
	}

	overrides := env.ConfigOverrides{
		AddonPort: 9000,
		LogLevel:  "DEBUG",
	}
	ApplyEnvOverrides(cfg, overrides, []string{env.KeyAddonPort})

	if cfg.AddonPort != 9000 {
		t.Errorf("AddonPort = %d, want overridden 9000", cfg.AddonPort)
	}
	if cfg.LogLevel != "INFO" {
		t.Errorf("LogLevel = %q, want untouched INFO", cfg.LogLevel)
	}
	if cfg.RegistryBaseURL != "https://registry.example.com" {
		t.Errorf("RegistryBaseURL = %q changed without an override", cfg.RegistryBaseURL)
	}
}

func TestApplyEnvOverridesAlwaysTakesAPIKey(t *testing.T) {
	cfg := &Config{}
	ApplyEnvOverrides(cfg, env.ConfigOverrides{TMDBAPIKey: "from-env"}, nil)
	if cfg.TMDBAPIKey != "from-env" {
		t.Errorf("TMDBAPIKey = %q", cfg.TMDBAPIKey)
	}
}
