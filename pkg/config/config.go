package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"streamplex/pkg/env"
	"streamplex/pkg/logger"
	"streamplex/pkg/paths"
)

// DefaultRegistryBaseURL is the remote provider registry used when no other
// registry is configured.
const DefaultRegistryBaseURL = "https://raw.githubusercontent.com/yoruix/nuvio-providers/main"

// Config holds application configuration
type Config struct {
	// Addon settings
	AddonPort    int    `json:"addon_port"`
	AddonBaseURL string `json:"addon_base_url"`
	LogLevel     string `json:"log_level"`

	// Remote provider registry
	RegistryBaseURL string `json:"registry_base_url"`

	// Cache TTLs
	ManifestTTLSeconds int `json:"manifest_ttl_seconds"`
	PluginTTLSeconds   int `json:"plugin_ttl_seconds"`
	ResolveTTLSeconds  int `json:"resolve_ttl_seconds"`

	// Per-provider execution bound (also the sandbox wall-clock bound)
	ProviderTimeoutSeconds int `json:"provider_timeout_seconds"`

	// TMDB Settings
	TMDBAPIKey string `json:"-"`

	// Internal - where was this config loaded from?
	LoadedPath string `json:"-"`
}

// ManifestTTL returns the remote manifest cache TTL.
func (c *Config) ManifestTTL() time.Duration {
	return time.Duration(c.ManifestTTLSeconds) * time.Second
}

// PluginTTL returns the plugin source cache TTL.
func (c *Config) PluginTTL() time.Duration {
	return time.Duration(c.PluginTTLSeconds) * time.Second
}

// ResolveTTL returns the identifier resolution cache TTL.
func (c *Config) ResolveTTL() time.Duration {
	return time.Duration(c.ResolveTTLSeconds) * time.Second
}

// ProviderTimeout returns the per-provider execution bound.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// Load is intended for startup only. It loads configuration from config.json,
// applies environment variable overrides once, then saves the merged config.
// Environment variables are not read again after startup; subsequent reloads
// use only the saved config.
// Priority: Environment variables (if not empty) > config.json > defaults
func Load() (*Config, error) {
	dataDir := paths.GetDataDir()
	configPath := filepath.Join(dataDir, "config.json")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("Failed to create data directory", "dir", dataDir, "err", err)
	}

	cfg := &Config{
		AddonPort:              7000,
		AddonBaseURL:           "http://localhost:7000",
		LogLevel:               "INFO",
		RegistryBaseURL:        DefaultRegistryBaseURL,
		ManifestTTLSeconds:     300,
		PluginTTLSeconds:       600,
		ResolveTTLSeconds:      86400,
		ProviderTimeoutSeconds: 30,
		LoadedPath:             configPath,
	}

	if err := cfg.LoadFile(configPath); err != nil {
		if os.IsNotExist(err) {
			logger.Info("No config found, creating new one", "path", configPath)
		} else {
			logger.Warn("Failed to load config, using defaults", "path", configPath, "err", err)
		}
	} else {
		logger.Info("Loaded configuration", "path", configPath)
	}

	overrides, keys := env.ReadConfigOverrides()
	ApplyEnvOverrides(cfg, overrides, keys)

	if err := cfg.Save(); err != nil {
		logger.Warn("Failed to save config on startup", "err", err)
	}

	if cfg.TMDBAPIKey == "" {
		logger.Warn("No TMDB API key configured; identifier resolution will be unavailable")
	}

	return cfg, nil
}

// LoadFile overrides config with values from a JSON file
func (c *Config) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(c)
}

// Save saves the current configuration to the file it was loaded from
func (c *Config) Save() error {
	path := c.LoadedPath
	if path == "" {
		path = "config.json"
	}
	return c.SaveFile(path)
}

// SaveFile saves the current configuration to a JSON file
func (c *Config) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

// keySet returns true if s is in list.
func keySet(list []string, s string) bool {
	for _, k := range list {
		if k == s {
			return true
		}
	}
	return false
}

// ApplyEnvOverrides applies environment-derived overrides to cfg (used at startup only).
// Only fields present in keys are applied, so env vars override file values per setting.
func ApplyEnvOverrides(cfg *Config, o env.ConfigOverrides, keys []string) {
	if keySet(keys, env.KeyAddonPort) {
		cfg.AddonPort = o.AddonPort
	}
	if keySet(keys, env.KeyAddonBaseURL) {
		cfg.AddonBaseURL = o.AddonBaseURL
	}
	if keySet(keys, env.KeyLogLevel) {
		cfg.LogLevel = o.LogLevel
	}
	if keySet(keys, env.KeyRegistryBaseURL) {
		cfg.RegistryBaseURL = o.RegistryBaseURL
	}
	if keySet(keys, env.KeyManifestTTL) {
		cfg.ManifestTTLSeconds = o.ManifestTTLSeconds
	}
	if keySet(keys, env.KeyPluginTTL) {
		cfg.PluginTTLSeconds = o.PluginTTLSeconds
	}
	if keySet(keys, env.KeyResolveTTL) {
		cfg.ResolveTTLSeconds = o.ResolveTTLSeconds
	}
	if keySet(keys, env.KeyProviderTimeout) {
		cfg.ProviderTimeoutSeconds = o.ProviderTimeoutSeconds
	}
	if o.TMDBAPIKey != "" {
		cfg.TMDBAPIKey = o.TMDBAPIKey
	}
}

// GetEnvOverrideKeys returns config JSON keys that have environment variable overrides set.
// These values will be overwritten on next restart. Used by the UI to show warnings.
func GetEnvOverrideKeys() []string {
	return env.OverrideKeys()
}
