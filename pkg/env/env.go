// Package env consolidates all environment variable reading for the application.
// Config overrides are applied only at startup (see config.Load).
package env

import (
	"os"
	"strconv"
)

// Environment variable names (single source of truth)
const (
	AddonPort              = "ADDON_PORT"
	AddonBaseURL           = "ADDON_BASE_URL"
	LogLevel               = "LOG_LEVEL"
	RegistryBaseURL        = "REGISTRY_BASE_URL"
	TMDBAPIKey             = "TMDB_API_KEY"
	ManifestTTLSeconds     = "MANIFEST_TTL_SECONDS"
	PluginTTLSeconds       = "PLUGIN_TTL_SECONDS"
	ResolveTTLSeconds      = "RESOLVE_TTL_SECONDS"
	ProviderTimeoutSeconds = "PROVIDER_TIMEOUT_SECONDS"
)

// Config JSON keys returned by OverrideKeys (for UI warnings)
const (
	KeyAddonPort       = "addon_port"
	KeyAddonBaseURL    = "addon_base_url"
	KeyLogLevel        = "log_level"
	KeyRegistryBaseURL = "registry_base_url"
	KeyManifestTTL     = "manifest_ttl_seconds"
	KeyPluginTTL       = "plugin_ttl_seconds"
	KeyResolveTTL      = "resolve_ttl_seconds"
	KeyProviderTimeout = "provider_timeout_seconds"
	KeyTMDBAPIKey      = "tmdb_api_key"
)

// Level returns LOG_LEVEL with default "INFO" (for early logger init before config).
func Level() string {
	if v := os.Getenv(LogLevel); v != "" {
		return v
	}
	return "INFO"
}

// ConfigOverrides holds all config values that can be set via environment
// variables. Used at startup by config.Load to apply overrides.
type ConfigOverrides struct {
	AddonPort              int
	AddonBaseURL           string
	LogLevel               string
	RegistryBaseURL        string
	TMDBAPIKey             string
	ManifestTTLSeconds     int
	PluginTTLSeconds       int
	ResolveTTLSeconds      int
	ProviderTimeoutSeconds int
}

// ReadConfigOverrides reads all recognized environment variables and returns
// the overrides plus the list of config JSON keys that were present.
func ReadConfigOverrides() (ConfigOverrides, []string) {
	var o ConfigOverrides
	var keys []string

	if v := os.Getenv(AddonPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.AddonPort = n
			keys = append(keys, KeyAddonPort)
		}
	}
	if v := os.Getenv(AddonBaseURL); v != "" {
		o.AddonBaseURL = v
		keys = append(keys, KeyAddonBaseURL)
	}
	if v := os.Getenv(LogLevel); v != "" {
		o.LogLevel = v
		keys = append(keys, KeyLogLevel)
	}
	if v := os.Getenv(RegistryBaseURL); v != "" {
		o.RegistryBaseURL = v
		keys = append(keys, KeyRegistryBaseURL)
	}
	if v := os.Getenv(TMDBAPIKey); v != "" {
		o.TMDBAPIKey = v
		keys = append(keys, KeyTMDBAPIKey)
	}
	if v := os.Getenv(ManifestTTLSeconds); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.ManifestTTLSeconds = n
			keys = append(keys, KeyManifestTTL)
		}
	}
	if v := os.Getenv(PluginTTLSeconds); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.PluginTTLSeconds = n
			keys = append(keys, KeyPluginTTL)
		}
	}
	if v := os.Getenv(ResolveTTLSeconds); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.ResolveTTLSeconds = n
			keys = append(keys, KeyResolveTTL)
		}
	}
	if v := os.Getenv(ProviderTimeoutSeconds); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.ProviderTimeoutSeconds = n
			keys = append(keys, KeyProviderTimeout)
		}
	}

	return o, keys
}

// OverrideKeys returns config JSON keys that currently have environment
// variable overrides set. Used by the UI to warn that these values will be
// overwritten on the next restart.
func OverrideKeys() []string {
	_, keys := ReadConfigOverrides()
	return keys
}
