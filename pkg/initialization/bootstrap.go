// Package initialization wires configuration, provider infrastructure and
// the HTTP surface together at startup.
package initialization

import (
	"fmt"
	"os"

	"streamplex/pkg/aggregator"
	"streamplex/pkg/api"
	"streamplex/pkg/config"
	"streamplex/pkg/loader"
	"streamplex/pkg/logger"
	"streamplex/pkg/metadata/tmdb"
	"streamplex/pkg/provider"
	"streamplex/pkg/provider/native"
	"streamplex/pkg/sandbox"
)

// InitializedComponents holds all the components initialized during bootstrap
type InitializedComponents struct {
	Config     *config.Config
	Registry   *provider.Registry
	Loader     *loader.Loader
	Resolver   *tmdb.Resolver
	Aggregator *aggregator.Aggregator
	Metrics    *api.Metrics
	APIServer  *api.Server
}

// WaitForInputAndExit prints an error and waits for user input before exiting
func WaitForInputAndExit(err error) {
	fmt.Printf("\nCRITICAL ERROR: %v\n", err)
	fmt.Println("\nPress Enter to exit...")
	var input string
	fmt.Scanln(&input)
	os.Exit(1)
}

// Bootstrap coordinates the application startup sequence
func Bootstrap() (*InitializedComponents, error) {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	// 2. TMDB client and identifier resolver
	tmdbClient := tmdb.NewClient(cfg.TMDBAPIKey)
	resolver := tmdb.NewResolver(tmdbClient, cfg.ResolveTTL())

	// 3. Provider registry: native catalog plus remote manifest
	registry := provider.NewRegistry(cfg.RegistryBaseURL, cfg.ManifestTTL(), native.Catalog())
	logger.Info("Provider registry initialized", "base_url", cfg.RegistryBaseURL, "native", len(native.Catalog()))

	// 4. Sandbox and plugin loader. The sandbox timeout doubles as the
	// per-provider aggregation deadline so a plugin is interrupted at the
	// same moment its results stop being waited for.
	env := sandbox.NewEnv(cfg.ProviderTimeout())
	ldr := loader.New(env, registry.SourceURL, cfg.PluginTTL(), native.Handles(tmdbClient))

	// 5. Aggregator
	agg := aggregator.New(registry, ldr, resolver, cfg.ProviderTimeout())

	// 6. Management API
	metrics := api.NewMetrics()
	apiServer := api.NewServer(cfg, registry, ldr, metrics)

	logger.Info("Bootstrap complete", "port", cfg.AddonPort)

	return &InitializedComponents{
		Config:     cfg,
		Registry:   registry,
		Loader:     ldr,
		Resolver:   resolver,
		Aggregator: agg,
		Metrics:    metrics,
		APIServer:  apiServer,
	}, nil
}
