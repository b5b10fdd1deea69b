package native

import (
	"streamplex/pkg/metadata/tmdb"
	"streamplex/pkg/provider"
)

// Catalog returns the static provider records merged into the registry
// alongside remote manifest entries.
func Catalog() []provider.Provider {
	return []provider.Provider{
		{
			ID:             "soapertv",
			Name:           "SoaperTV",
			Description:    "Streams scraped from soaper.cc",
			Version:        "1.0.0",
			SupportedTypes: []string{"movie", "tv"},
			Enabled:        true,
		},
		{
			ID:             "vidzee",
			Name:           "VidZee",
			Description:    "Streams from the VidZee player API",
			Version:        "1.0.0",
			SupportedTypes: []string{"movie", "tv"},
			Enabled:        true,
		},
	}
}

// Handles builds the compiled provider handles keyed by provider id.
func Handles(tmdbClient *tmdb.Client) map[string]provider.Handle {
	return map[string]provider.Handle{
		"soapertv": NewSoaperTV(tmdbClient),
		"vidzee":   NewVidZee(),
	}
}
