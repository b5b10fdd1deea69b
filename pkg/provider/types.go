package provider

import (
	"context"
	"strings"
)

// MediaKind is the kind of content a stream request targets.
type MediaKind string

const (
	Movie  MediaKind = "movie"
	Series MediaKind = "series"
)

// ParseMediaKind maps the external content-type token to a MediaKind.
// Remote manifests and plugin code use "tv" for series content.
func ParseMediaKind(s string) (MediaKind, bool) {
	switch strings.ToLower(s) {
	case "movie":
		return Movie, true
	case "series", "tv":
		return Series, true
	}
	return "", false
}

// External returns the token plugins expect: "movie" or "tv".
func (k MediaKind) External() string {
	if k == Series {
		return "tv"
	}
	return string(k)
}

// Provider describes one integration capable of producing streams, either
// statically compiled or dynamically sourced from the remote registry.
type Provider struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Version         string   `json:"version,omitempty"`
	Author          string   `json:"author,omitempty"`
	SupportedTypes  []string `json:"supportedTypes"`
	Filename        string   `json:"filename,omitempty"`
	Enabled         bool     `json:"enabled"`
	Logo            string   `json:"logo,omitempty"`
	ContentLanguage []string `json:"contentLanguage,omitempty"`

	// Native is true for statically compiled providers. Not part of the
	// manifest schema; populated by the registry.
	Native bool `json:"native,omitempty"`
}

// Supports reports whether the provider handles the given media kind.
func (p Provider) Supports(kind MediaKind) bool {
	for _, t := range p.SupportedTypes {
		if k, ok := ParseMediaKind(t); ok && k == kind {
			return true
		}
	}
	return false
}

// Stream is one normalized playable-URL candidate returned by a provider.
type Stream struct {
	Name     string            `json:"name"`
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Quality  string            `json:"quality"`
	Size     string            `json:"size,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Handle is the capability contract every provider implementation satisfies,
// whether compiled in or running inside the sandbox. Season and episode are
// zero for movie requests.
type Handle interface {
	GetStreams(ctx context.Context, tmdbID string, kind MediaKind, season, episode int) ([]Stream, error)
}
