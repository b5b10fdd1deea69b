package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streamplex/pkg/cache"
	"streamplex/pkg/logger"
)

// Manifest is the remote registry document describing dynamically-loaded
// providers.
type Manifest struct {
	Name     string     `json:"name"`
	Version  string     `json:"version"`
	Scrapers []Provider `json:"scrapers"`
}

const manifestCacheKey = "manifest"

// Registry merges the remote manifest's provider list with the statically
// compiled provider list into one uniform catalog.
type Registry struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache[Manifest]
	ttl     time.Duration
	native  []Provider
}

// NewRegistry creates a provider registry backed by the remote manifest at
// baseURL/manifest.json and the given native provider records.
func NewRegistry(baseURL string, ttl time.Duration, native []Provider) *Registry {
	for i := range native {
		native[i].Native = true
	}
	return &Registry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache.New[Manifest](),
		ttl:     ttl,
		native:  native,
	}
}

// Manifest returns the remote manifest, cached with stale-if-error fallback.
// On total failure (no stale copy either) the catalog defaults to empty so
// native providers keep working.
func (r *Registry) Manifest(ctx context.Context) Manifest {
	m, err := r.cache.GetOrRefresh(manifestCacheKey, r.ttl, func() (Manifest, error) {
		return r.fetchManifest(ctx)
	})
	if err != nil {
		logger.Error("Failed to fetch provider manifest", "err", err)
		return Manifest{Name: "Providers", Version: "0.0.0"}
	}
	return m
}

func (r *Registry) fetchManifest(ctx context.Context) (Manifest, error) {
	url := r.baseURL + "/manifest.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Manifest{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Manifest{}, fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest read failed: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest parse failed: %w", err)
	}

	logger.Debug("Fetched provider manifest", "name", m.Name, "version", m.Version, "scrapers", len(m.Scrapers))
	return m, nil
}

// All returns the merged catalog: native providers first, then remote ones.
// A remote entry whose id collides with a native provider is informational
// only; the native record (and its compiled handle) wins execution.
func (r *Registry) All(ctx context.Context) []Provider {
	nativeIDs := make(map[string]bool, len(r.native))
	merged := make([]Provider, 0, len(r.native))
	for _, p := range r.native {
		nativeIDs[p.ID] = true
		merged = append(merged, p)
	}

	for _, p := range r.Manifest(ctx).Scrapers {
		if nativeIDs[p.ID] {
			logger.Warn("Remote provider id collides with native provider, keeping native", "id", p.ID)
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// ListEnabled returns every enabled provider supporting the given media kind.
func (r *Registry) ListEnabled(ctx context.Context, kind MediaKind) []Provider {
	var out []Provider
	for _, p := range r.All(ctx) {
		if p.Enabled && p.Supports(kind) {
			out = append(out, p)
		}
	}
	return out
}

// SourceURL returns the absolute URL of a dynamic provider's source code.
func (r *Registry) SourceURL(p Provider) string {
	return r.baseURL + "/" + strings.TrimLeft(p.Filename, "/")
}
