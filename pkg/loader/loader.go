// Package loader resolves a provider record into an executable handle:
// a direct lookup for statically compiled providers, a cached
// fetch-then-sandbox-load for dynamically sourced ones.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"streamplex/pkg/cache"
	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
	"streamplex/pkg/sandbox"
)

// ErrNoSource is returned when a dynamic provider's code cannot be fetched
// and no previously cached copy exists. This fails that provider only.
var ErrNoSource = errors.New("no plugin source available")

// maxSourceSize bounds a fetched plugin blob.
const maxSourceSize = 2 << 20

// SourceURLFunc maps a provider record to the absolute URL of its source
// code (normally Registry.SourceURL).
type SourceURLFunc func(provider.Provider) string

// Loader produces callable handles for providers. Plugin source is cached
// with stale-if-error semantics; loaded sandbox handles are kept per
// provider id and rebuilt when the source changes or a handle poisons
// itself after an interrupt.
type Loader struct {
	env       *sandbox.Env
	client    *http.Client
	sourceURL SourceURLFunc
	source    *cache.Cache[string]
	ttl       time.Duration

	static map[string]provider.Handle

	mu      sync.Mutex
	handles map[string]*loadedHandle
}

type loadedHandle struct {
	handle *sandbox.Handle
	src    string
}

// New creates a loader. static maps provider id to compiled handle; dynamic
// providers are resolved through sourceURL, fetched and loaded into env.
func New(env *sandbox.Env, sourceURL SourceURLFunc, ttl time.Duration, static map[string]provider.Handle) *Loader {
	return &Loader{
		env:       env,
		client:    &http.Client{Timeout: 15 * time.Second},
		sourceURL: sourceURL,
		source:    cache.New[string](),
		ttl:       ttl,
		static:    static,
		handles:   make(map[string]*loadedHandle),
	}
}

// Resolve returns an executable handle for p. Statically compiled providers
// win over any dynamic source with the same id.
func (l *Loader) Resolve(ctx context.Context, p provider.Provider) (provider.Handle, error) {
	if h, ok := l.static[p.ID]; ok {
		return h, nil
	}
	if p.Filename == "" {
		return nil, fmt.Errorf("provider %s has no source location", p.ID)
	}

	src, err := l.source.GetOrRefresh(p.ID, l.ttl, func() (string, error) {
		return l.fetchSource(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSource, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Reuse is keyed on source content, not fetch time, so concurrent
	// cold-cache refreshes of identical source converge on one handle
	// instead of replacing each other's.
	if lh, ok := l.handles[p.ID]; ok {
		if lh.src == src && !lh.handle.Broken() {
			return lh.handle, nil
		}
		lh.handle.Close()
		delete(l.handles, p.ID)
	}

	h, err := l.env.Load(src, p.ID)
	if err != nil {
		return nil, err
	}
	l.handles[p.ID] = &loadedHandle{handle: h, src: src}
	logger.Debug("Loaded plugin handle", "provider", p.ID)
	return h, nil
}

func (l *Loader) fetchSource(ctx context.Context, p provider.Provider) (string, error) {
	url := l.sourceURL(p)
	logger.Debug("Fetching plugin source", "provider", p.ID, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("plugin source fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("plugin source fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
	if err != nil {
		return "", fmt.Errorf("plugin source read failed: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("plugin source is empty")
	}
	return string(data), nil
}

// Close tears down all loaded sandbox handles.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, lh := range l.handles {
		lh.handle.Close()
		delete(l.handles, id)
	}
}

// LoadedCount returns the number of live sandbox handles (for stats).
func (l *Loader) LoadedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}
