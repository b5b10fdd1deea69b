// Package aggregator fans a stream request out across every eligible
// provider, collects whatever comes back within the deadline, and returns
// one normalized, quality-ranked list. A misbehaving provider only ever
// costs its own results.
package aggregator

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
)

// Catalog lists the providers eligible for a request.
type Catalog interface {
	ListEnabled(ctx context.Context, kind provider.MediaKind) []provider.Provider
}

// HandleSource turns a provider record into something callable.
type HandleSource interface {
	Resolve(ctx context.Context, p provider.Provider) (provider.Handle, error)
}

// IDResolver maps IMDb identifiers to TMDB ones.
type IDResolver interface {
	Resolve(ctx context.Context, imdbID string, kind provider.MediaKind) (string, error)
}

// Request identifies the content to find streams for. MediaID is either an
// IMDb ID (tt-prefixed) or a TMDB numeric ID. Season and Episode are zero
// for movies.
type Request struct {
	MediaID string
	Kind    provider.MediaKind
	Season  int
	Episode int
}

// Aggregator orchestrates the fan-out.
type Aggregator struct {
	catalog  Catalog
	handles  HandleSource
	resolver IDResolver
	timeout  time.Duration
}

// New creates an aggregator. timeout bounds each individual provider call.
func New(catalog Catalog, handles HandleSource, resolver IDResolver, timeout time.Duration) *Aggregator {
	return &Aggregator{
		catalog:  catalog,
		handles:  handles,
		resolver: resolver,
		timeout:  timeout,
	}
}

// Streams resolves the media ID, queries every eligible provider in
// parallel and returns the merged results ranked by quality. An unknown
// IMDb ID yields an empty list without touching any provider.
func (a *Aggregator) Streams(ctx context.Context, req Request) ([]provider.Stream, error) {
	tmdbID := req.MediaID
	if strings.HasPrefix(req.MediaID, "tt") {
		var err error
		tmdbID, err = a.resolver.Resolve(ctx, req.MediaID, req.Kind)
		if err != nil {
			return nil, fmt.Errorf("resolving media id: %w", err)
		}
		if tmdbID == "" {
			logger.Info("No TMDB mapping for media id", "media_id", req.MediaID)
			return nil, nil
		}
	}

	providers := a.catalog.ListEnabled(ctx, req.Kind)
	if len(providers) == 0 {
		return nil, nil
	}

	start := time.Now()
	resultsChan := make(chan []provider.Stream, len(providers))
	var wg sync.WaitGroup

	for _, p := range providers {
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()
			resultsChan <- a.queryProvider(ctx, p, tmdbID, req)
		}(p)
	}

	wg.Wait()
	close(resultsChan)

	var all []provider.Stream
	for streams := range resultsChan {
		all = append(all, streams...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return qualityRank(all[i]) > qualityRank(all[j])
	})

	logger.Info("Aggregation complete",
		"media_id", req.MediaID,
		"providers", len(providers),
		"streams", len(all),
		"took", time.Since(start).Round(time.Millisecond))
	return all, nil
}

// queryProvider runs one provider call to completion within its own
// deadline. All failure modes, including panics, are contained here.
func (a *Aggregator) queryProvider(ctx context.Context, p provider.Provider, tmdbID string, req Request) (streams []provider.Stream) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Provider panicked", "provider", p.ID, "panic", r)
			streams = nil
		}
	}()

	handle, err := a.handles.Resolve(ctx, p)
	if err != nil {
		logger.Warn("Provider unavailable", "provider", p.ID, "err", err)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := handle.GetStreams(callCtx, tmdbID, req.Kind, req.Season, req.Episode)
	if err != nil {
		logger.Warn("Provider failed", "provider", p.ID, "err", err)
		return nil
	}

	return normalize(raw, p)
}

// normalize drops unusable entries and fills defaults so downstream code
// can rely on every field being present.
func normalize(raw []provider.Stream, p provider.Provider) []provider.Stream {
	out := make([]provider.Stream, 0, len(raw))
	for _, s := range raw {
		if !usableURL(s.URL) {
			logger.Debug("Dropping stream with unusable URL", "provider", p.ID, "url", s.URL)
			continue
		}
		if s.Provider == "" {
			s.Provider = p.ID
		}
		if s.Name == "" {
			s.Name = p.Name
		}
		if s.Title == "" {
			s.Title = s.Name
		}
		if s.Quality == "" {
			s.Quality = "Unknown"
		}
		out = append(out, s)
	}
	return out
}

func usableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
