package tmdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"streamplex/pkg/cache"
	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
)

// Resolver translates IMDb identifiers into TMDB numeric IDs. Lookups are
// cached per (kind, imdbID) pair; an ID that TMDB simply does not know about
// is a valid empty answer, not an error, and is never cached so a later
// TMDB catalog update can still surface it.
type Resolver struct {
	client *Client
	cache  *cache.Cache[string]
	ttl    time.Duration
}

// NewResolver creates a resolver backed by the given TMDB client.
func NewResolver(client *Client, ttl time.Duration) *Resolver {
	return &Resolver{
		client: client,
		cache:  cache.New[string](),
		ttl:    ttl,
	}
}

// Resolve maps an IMDb ID (tt-prefixed) to a TMDB ID for the given media
// kind. Returns ("", nil) when TMDB has no mapping.
func (r *Resolver) Resolve(ctx context.Context, imdbID string, kind provider.MediaKind) (string, error) {
	if !strings.HasPrefix(imdbID, "tt") {
		return "", fmt.Errorf("not an IMDb identifier: %q", imdbID)
	}

	key := string(kind) + ":" + imdbID
	if id, ok := r.cache.GetFresh(key, r.ttl); ok {
		return id, nil
	}

	resp, err := r.client.Find(ctx, imdbID, "imdb_id")
	if err != nil {
		// Serve the last known mapping when TMDB is unreachable.
		if prev, ok := r.cache.Get(key); ok {
			logger.Warn("TMDB lookup failed, using cached mapping", "imdb_id", imdbID, "error", err)
			return prev, nil
		}
		return "", fmt.Errorf("resolving %s: %w", imdbID, err)
	}

	var results []Result
	switch kind {
	case provider.Series:
		results = resp.TVResults
	default:
		results = resp.MovieResults
	}

	if len(results) == 0 {
		logger.Debug("no TMDB mapping for IMDb ID", "imdb_id", imdbID, "kind", kind)
		return "", nil
	}

	id := strconv.Itoa(results[0].ID)
	r.cache.Set(key, id)
	return id, nil
}
