package api

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"streamplex/pkg/aggregator"
	"streamplex/pkg/provider"
)

// Metrics counts aggregation activity. Updated through the Instrument
// wrapper around the stream source.
type Metrics struct {
	started        time.Time
	streamRequests atomic.Int64
	streamsServed  atomic.Int64
	lastRequest    atomic.Int64 // unix seconds
}

// NewMetrics creates the metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

// Instrument wraps a stream source so every request is counted.
func (m *Metrics) Instrument(inner StreamSource) StreamSource {
	return &countingSource{inner: inner, metrics: m}
}

// StreamSource mirrors the aggregation entry point.
type StreamSource interface {
	Streams(ctx context.Context, req aggregator.Request) ([]provider.Stream, error)
}

type countingSource struct {
	inner   StreamSource
	metrics *Metrics
}

func (c *countingSource) Streams(ctx context.Context, req aggregator.Request) ([]provider.Stream, error) {
	c.metrics.streamRequests.Add(1)
	c.metrics.lastRequest.Store(time.Now().Unix())

	streams, err := c.inner.Streams(ctx, req)
	if err == nil {
		c.metrics.streamsServed.Add(int64(len(streams)))
	}
	return streams, err
}

// SystemStats represents the current state of the application
type SystemStats struct {
	Timestamp      time.Time       `json:"timestamp"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	StreamRequests int64           `json:"stream_requests"`
	StreamsServed  int64           `json:"streams_served"`
	LastRequestAt  *time.Time      `json:"last_request_at,omitempty"`
	LoadedPlugins  int             `json:"loaded_plugins"`
	Providers      []ProviderStats `json:"providers"`
	LogLevel       string          `json:"log_level"`
}

// ProviderStats describes one catalog entry for the dashboard
type ProviderStats struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Version string   `json:"version,omitempty"`
	Types   []string `json:"types"`
	Native  bool     `json:"native"`
	Enabled bool     `json:"enabled"`
}

// collectStats gathers metrics from all sources
func (s *Server) collectStats(ctx context.Context) SystemStats {
	s.mu.RLock()
	cfg := s.config
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stats := SystemStats{
		Timestamp:      time.Now(),
		UptimeSeconds:  int64(time.Since(s.metrics.started).Seconds()),
		StreamRequests: s.metrics.streamRequests.Load(),
		StreamsServed:  s.metrics.streamsServed.Load(),
		LoadedPlugins:  s.loader.LoadedCount(),
		LogLevel:       cfg.LogLevel,
	}

	if last := s.metrics.lastRequest.Load(); last > 0 {
		t := time.Unix(last, 0)
		stats.LastRequestAt = &t
	}

	for _, p := range s.registry.All(ctx) {
		stats.Providers = append(stats.Providers, ProviderStats{
			ID:      p.ID,
			Name:    p.Name,
			Version: p.Version,
			Types:   p.SupportedTypes,
			Native:  p.Native,
			Enabled: p.Enabled,
		})
	}

	// Sort providers by id, native first
	sort.Slice(stats.Providers, func(i, j int) bool {
		if stats.Providers[i].Native != stats.Providers[j].Native {
			return stats.Providers[i].Native
		}
		return stats.Providers[i].ID < stats.Providers[j].ID
	})

	return stats
}
