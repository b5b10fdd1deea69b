package stremio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"streamplex/pkg/aggregator"
	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
)

// StreamSource produces the aggregated stream list for a request.
type StreamSource interface {
	Streams(ctx context.Context, req aggregator.Request) ([]provider.Stream, error)
}

// Server is the Stremio addon HTTP server.
type Server struct {
	manifest   *Manifest
	aggregator StreamSource
	apiHandler http.Handler
}

// NewServer creates a new Stremio addon server
func NewServer(agg StreamSource, version string) *Server {
	return &Server{
		manifest:   NewManifest(version),
		aggregator: agg,
	}
}

// SetAPIHandler mounts the management API under /api/.
func (s *Server) SetAPIHandler(h http.Handler) {
	s.apiHandler = h
}

// SetupRoutes registers all addon routes on the mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/manifest.json", s.handleManifest)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if s.apiHandler == nil {
			http.NotFound(w, r)
			return
		}
		s.apiHandler.ServeHTTP(w, r)
	})
}

// handleManifest serves the addon manifest
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	logger.Debug("Manifest request", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	data, err := s.manifest.ToJSON()
	if err != nil {
		http.Error(w, "Failed to generate manifest", http.StatusInternalServerError)
		return
	}

	w.Write(data)
}

// handleStream handles stream requests.
// URL shape: /stream/{type}/{id}.json
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/stream/")
	path = strings.TrimSuffix(path, ".json")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		http.Error(w, "Invalid stream URL", http.StatusBadRequest)
		return
	}

	req, err := parseStreamID(parts[0], parts[1])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Info("Stream request", "type", req.Kind, "id", req.MediaID, "season", req.Season, "episode", req.Episode)

	ctx, cancel := context.WithTimeout(r.Context(), 45*time.Second)
	defer cancel()

	streams, err := s.aggregator.Streams(ctx, req)
	if err != nil {
		// Stremio expects a valid (possibly empty) stream list, never a 500.
		logger.Error("Error aggregating streams", "err", err)
		streams = nil
	}

	response := StreamResponse{
		Streams: toStremioStreams(streams),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	json.NewEncoder(w).Encode(response)
}

// parseStreamID decodes a Stremio content id into an aggregation request.
// Movies: "tt0133093" or "tmdb:603". Series append season and episode:
// "tt0903747:1:2" or "tmdb:1396:1:2".
func parseStreamID(contentType, id string) (aggregator.Request, error) {
	kind, ok := provider.ParseMediaKind(contentType)
	if !ok {
		return aggregator.Request{}, fmt.Errorf("unsupported content type %q", contentType)
	}

	parts := strings.Split(id, ":")
	if parts[0] == "tmdb" {
		if len(parts) < 2 || parts[1] == "" {
			return aggregator.Request{}, fmt.Errorf("invalid tmdb id %q", id)
		}
		parts = parts[1:]
	}

	req := aggregator.Request{MediaID: parts[0], Kind: kind}
	if req.MediaID == "" {
		return aggregator.Request{}, fmt.Errorf("empty media id")
	}

	if kind == provider.Series {
		if len(parts) < 3 {
			return aggregator.Request{}, fmt.Errorf("series id %q missing season/episode", id)
		}
		season, err := strconv.Atoi(parts[1])
		if err != nil || season < 1 {
			return aggregator.Request{}, fmt.Errorf("invalid season in %q", id)
		}
		episode, err := strconv.Atoi(parts[2])
		if err != nil || episode < 1 {
			return aggregator.Request{}, fmt.Errorf("invalid episode in %q", id)
		}
		req.Season = season
		req.Episode = episode
	}
	return req, nil
}

// toStremioStreams converts aggregated results to addon wire format.
func toStremioStreams(streams []provider.Stream) []Stream {
	out := make([]Stream, 0, len(streams))
	for _, s := range streams {
		st := Stream{
			URL:   s.URL,
			Name:  s.Name,
			Title: s.Title,
		}
		if s.Quality != "" || s.Size != "" {
			var desc []string
			if s.Quality != "" {
				desc = append(desc, s.Quality)
			}
			if s.Size != "" {
				desc = append(desc, s.Size)
			}
			st.Description = strings.Join(desc, " | ")
		}
		if len(s.Headers) > 0 {
			st.BehaviorHints = &BehaviorHints{
				NotWebReady:  true,
				ProxyHeaders: &ProxyHeaders{Request: s.Headers},
			}
		}
		out = append(out, st)
	}
	return out
}

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.manifest.Version,
	})
}
