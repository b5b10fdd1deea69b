package native

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
)

const vidzeeBaseURL = "https://player.vidzee.wtf"

var vidzeeServers = []int{3, 4, 5}

var numericLabel = regexp.MustCompile(`^\d+$`)

// VidZee queries the vidzee player API. Each backend server is tried
// concurrently and a failing server only costs its own results.
type VidZee struct {
	baseURL string
	client  *http.Client
}

// NewVidZee creates the VidZee provider handle.
func NewVidZee() *VidZee {
	return &VidZee{
		baseURL: vidzeeBaseURL,
		client:  &http.Client{Timeout: 7 * time.Second},
	}
}

// SetBaseURL overrides the API base URL (tests).
func (v *VidZee) SetBaseURL(base string) {
	v.baseURL = strings.TrimRight(base, "/")
}

type vidzeeSource struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Link     string `json:"link"`
	Language string `json:"language"`
	Lang     string `json:"lang"`
}

type vidzeeResponse struct {
	URL  []vidzeeSource `json:"url"`
	Link string         `json:"link"`
	vidzeeSource
}

// GetStreams implements provider.Handle.
func (v *VidZee) GetStreams(ctx context.Context, tmdbID string, kind provider.MediaKind, season, episode int) ([]provider.Stream, error) {
	if tmdbID == "" {
		return nil, fmt.Errorf("vidzee: tmdb id is required")
	}
	if kind == provider.Series && (season == 0 || episode == 0) {
		return nil, fmt.Errorf("vidzee: season and episode are required for series")
	}

	results := make(chan []provider.Stream, len(vidzeeServers))
	var wg sync.WaitGroup
	for _, server := range vidzeeServers {
		wg.Add(1)
		go func(server int) {
			defer wg.Done()
			streams, err := v.queryServer(ctx, server, tmdbID, kind, season, episode)
			if err != nil {
				logger.Debug("VidZee server failed", "server", server, "error", err)
				return
			}
			results <- streams
		}(server)
	}
	wg.Wait()
	close(results)

	var all []provider.Stream
	for streams := range results {
		all = append(all, streams...)
	}
	logger.Debug("VidZee streams collected", "count", len(all))
	return all, nil
}

func (v *VidZee) queryServer(ctx context.Context, server int, tmdbID string, kind provider.MediaKind, season, episode int) ([]provider.Stream, error) {
	apiURL := fmt.Sprintf("%s/api/server?id=%s&sr=%d", v.baseURL, tmdbID, server)
	if kind == provider.Series {
		apiURL += fmt.Sprintf("&ss=%d&ep=%d", season, episode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", "https://core.vidzee.wtf/")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var payload vidzeeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	sources := payload.URL
	if len(sources) == 0 && payload.Link != "" {
		src := payload.vidzeeSource
		src.Link = payload.Link
		sources = []vidzeeSource{src}
	}

	var streams []provider.Stream
	for _, src := range sources {
		if src.Link == "" {
			continue
		}
		label := src.Name
		if label == "" {
			label = src.Type
		}
		if label == "" {
			label = "VidZee"
		}
		quality := label
		if numericLabel.MatchString(label) {
			quality = label + "p"
		}

		title := fmt.Sprintf("VidZee S%d - %s", server, quality)
		if lang := firstNonEmpty(src.Language, src.Lang); lang != "" {
			title += " [" + lang + "]"
		}

		streams = append(streams, provider.Stream{
			Name:     fmt.Sprintf("VidZee S%d", server),
			Title:    title,
			URL:      src.Link,
			Quality:  quality,
			Provider: "vidzee",
		})
	}
	return streams, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
