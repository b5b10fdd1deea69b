// Package tmdb wraps the TheMovieDB API calls the engine needs: external-id
// lookup (IMDb -> TMDB) and basic title details for native scrapers.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// Client for TheMovieDB API
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a new TMDB client
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBaseURL overrides the API base URL (tests).
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// FindResponse represents the response from /find/{id}
type FindResponse struct {
	MovieResults []Result `json:"movie_results"`
	TVResults    []Result `json:"tv_results"`
}

// Result represents a search result item
type Result struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`  // TV
	Title        string `json:"title"` // Movie
	MediaType    string `json:"media_type"`
	ReleaseDate  string `json:"release_date"`   // Movie
	FirstAirDate string `json:"first_air_date"` // TV
}

// Details represents the subset of /movie/{id} and /tv/{id} native scrapers
// need to match a title on a third-party site.
type Details struct {
	ID           int    `json:"id"`
	Title        string `json:"title"` // Movie
	Name         string `json:"name"`  // TV
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// DisplayTitle returns the movie title or TV name, whichever is set.
func (d *Details) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// Year returns the release year, or 0 when unknown.
func (d *Details) Year() int {
	date := d.ReleaseDate
	if date == "" {
		date = d.FirstAirDate
	}
	var year int
	if len(date) >= 4 {
		fmt.Sscanf(date[:4], "%d", &year)
	}
	return year
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("accept", "application/json")

	return c.client.Do(req)
}

// Find searches for objects by external ID (IMDb ID).
// source: 'imdb_id', 'tvdb_id', etc.
func (c *Client) Find(ctx context.Context, externalID, source string) (*FindResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}

	endpoint := fmt.Sprintf("%s/find/%s", c.baseURL, externalID)
	params := url.Values{}
	params.Set("external_source", source)

	resp, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("TMDB find request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDB returned status: %d", resp.StatusCode)
	}

	var result FindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode TMDB response: %w", err)
	}

	return &result, nil
}

// GetDetails retrieves title details for a TMDB object.
// mediaType: 'movie' or 'tv'
func (c *Client) GetDetails(ctx context.Context, tmdbID, mediaType string) (*Details, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, mediaType, tmdbID)

	resp, err := c.doRequest(ctx, endpoint, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("TMDB details request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDB returned status: %d", resp.StatusCode)
	}

	var result Details
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode TMDB response: %w", err)
	}

	return &result, nil
}
