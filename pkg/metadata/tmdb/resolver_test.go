package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
)

func newTestResolver(t *testing.T, handler http.Handler, ttl time.Duration) (*Resolver, *httptest.Server) {
	t.Helper()
	logger.Init("DEBUG")

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient("test-key")
	client.SetBaseURL(srv.URL)
	return NewResolver(client, ttl), srv
}

func TestResolveMovie(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		if req.URL.Path != "/find/tt0133093" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("external_source"); got != "imdb_id" {
			t.Errorf("external_source = %q", got)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		fmt.Fprint(w, `{"movie_results":[{"id":603,"title":"The Matrix"}],"tv_results":[]}`)
	}), time.Hour)

	id, err := r.Resolve(context.Background(), "tt0133093", provider.Movie)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "603" {
		t.Fatalf("id = %q, want 603", id)
	}

	// Second call is served from cache.
	if _, err := r.Resolve(context.Background(), "tt0133093", provider.Movie); err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestResolveSeriesUsesTVResults(t *testing.T) {
	r, _ := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"movie_results":[{"id":111,"title":"Wrong"}],"tv_results":[{"id":1396,"name":"Breaking Bad"}]}`)
	}), time.Hour)

	id, err := r.Resolve(context.Background(), "tt0903747", provider.Series)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "1396" {
		t.Fatalf("id = %q, want 1396", id)
	}
}

func TestResolveAbsentIsNotAnError(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"movie_results":[],"tv_results":[]}`)
	}), time.Hour)

	id, err := r.Resolve(context.Background(), "tt9999999", provider.Movie)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "" {
		t.Fatalf("id = %q, want empty", id)
	}

	// Absent mappings are not cached, so a retry hits the API again.
	if _, err := r.Resolve(context.Background(), "tt9999999", provider.Movie); err != nil {
		t.Fatalf("retry Resolve: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestResolveServesStaleMappingOnError(t *testing.T) {
	var fail atomic.Bool
	r, _ := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"movie_results":[{"id":603,"title":"The Matrix"}],"tv_results":[]}`)
	}), 0) // everything is immediately stale

	if _, err := r.Resolve(context.Background(), "tt0133093", provider.Movie); err != nil {
		t.Fatalf("initial Resolve: %v", err)
	}

	fail.Store(true)
	id, err := r.Resolve(context.Background(), "tt0133093", provider.Movie)
	if err != nil {
		t.Fatalf("stale Resolve: %v", err)
	}
	if id != "603" {
		t.Fatalf("id = %q, want stale 603", id)
	}
}

func TestResolveRejectsNonIMDbID(t *testing.T) {
	r, _ := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("upstream should not be called")
	}), time.Hour)

	if _, err := r.Resolve(context.Background(), "12345", provider.Movie); err == nil {
		t.Fatal("expected error for non-IMDb identifier")
	}
}
