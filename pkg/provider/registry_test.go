package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"streamplex/pkg/logger"
)

const testManifest = `{
	"name": "Test Providers",
	"version": "1.2.0",
	"scrapers": [
		{"id": "alpha", "name": "Alpha", "supportedTypes": ["movie", "tv"], "filename": "alpha.js", "enabled": true},
		{"id": "beta", "name": "Beta", "supportedTypes": ["tv"], "filename": "beta.js", "enabled": true},
		{"id": "gamma", "name": "Gamma", "supportedTypes": ["movie"], "filename": "gamma.js", "enabled": false}
	]
}`

func TestAllMergesNativeAndRemote(t *testing.T) {
	logger.Init("DEBUG")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/manifest.json" {
			http.NotFound(w, req)
			return
		}
		fmt.Fprint(w, testManifest)
	}))
	defer srv.Close()

	native := []Provider{
		{ID: "soapertv", Name: "SoaperTV", SupportedTypes: []string{"movie", "tv"}, Enabled: true},
	}
	r := NewRegistry(srv.URL, time.Minute, native)

	all := r.All(context.Background())
	if len(all) != 4 {
		t.Fatalf("len(all) = %d, want 4", len(all))
	}
	if all[0].ID != "soapertv" || !all[0].Native {
		t.Fatalf("native provider not first: %+v", all[0])
	}
	for _, p := range all[1:] {
		if p.Native {
			t.Errorf("remote provider %s marked native", p.ID)
		}
	}
}

func TestNativeWinsIDCollision(t *testing.T) {
	logger.Init("DEBUG")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"name":"P","version":"1.0.0","scrapers":[{"id":"soapertv","name":"Remote Soaper","supportedTypes":["movie"],"filename":"soaper.js","enabled":true}]}`)
	}))
	defer srv.Close()

	native := []Provider{
		{ID: "soapertv", Name: "SoaperTV", SupportedTypes: []string{"movie", "tv"}, Enabled: true},
	}
	r := NewRegistry(srv.URL, time.Minute, native)

	all := r.All(context.Background())
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1", len(all))
	}
	if all[0].Name != "SoaperTV" || !all[0].Native {
		t.Fatalf("collision should keep native record, got %+v", all[0])
	}
}

func TestListEnabledFiltersByKindAndFlag(t *testing.T) {
	logger.Init("DEBUG")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, testManifest)
	}))
	defer srv.Close()

	r := NewRegistry(srv.URL, time.Minute, nil)

	movies := r.ListEnabled(context.Background(), Movie)
	if len(movies) != 1 || movies[0].ID != "alpha" {
		t.Fatalf("movie providers = %+v, want only alpha", movies)
	}

	series := r.ListEnabled(context.Background(), Series)
	if len(series) != 2 {
		t.Fatalf("series providers = %+v, want alpha and beta", series)
	}
}

func TestManifestCachedWithinTTL(t *testing.T) {
	logger.Init("DEBUG")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, testManifest)
	}))
	defer srv.Close()

	r := NewRegistry(srv.URL, time.Hour, nil)
	r.Manifest(context.Background())
	r.Manifest(context.Background())

	if calls.Load() != 1 {
		t.Fatalf("manifest fetches = %d, want 1", calls.Load())
	}
}

func TestManifestStaleFallback(t *testing.T) {
	logger.Init("DEBUG")

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, testManifest)
	}))
	defer srv.Close()

	r := NewRegistry(srv.URL, 0, nil) // always refetch
	first := r.Manifest(context.Background())
	if len(first.Scrapers) != 3 {
		t.Fatalf("initial manifest scrapers = %d, want 3", len(first.Scrapers))
	}

	fail.Store(true)
	stale := r.Manifest(context.Background())
	if len(stale.Scrapers) != 3 {
		t.Fatalf("stale manifest scrapers = %d, want 3", len(stale.Scrapers))
	}
}

func TestManifestDefaultsEmptyOnTotalFailure(t *testing.T) {
	logger.Init("DEBUG")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	native := []Provider{
		{ID: "soapertv", Name: "SoaperTV", SupportedTypes: []string{"movie"}, Enabled: true},
	}
	r := NewRegistry(srv.URL, time.Minute, native)

	m := r.Manifest(context.Background())
	if len(m.Scrapers) != 0 {
		t.Fatalf("manifest scrapers = %d, want 0", len(m.Scrapers))
	}

	// Native providers survive a dead registry.
	all := r.All(context.Background())
	if len(all) != 1 || all[0].ID != "soapertv" {
		t.Fatalf("all = %+v, want only native", all)
	}
}

func TestSourceURL(t *testing.T) {
	r := NewRegistry("https://example.com/providers/", time.Minute, nil)
	got := r.SourceURL(Provider{Filename: "alpha.js"})
	if got != "https://example.com/providers/alpha.js" {
		t.Fatalf("SourceURL = %q", got)
	}
}
