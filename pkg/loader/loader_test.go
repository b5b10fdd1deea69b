package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"streamplex/pkg/logger"
	"streamplex/pkg/provider"
	"streamplex/pkg/sandbox"
)

const pluginSrc = `
	module.exports = {
		getStreams: function() {
			return [{ name: "P", title: "P", url: "https://example.com/p.mp4", quality: "720p" }];
		}
	};
`

func dynamicProvider(id string) provider.Provider {
	return provider.Provider{
		ID:             id,
		Name:           "Dyn",
		SupportedTypes: []string{"movie"},
		Filename:       id + ".js",
		Enabled:        true,
	}
}

func TestResolveDynamicCachesSource(t *testing.T) {
	logger.Init("ERROR")

	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprint(w, pluginSrc)
	}))
	defer server.Close()

	env := sandbox.NewEnv(5 * time.Second)
	l := New(env, func(p provider.Provider) string {
		return server.URL + "/" + p.Filename
	}, time.Minute, nil)
	defer l.Close()

	p := dynamicProvider("dyn1")

	h1, err := l.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	h2, err := l.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if h1 != h2 {
		t.Error("Expected the same handle for consecutive resolves")
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("Expected 1 source fetch, got %d", n)
	}

	streams, err := h1.GetStreams(context.Background(), "1", provider.Movie, 0, 0)
	if err != nil || len(streams) != 1 {
		t.Fatalf("Handle not usable: streams=%v err=%v", streams, err)
	}
}

func TestResolveStaticWinsOverDynamic(t *testing.T) {
	logger.Init("ERROR")

	static := &fakeHandle{}
	env := sandbox.NewEnv(5 * time.Second)
	l := New(env, func(provider.Provider) string { return "http://unused.invalid" }, time.Minute,
		map[string]provider.Handle{"native1": static})
	defer l.Close()

	p := provider.Provider{ID: "native1", Filename: "native1.js"}
	h, err := l.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if h != provider.Handle(static) {
		t.Error("Expected the static handle to win")
	}
}

func TestResolveFailsWithoutSourceOrCache(t *testing.T) {
	logger.Init("ERROR")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	env := sandbox.NewEnv(5 * time.Second)
	l := New(env, func(p provider.Provider) string {
		return server.URL + "/" + p.Filename
	}, time.Minute, nil)
	defer l.Close()

	_, err := l.Resolve(context.Background(), dynamicProvider("gone"))
	if !errors.Is(err, ErrNoSource) {
		t.Fatalf("Expected ErrNoSource, got %v", err)
	}
}

func TestResolveServesStaleSourceOnFetchFailure(t *testing.T) {
	logger.Init("ERROR")

	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, pluginSrc)
	}))
	defer server.Close()

	env := sandbox.NewEnv(5 * time.Second)
	// Zero TTL: every resolve attempts a refresh
	l := New(env, func(p provider.Provider) string {
		return server.URL + "/" + p.Filename
	}, 0, nil)
	defer l.Close()

	p := dynamicProvider("flaky")

	if _, err := l.Resolve(context.Background(), p); err != nil {
		t.Fatalf("Initial resolve failed: %v", err)
	}

	fail.Store(true)
	h, err := l.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected stale source fallback, got %v", err)
	}
	streams, err := h.GetStreams(context.Background(), "1", provider.Movie, 0, 0)
	if err != nil || len(streams) != 1 {
		t.Fatalf("Stale handle not usable: streams=%v err=%v", streams, err)
	}
}

func TestResolveRebuildsWhenSourceChanges(t *testing.T) {
	logger.Init("ERROR")

	var v2 atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		url := "https://example.com/v1.mp4"
		if v2.Load() {
			url = "https://example.com/v2.mp4"
		}
		fmt.Fprintf(w, `module.exports = { getStreams: function() { return [{ name: "P", title: "P", url: %q, quality: "720p" }]; } };`, url)
	}))
	defer server.Close()

	env := sandbox.NewEnv(5 * time.Second)
	l := New(env, func(p provider.Provider) string {
		return server.URL + "/" + p.Filename
	}, 0, nil)
	defer l.Close()

	p := dynamicProvider("versioned")

	h1, err := l.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Identical source on refresh keeps the loaded handle.
	same, err := l.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if same != h1 {
		t.Error("Expected unchanged source to reuse the handle")
	}

	v2.Store(true)
	h2, err := l.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve after source change failed: %v", err)
	}
	if h2 == h1 {
		t.Fatal("Expected a rebuilt handle after the source changed")
	}
	streams, err := h2.GetStreams(context.Background(), "1", provider.Movie, 0, 0)
	if err != nil || len(streams) != 1 || streams[0].URL != "https://example.com/v2.mp4" {
		t.Fatalf("Rebuilt handle serves stale code: streams=%v err=%v", streams, err)
	}
}

func TestResolveConcurrentColdStart(t *testing.T) {
	logger.Init("ERROR")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pluginSrc)
	}))
	defer server.Close()

	env := sandbox.NewEnv(5 * time.Second)
	l := New(env, func(p provider.Provider) string {
		return server.URL + "/" + p.Filename
	}, time.Minute, nil)
	defer l.Close()

	p := dynamicProvider("cold")

	var wg sync.WaitGroup
	handles := make([]provider.Handle, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = l.Resolve(context.Background(), p)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		if errs[i] != nil {
			t.Fatalf("Resolve %d failed: %v", i, errs[i])
		}
		streams, err := handles[i].GetStreams(context.Background(), "1", provider.Movie, 0, 0)
		if err != nil || len(streams) != 1 {
			t.Fatalf("Handle %d unusable: streams=%v err=%v", i, streams, err)
		}
	}
	if n := l.LoadedCount(); n != 1 {
		t.Errorf("Expected 1 loaded handle, got %d", n)
	}
}

type fakeHandle struct{}

func (f *fakeHandle) GetStreams(ctx context.Context, tmdbID string, kind provider.MediaKind, season, episode int) ([]provider.Stream, error) {
	return nil, nil
}
