package cache

import (
	"errors"
	"testing"
	"time"
)

func TestGetOrRefreshFreshEntrySkipsRefresh(t *testing.T) {
	c := New[string]()
	c.Set("k", "v1")

	calls := 0
	v, err := c.GetOrRefresh("k", time.Minute, func() (string, error) {
		calls++
		return "v2", nil
	})
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if v != "v1" {
		t.Errorf("Expected cached value 'v1', got %q", v)
	}
	if calls != 0 {
		t.Errorf("Refresh invoked %d times before TTL expiry", calls)
	}
}

func TestGetOrRefreshExpiredEntryRefreshes(t *testing.T) {
	c := New[string]()
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", "v1")

	// Advance past TTL
	now = now.Add(2 * time.Minute)

	calls := 0
	v, err := c.GetOrRefresh("k", time.Minute, func() (string, error) {
		calls++
		return "v2", nil
	})
	if err != nil {
		t.Fatalf("GetOrRefresh failed: %v", err)
	}
	if v != "v2" {
		t.Errorf("Expected refreshed value 'v2', got %q", v)
	}
	if calls != 1 {
		t.Errorf("Expected 1 refresh call, got %d", calls)
	}

	// Stored entry should now be fresh again
	if _, ok := c.GetFresh("k", time.Minute); !ok {
		t.Error("Refreshed entry is not fresh")
	}
}

func TestGetOrRefreshStaleIfError(t *testing.T) {
	c := New[string]()
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", "v1")

	now = now.Add(2 * time.Minute)

	v, err := c.GetOrRefresh("k", time.Minute, func() (string, error) {
		return "", errors.New("upstream down")
	})
	if err != nil {
		t.Fatalf("Expected stale fallback, got error: %v", err)
	}
	if v != "v1" {
		t.Errorf("Expected stale value 'v1', got %q", v)
	}

	// The stale entry must not have been re-stamped as fresh
	if _, ok := c.GetFresh("k", time.Minute); ok {
		t.Error("Stale entry was silently served as fresh")
	}
}

func TestGetOrRefreshNoFallbackPropagates(t *testing.T) {
	c := New[string]()

	wantErr := errors.New("upstream down")
	_, err := c.GetOrRefresh("missing", time.Minute, func() (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected refresh error, got %v", err)
	}
}

func TestConcurrentSameKeyRefresh(t *testing.T) {
	c := New[int]()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := c.GetOrRefresh("k", time.Minute, func() (int, error) {
				return 42, nil
			})
			if err != nil {
				t.Errorf("GetOrRefresh failed: %v", err)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	close(done)

	v, ok := c.Get("k")
	if !ok || v != 42 {
		t.Errorf("Expected 42 after concurrent refreshes, got %d (present=%v)", v, ok)
	}
}

func TestBoundedExpiry(t *testing.T) {
	b := NewBounded[string](10, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Set("k", "v")
	if v, ok := b.Get("k"); !ok || v != "v" {
		t.Fatalf("Expected fresh value, got %q (present=%v)", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := b.Get("k"); ok {
		t.Error("Expired entry served from bounded cache")
	}
	if b.Len() != 0 {
		t.Errorf("Expired entry not evicted, len=%d", b.Len())
	}
}

func TestBoundedEviction(t *testing.T) {
	b := NewBounded[int](2, time.Minute)
	b.Set("a", 1)
	b.Set("b", 2)
	b.Set("c", 3)

	if b.Len() != 2 {
		t.Errorf("Expected 2 entries after eviction, got %d", b.Len())
	}
	if _, ok := b.Get("a"); ok {
		t.Error("Oldest entry survived eviction")
	}
}
