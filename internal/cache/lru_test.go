package cache

import (
	"testing"
	"time"
)

func TestLRUCacheTTLWithInjectedClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := NewLRUCacheWithClock[string](10, 5*time.Minute, clock)
	c.Set("k", "v")

	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %q ok=%v", v, ok)
	}

	now = now.Add(5*time.Minute + time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expiry after TTL")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry should be evicted on read, size=%d", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("recent entry should survive")
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := NewLRUCacheWithClock[int](10, time.Minute, clock)
	c.Set("a", 1)
	c.Set("b", 2)

	now = now.Add(2 * time.Minute)
	if removed := c.CleanExpired(); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, size=%d", c.Size())
	}
}
