package memory

import (
	"testing"
)

func TestLRUCache_SetAndGet(t *testing.T) {
	c := newLRUCache[int](4)
	c.set("a", 1, 0)

	got, ok := c.get("a", 0)
	if !ok || got != 1 {
		t.Errorf("get(a) = %d, %v; want 1, true", got, ok)
	}
	if _, ok := c.get("missing", 0); ok {
		t.Error("expected miss for missing key")
	}
}

func TestLRUCache_GenerationInvalidation(t *testing.T) {
	c := newLRUCache[int](4)
	c.set("a", 1, 1)

	if _, ok := c.get("a", 2); ok {
		t.Error("stale generation should miss")
	}
	// The stale entry is dropped, not resurrected by the old generation.
	if _, ok := c.get("a", 1); ok {
		t.Error("dropped entry should stay gone")
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache[int](2)
	c.set("a", 1, 0)
	c.set("b", 2, 0)

	// Touch a so b becomes the LRU.
	if _, ok := c.get("a", 0); !ok {
		t.Fatal("expected a")
	}
	c.set("c", 3, 0)

	if _, ok := c.get("b", 0); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.get("a", 0); !ok {
		t.Error("a should survive")
	}
	if _, ok := c.get("c", 0); !ok {
		t.Error("c should be present")
	}
	if c.len() != 2 {
		t.Errorf("len = %d, want 2", c.len())
	}
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)
	c.set("k", "old", 0)
	c.set("k", "new", 0)
	got, ok := c.get("k", 0)
	if !ok || got != "new" {
		t.Errorf("get(k) = %q, want new", got)
	}
	if c.len() != 1 {
		t.Errorf("len = %d, want 1", c.len())
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := newLRUCache[int](2)
	c.set("a", 1, 0)
	c.get("a", 0)
	c.get("nope", 0)

	hits, misses := c.stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses; want 1, 1", hits, misses)
	}
}

func TestSearchCacheKey_FilterOrderInsensitive(t *testing.T) {
	a := searchCacheKey("q", 5, 0.6, map[string]any{"x": 1, "y": 2})
	b := searchCacheKey("q", 5, 0.6, map[string]any{"y": 2, "x": 1})
	if a != b {
		t.Errorf("keys differ for identical filters: %q vs %q", a, b)
	}
	c := searchCacheKey("q", 5, 0.6, map[string]any{"x": 2, "y": 2})
	if a == c {
		t.Error("different filter values should produce different keys")
	}
	if searchCacheKey("q", 5, 0.6, nil) == a {
		t.Error("filtered and unfiltered keys should differ")
	}
}
