package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// lruCache is a bounded LRU cache over string keys. Accessed items are
// promoted to the front so eviction always removes the least recently used
// entry. It backs both the query-embedding cache and the search-result
// cache; the latter tags entries with the store generation so a structural
// mutation invalidates everything in O(1) by bumping the generation.
type lruCache[V any] struct {
	mu       sync.Mutex
	items    map[string]*lruEntry[V]
	head     *lruEntry[V] // most recently used
	tail     *lruEntry[V] // least recently used
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry[V any] struct {
	key        string
	value      V
	generation uint64
	prev, next *lruEntry[V]
}

func newLRUCache[V any](capacity int) *lruCache[V] {
	if capacity <= 0 {
		capacity = 128
	}
	return &lruCache[V]{
		items:    make(map[string]*lruEntry[V]),
		capacity: capacity,
	}
}

// get returns the cached value if present and tagged with the given
// generation. A stale generation counts as a miss and drops the entry.
func (c *lruCache[V]) get(key string, generation uint64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if e.generation != generation {
		c.remove(e)
		delete(c.items, key)
		c.misses.Add(1)
		return zero, false
	}
	c.moveToFront(e)
	c.hits.Add(1)
	return e.value, true
}

// set stores a value tagged with the given generation, evicting the least
// recently used entry when over capacity.
func (c *lruCache[V]) set(key string, value V, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.generation = generation
		c.moveToFront(e)
		return
	}

	e := &lruEntry[V]{key: key, value: value, generation: generation}
	c.items[key] = e
	c.pushFront(e)

	if len(c.items) > c.capacity {
		lru := c.tail
		if lru != nil {
			c.remove(lru)
			delete(c.items, lru.key)
		}
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lruCache[V]) stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *lruCache[V]) moveToFront(e *lruEntry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.pushFront(e)
}

func (c *lruCache[V]) pushFront(e *lruEntry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *lruEntry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// searchCacheKey builds a stable cache key for a semantic search. Filters
// are sorted so logically identical queries share an entry.
func searchCacheKey(query string, topK int, minSimilarity float64, filters map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%.4f", query, topK, minSimilarity)
	if len(filters) > 0 {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "|%s=%v", k, filters[k])
		}
	}
	return b.String()
}
