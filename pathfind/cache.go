package pathfind

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"
)

// Cache defaults.
const (
	DefaultCacheTTL     = 10 * time.Minute
	DefaultCacheMaxSize = 500
)

// CacheConfig tunes the path cache.
type CacheConfig struct {
	// TTL after which an entry is stale. Zero means DefaultCacheTTL.
	TTL time.Duration
	// MaxSize caps the entry count; the oldest entry is evicted first.
	// Zero means DefaultCacheMaxSize.
	MaxSize int
}

func (c CacheConfig) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultCacheTTL
	}
	return c.TTL
}

func (c CacheConfig) maxSize() int {
	if c.MaxSize <= 0 {
		return DefaultCacheMaxSize
	}
	return c.MaxSize
}

type cacheEntry struct {
	key      uint64
	result   *Result
	entities map[string]bool
	storedAt time.Time
}

// Cache memoises path results by a hash of the normalised query. Invalidate
// drops every entry whose paths touch a given entity, so graph mutations can
// keep cached results sound.
type Cache struct {
	mu      sync.Mutex
	cfg     CacheConfig
	entries map[uint64]*cacheEntry
	order   []uint64 // insertion order, oldest first
	hits    int64
	misses  int64
	now     func() time.Time
}

// NewCache creates an empty cache.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		cfg:     cfg,
		entries: make(map[uint64]*cacheEntry),
		now:     time.Now,
	}
}

// CacheKey hashes the normalised query. Two queries differing only in
// irrelevant ways (field order, name casing, surrounding whitespace) share a
// key.
func CacheKey(q Query) uint64 {
	types := make([]string, len(q.RelationTypes))
	for i, t := range q.RelationTypes {
		types[i] = string(t)
	}
	sort.Strings(types)

	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%d|%d|%s",
		q.StartID, q.StartType, normalise(q.StartName),
		q.EndID, q.EndType, normalise(q.EndName),
		q.maxHops(), q.maxPaths(), strings.Join(types, ","))
	return h.Sum64()
}

func normalise(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Get returns the cached result for the query, or nil on a miss or an
// expired entry.
func (c *Cache) Get(q Query) *Result {
	key := CacheKey(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.storedAt) > c.cfg.ttl() {
		if ok {
			c.remove(key)
		}
		c.misses++
		return nil
	}
	c.hits++
	return entry.result
}

// Put stores the result under the query's key, evicting the oldest entry
// when the cache is full.
func (c *Cache) Put(q Query, result *Result) {
	if result == nil {
		return
	}
	key := CacheKey(q)

	touched := make(map[string]bool)
	for _, p := range result.Paths {
		for _, e := range p.Entities {
			touched[e.ID] = true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}
	for len(c.entries) >= c.cfg.maxSize() && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = &cacheEntry{key: key, result: result, entities: touched, storedAt: c.now()}
	c.order = append(c.order, key)
}

// Invalidate drops every cached result whose paths touch the entity. Called
// after any mutation of the entity or its relations.
func (c *Cache) Invalidate(entityID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []uint64
	for key, entry := range c.entries {
		if entry.entities[entityID] {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		c.remove(key)
	}
	return len(stale)
}

// HitRate reports the fraction of lookups served from the cache.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Len returns the live entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove must be called with the mutex held.
func (c *Cache) remove(key uint64) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
