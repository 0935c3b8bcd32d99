package main

import (
	"sync"
	"time"
)

// cacheKey identifies one computed similarity result. The unpaged
// variant uses page 0 / pageSize 0.
type cacheKey struct {
	UserID   int
	Page     int
	PageSize int
}

type cacheEntry struct {
	value    interface{}
	storedAt time.Time
}

// resultCache is a TTL-bounded in-process cache. The clock is injected
// so staleness is testable without real delays. Entries older than the
// TTL are treated as absent. Concurrent access to the map is serialized
// with a mutex; staleness inside the TTL window is accepted.
//
// Values are stored and returned by reference. Callers must treat a
// cached value as immutable: mutating a returned slice or struct
// corrupts the entry for every reader until it expires.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[cacheKey]cacheEntry
}

func newResultCache(ttl time.Duration, now func() time.Time) *resultCache {
	if now == nil {
		now = time.Now
	}
	return &resultCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (c *resultCache) get(key cacheKey) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *resultCache) put(key cacheKey, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
}
