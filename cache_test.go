package main

import (
	"testing"
	"time"
)

func TestResultCache(t *testing.T) {
	current := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	cache := newResultCache(5*time.Minute, func() time.Time { return current })
	key := cacheKey{UserID: 1, Page: 1, PageSize: 10}

	t.Run("miss before any put", func(t *testing.T) {
		if _, ok := cache.get(key); ok {
			t.Error("expected a miss")
		}
	})

	t.Run("hit within the TTL", func(t *testing.T) {
		cache.put(key, "result")
		current = current.Add(5 * time.Minute)
		value, ok := cache.get(key)
		if !ok || value != "result" {
			t.Errorf("expected a hit at the TTL boundary, got %v, %t", value, ok)
		}
	})

	t.Run("miss past the TTL", func(t *testing.T) {
		current = current.Add(time.Second)
		if _, ok := cache.get(key); ok {
			t.Error("expected a miss past the TTL")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		cache.put(cacheKey{UserID: 1, Page: 1, PageSize: 10}, "page one")
		cache.put(cacheKey{UserID: 1, Page: 2, PageSize: 10}, "page two")
		cache.put(cacheKey{UserID: 1}, "unpaged")

		if value, _ := cache.get(cacheKey{UserID: 1, Page: 2, PageSize: 10}); value != "page two" {
			t.Errorf("unexpected value: %v", value)
		}
		if value, _ := cache.get(cacheKey{UserID: 1}); value != "unpaged" {
			t.Errorf("unexpected value: %v", value)
		}
		if _, ok := cache.get(cacheKey{UserID: 2, Page: 1, PageSize: 10}); ok {
			t.Error("expected a miss for another user")
		}
	})
}
