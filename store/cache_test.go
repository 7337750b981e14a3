package store

import (
	"testing"
	"time"
)

func TestCacheMissWhenEmpty(t *testing.T) {
	cache := NewInMemoryScenarioCache(DefaultCacheConfig())
	if cache.Get() != nil {
		t.Error("empty cache should miss")
	}
	if cache.IsValid() {
		t.Error("empty cache should not be valid")
	}
}

func TestCacheSetGet(t *testing.T) {
	cache := NewInMemoryScenarioCache(DefaultCacheConfig())

	cache.Set([]*Record{testRecord("a"), testRecord("b")})
	got := cache.Get()
	if len(got) != 2 {
		t.Fatalf("expected 2 cached records, got %d", len(got))
	}
	if !cache.IsValid() {
		t.Error("cache should be valid after Set")
	}
}

func TestCacheReturnsCopy(t *testing.T) {
	cache := NewInMemoryScenarioCache(DefaultCacheConfig())
	cache.Set([]*Record{testRecord("a")})

	got := cache.Get()
	got[0] = nil
	again := cache.Get()
	if again[0] == nil {
		t.Error("mutating the returned slice must not affect the cache")
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewInMemoryScenarioCache(DefaultCacheConfig())
	cache.Set([]*Record{testRecord("a")})

	cache.Invalidate()
	if cache.Get() != nil {
		t.Error("invalidated cache should miss")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewInMemoryScenarioCache(CacheConfig{TTL: time.Millisecond})
	cache.Set([]*Record{testRecord("a")})

	time.Sleep(5 * time.Millisecond)
	if cache.Get() != nil {
		t.Error("expired cache should miss")
	}
	if cache.IsValid() {
		t.Error("expired cache should not be valid")
	}
}
