package store

import (
	"sync"
	"time"
)

// ScenarioCache caches the active scenario list so evaluation requests
// do not hit the database. Swappable for Redis or similar.
type ScenarioCache interface {
	// Get retrieves cached records, returns nil on miss or expiry
	Get() []*Record

	// Set stores records in cache
	Set(records []*Record)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults: no TTL, invalidate on
// mutation only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// InMemoryScenarioCache is a thread-safe in-memory ScenarioCache.
type InMemoryScenarioCache struct {
	records  []*Record
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryScenarioCache creates a new in-memory scenario cache.
func NewInMemoryScenarioCache(config CacheConfig) *InMemoryScenarioCache {
	return &InMemoryScenarioCache{config: config}
}

// Get retrieves cached records, nil if invalid or expired.
func (c *InMemoryScenarioCache) Get() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	// Return copy to prevent external modifications.
	out := make([]*Record, len(c.records))
	copy(out, c.records)
	return out
}

// Set stores records in cache.
func (c *InMemoryScenarioCache) Set(records []*Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = make([]*Record, len(records))
	copy(c.records, records)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache.
func (c *InMemoryScenarioCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.records = nil
}

// IsValid returns true if cache contains valid data.
func (c *InMemoryScenarioCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
