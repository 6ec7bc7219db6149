// Package data provides data access layer implementations.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"Bulwark/internal/conf"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache key prefixes
const (
	// CacheKeyEntity is the prefix for single entity caches: entity:{id}
	CacheKeyEntity = "entity"
	// CacheKeyEntityList is the prefix for the active entity list cache: entities:{status}
	CacheKeyEntityList = "entities"
	// CacheKeyReport is the prefix for audit report caches: report:{start}:{end}
	CacheKeyReport = "report"
)

// Cache TTL durations for the shared (Redis) tier
const (
	// TTLEntity is the TTL for single entity caches (5 minutes)
	TTLEntity = 5 * time.Minute
	// TTLEntityList is the TTL for the active entity list (1 minute)
	TTLEntityList = 1 * time.Minute
	// TTLReport is the TTL for audit report caches (10 minutes)
	TTLReport = 10 * time.Minute
)

// ErrCacheNotFound is returned when a cache key does not exist in any tier
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheStats holds counters describing cache effectiveness.
type CacheStats struct {
	Size      int64
	MaxSize   int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// CacheClient defines the interface for cache operations.
// Implementations must be thread-safe and handle serialization/deserialization.
type CacheClient interface {
	// Get retrieves a value from cache and deserializes it into dest.
	// Returns ErrCacheNotFound if key doesn't exist.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache with the specified TTL.
	// The value is serialized to JSON before storage.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Stats returns hit/miss/eviction counters since startup.
	Stats() CacheStats
}

// tieredCache layers an in-process expirable LRU in front of Redis.
// The local tier answers hot reads without a network round trip and keeps
// working when Redis is down. The local tier uses one fixed TTL set at
// construction; the per-call ttl applies to the Redis tier only.
type tieredCache struct {
	local    *expirable.LRU[string, []byte]
	localMax int64
	client   *redis.Client

	hits      int64
	misses    int64
	evictions int64
}

// NewCacheClient creates the two-tier cache client.
// If the Redis client is nil the cache runs on the local tier alone.
func NewCacheClient(c *conf.Data, rdb *redis.Client) CacheClient {
	size := 1024
	ttl := 5 * time.Minute
	if c != nil && c.Cache != nil {
		if c.Cache.LocalSize > 0 {
			size = int(c.Cache.LocalSize)
		}
		if c.Cache.EntityTtl != nil {
			ttl = c.Cache.EntityTtl.AsDuration()
		}
	}

	tc := &tieredCache{
		localMax: int64(size),
		client:   rdb,
	}
	tc.local = expirable.NewLRU[string, []byte](size, func(string, []byte) {
		atomic.AddInt64(&tc.evictions, 1)
	}, ttl)

	return tc
}

// Get retrieves a value, trying the local tier before Redis.
// A Redis hit repopulates the local tier.
func (c *tieredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, ok := c.local.Get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
		}
		return nil
	}

	if c.client == nil {
		atomic.AddInt64(&c.misses, 1)
		return ErrCacheNotFound
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddInt64(&c.misses, 1)
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	atomic.AddInt64(&c.hits, 1)
	c.local.Add(key, []byte(val))

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Set stores a value in both tiers.
func (c *tieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	c.local.Add(key, data)

	if c.client == nil {
		return nil
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from both tiers.
func (c *tieredCache) Delete(ctx context.Context, key string) error {
	c.local.Remove(key)

	if c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in either tier.
func (c *tieredCache) Exists(ctx context.Context, key string) (bool, error) {
	if _, ok := c.local.Get(key); ok {
		return true, nil
	}

	if c.client == nil {
		return false, nil
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}

	return count > 0, nil
}

// Stats returns the counters accumulated since startup.
func (c *tieredCache) Stats() CacheStats {
	return CacheStats{
		Size:      int64(c.local.Len()),
		MaxSize:   c.localMax,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyEntity, "123") -> "entity:123"
//   - BuildCacheKey(CacheKeyReport, "2025-01", "2025-02") -> "report:2025-01:2025-02"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
