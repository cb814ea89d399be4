package query

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trustchecker.io/trustchecker/internal/pkg/logger"
)

// Cache is the pluggable backend behind the query store. Implementations
// must support TTL expiry and prefix deletion. Backend errors never fail a
// read: Get degrades to a miss, Set and deletes are best effort.
type Cache interface {
	// Get returns the stored bytes and whether the key was present and
	// unexpired.
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Del(ctx context.Context, key string)
	DelPrefix(ctx context.Context, prefix string)
	// Size returns the number of live entries, or -1 when unknown.
	Size() int
}

// RedisCache stores view payloads as plain keys with TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a Redis client as a view cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("view cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Warn("view cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Del(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Warn("view cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// DelPrefix scans for matching keys and deletes them. SCAN keeps the
// operation incremental on large keyspaces.
func (c *RedisCache) DelPrefix(ctx context.Context, prefix string) {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Warn("view cache prefix scan failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			logger.Warn("view cache prefix delete failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

// Size is unknown for the shared Redis keyspace.
func (c *RedisCache) Size() int { return -1 }

// memoryEntry is one cached value with its expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the in-process fallback cache. Expired entries are
// reaped lazily on access.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *MemoryCache) Del(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) DelPrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
