// Package data provides data access layer implementations.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache key prefixes and TTL constants.
const (
	// CacheKeyStats is the prefix for statistics caches: stats:{service}:{hours}
	CacheKeyStats = "stats"
	// TTLStats is the TTL for statistics caches (30 seconds)
	TTLStats = 30 * time.Second

	// localCacheSize bounds the in-process cache used without Redis.
	localCacheSize = 256
)

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient implements biz.StatsCache.
// Values are stored as JSON in Redis, or in a bounded in-process LRU with
// per-entry expiry when Redis is disabled.
type CacheClient struct {
	client *redis.Client
	local  *expirable.LRU[string, []byte]
	logger *log.Helper
}

// NewCacheClient creates a new cache client.
func NewCacheClient(data *Data, logger log.Logger) *CacheClient {
	return newCacheClient(data.GetRedisClient(), logger)
}

func newCacheClient(rdb *redis.Client, logger log.Logger) *CacheClient {
	c := &CacheClient{
		client: rdb,
		logger: log.NewHelper(logger),
	}
	if rdb == nil {
		// The LRU's own TTL is an upper bound; each Set stores its deadline alongside the value.
		c.local = expirable.NewLRU[string, []byte](localCacheSize, nil, time.Hour)
	}
	return c
}

// localEntry carries the per-key deadline of an in-process cache entry.
type localEntry struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Value     json.RawMessage `json:"value"`
}

// GetJSON retrieves a value from cache and deserializes it into dest.
// Returns ErrCacheNotFound if the key doesn't exist or has expired.
func (c *CacheClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return c.getLocal(key, dest)
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// SetJSON stores a value in cache with the specified TTL.
// The value is serialized to JSON before storage.
func (c *CacheClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	if c.client == nil {
		return c.setLocal(key, data, ttl)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from cache.
func (c *CacheClient) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		c.local.Remove(key)
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

func (c *CacheClient) getLocal(key string, dest interface{}) error {
	raw, ok := c.local.Get(key)
	if !ok {
		return ErrCacheNotFound
	}

	var entry localEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		c.local.Remove(key)
		return ErrCacheNotFound
	}

	if err := json.Unmarshal(entry.Value, dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

func (c *CacheClient) setLocal(key string, data []byte, ttl time.Duration) error {
	entry := localEntry{Value: data}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}
	c.local.Add(key, raw)
	return nil
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyStats, "gemini", "24") -> "stats:gemini:24"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
