// Package cache stores computed analytics responses in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "analytics"

// ResultCache keeps JSON-encoded results under request-derived keys
type ResultCache struct {
	redis redis.Cmdable
	ttl   time.Duration
}

// NewResultCache creates a cache whose entries expire after ttl
func NewResultCache(client redis.Cmdable, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{redis: client, ttl: ttl}
}

// Key builds the cache key for a result kind and its request parameters.
// Equal parameters always produce the same key.
func Key(kind string, params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache params: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, hex.EncodeToString(sum[:])), nil
}

// Get decodes the entry at key into dst. A miss returns false and no error.
func (c *ResultCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get result from Redis: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return true, nil
}

// Set stores v at key with the cache TTL
func (c *ResultCache) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set result in Redis: %w", err)
	}
	return nil
}

// Invalidate removes the entry at key
func (c *ResultCache) Invalidate(ctx context.Context, key string) error {
	return c.redis.Del(ctx, key).Err()
}

// Ping checks the Redis connection
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
