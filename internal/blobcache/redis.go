package blobcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheMichaelB/streamfs/internal/events"
)

// RedisCache stores blobs in Redis with a TTL.
type RedisCache struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *events.Logger
}

// NewRedisCache wraps a Redis client.
func NewRedisCache(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *events.Logger) *RedisCache {
	return &RedisCache{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.WithField("component", "redis_blob_cache"),
	}
}

func (c *RedisCache) key(name string) string {
	parts := []string{"blob", strings.TrimPrefix(name, "/")}
	if c.keyPrefix != "" {
		parts = append([]string{c.keyPrefix}, parts...)
	}
	return strings.Join(parts, ":")
}

// Get returns the cached bytes.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Put stores data under key for the configured TTL.
func (c *RedisCache) Put(ctx context.Context, key string, data []byte) error {
	if err := c.rdb.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	c.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Cached blob")
	return nil
}
