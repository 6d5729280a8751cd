// Package cache provides the short-TTL content cache backed by Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes shared by the pipeline. Callers build keys with the helpers
// below so every subsystem agrees on the layout.
const (
	htmlPrefix     = "html:"
	selectorPrefix = "selector:"
	metadataPrefix = "metadata:"
	judgePrefix    = "judge:"
)

// HTMLKey keys raw fetched HTML by URL.
func HTMLKey(url string) string { return htmlPrefix + url }

// SelectorKey keys selector validation results by source.
func SelectorKey(sourceID string) string { return selectorPrefix + sourceID }

// MetadataKey keys source metadata by source.
func MetadataKey(sourceID string) string { return metadataPrefix + sourceID }

// JudgeKey keys cached judge verdicts by title-pair hash.
func JudgeKey(pairHash string) string { return judgePrefix + pairHash }

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string
	DB       int
}

// connectionTimeout bounds the startup ping.
const connectionTimeout = 5 * time.Second

// Cache implements pipeline.Cache on a Redis client. A nil Cache or a nil
// client is valid and behaves as always-miss.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to Redis and verifies the connection. An empty address
// returns a nil-client cache that always misses.
func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Address == "" {
		logger.Info("cache disabled, running in always-miss mode")
		return &Cache{logger: logger}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Cache{client: client, logger: logger}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client *redis.Client, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, logger: logger}
}

// Get returns the cached value and whether it was present. Redis errors
// degrade to a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

// Set stores the value with a TTL. Failures are logged and swallowed; the
// cache is an optimization, never a dependency.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the underlying client.
func (c *Cache) Close() {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		c.logger.Warn("cache close failed", zap.Error(err))
	}
}
