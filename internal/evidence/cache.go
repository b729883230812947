package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drfirst/go-draftguard/internal/content"
)

// DefaultCacheTTL is how long gathered references are reused
const DefaultCacheTTL = time.Hour

const cacheNamespace = "evidence"

// Cache stores gathered references by key
type Cache interface {
	Get(ctx context.Context, key string) ([]content.SourceReference, bool, error)
	Set(ctx context.Context, key string, refs []content.SourceReference, ttl time.Duration) error
}

// CacheKey derives the cache key for a topic and limit
func CacheKey(topic string, limit int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(topic)) + "|" + strconv.Itoa(limit)))
	return cacheNamespace + ":" + hex.EncodeToString(sum[:])
}

// RedisCache keeps references as JSON values in Redis
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing client
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// ConnectRedis parses a redis:// URL and pings the server
func ConnectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, key string) ([]content.SourceReference, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var refs []content.SourceReference
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, false, fmt.Errorf("decode cached evidence: %w", err)
	}
	return refs, true, nil
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, key string, refs []content.SourceReference, ttl time.Duration) error {
	raw, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
