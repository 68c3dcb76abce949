package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ContentCache fronts blob reads with a shared key/value store. A miss is
// never an error; callers fall through to the blob store.
type ContentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
	Invalidate(ctx context.Context, key string)
}

// RedisCache caches file content in Redis with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, "content:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte) {
	// Cache failures are invisible to callers.
	c.client.Set(ctx, "content:"+key, data, c.ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	c.client.Del(ctx, "content:"+key)
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache disables caching; every Get is a miss.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NoopCache) Set(context.Context, string, []byte)        {}
func (NoopCache) Invalidate(context.Context, string)         {}
