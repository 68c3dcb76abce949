package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), "redis://"+srv.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "f1"); ok {
		t.Fatal("expected miss before Set")
	}
	c.Set(ctx, "f1", []byte("content"))
	data, ok := c.Get(ctx, "f1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(data) != "content" {
		t.Errorf("Get = %q, want content", data)
	}
}

func TestRedisCacheInvalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "f1", []byte("content"))
	c.Invalidate(ctx, "f1")
	if _, ok := c.Get(ctx, "f1"); ok {
		t.Fatal("expected miss after Invalidate")
	}
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c NoopCache
	ctx := context.Background()
	c.Set(ctx, "f1", []byte("content"))
	if _, ok := c.Get(ctx, "f1"); ok {
		t.Fatal("NoopCache returned a hit")
	}
}
