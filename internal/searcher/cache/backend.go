package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	pkgredis "github.com/akalivaty/Artale-drop-bot/pkg/redis"
	"github.com/akalivaty/Artale-drop-bot/pkg/resilience"
)

// Backend stores rendered reports by key. Get reports ok=false on a miss;
// errors are reserved for backend failures.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Purge removes every key with the given prefix and returns the count.
	Purge(ctx context.Context, prefix string) (int64, error)
}

// LocalBackend keeps reports in a process-local LRU.
type LocalBackend struct {
	lru *lru.Cache
}

func NewLocalBackend(size int) (*LocalBackend, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating lru of size %d: %w", size, err)
	}
	return &LocalBackend{lru: c}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := b.lru.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *LocalBackend) Set(_ context.Context, key, value string) error {
	b.lru.Add(key, value)
	return nil
}

// Purge drops the whole LRU; every key it holds carries the cache prefix.
func (b *LocalBackend) Purge(_ context.Context, _ string) (int64, error) {
	n := b.lru.Len()
	b.lru.Purge()
	return int64(n), nil
}

// RedisBackend shares reports between processes through Redis.
type RedisBackend struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewRedisBackend(client *pkgredis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	return b.client.Set(ctx, key, value, b.ttl)
}

func (b *RedisBackend) Purge(ctx context.Context, prefix string) (int64, error) {
	return b.client.FlushByPattern(ctx, prefix+"*")
}

// GuardedBackend stops calling a failing backend for a cool-down period so
// a Redis outage costs one fast error per request instead of a timeout.
// Errors from calls whose ctx has ended do not count as backend failures.
type GuardedBackend struct {
	Backend
	breaker *resilience.CircuitBreaker
}

func NewGuardedBackend(b Backend, cb *resilience.CircuitBreaker) *GuardedBackend {
	return &GuardedBackend{Backend: b, breaker: cb}
}

func (g *GuardedBackend) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = g.breaker.ExecuteContext(ctx, func() error {
		var getErr error
		value, ok, getErr = g.Backend.Get(ctx, key)
		return getErr
	})
	return value, ok, err
}

func (g *GuardedBackend) Set(ctx context.Context, key, value string) error {
	return g.breaker.ExecuteContext(ctx, func() error {
		return g.Backend.Set(ctx, key, value)
	})
}

func (g *GuardedBackend) Purge(ctx context.Context, prefix string) (n int64, err error) {
	err = g.breaker.ExecuteContext(ctx, func() error {
		var purgeErr error
		n, purgeErr = g.Backend.Purge(ctx, prefix)
		return purgeErr
	})
	return n, err
}
