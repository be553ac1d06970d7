// Package cache memoizes rendered search reports. Reports depend only on the
// query and the loaded index, so entries stay valid until the index is
// rebuilt, at which point callers Invalidate.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
)

const keyPrefix = "drops:"

// Kind separates the key spaces of the two searches.
type Kind string

const (
	KindDrops    Kind = "drops"
	KindMonsters Kind = "monsters"
)

// ResponseCache fronts a Backend with request coalescing and hit counters.
// A nil *ResponseCache computes every report.
type ResponseCache struct {
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend) *ResponseCache {
	return &ResponseCache{
		backend: backend,
		logger:  slog.Default().With("component", "report-cache", "backend", backend.Name()),
	}
}

func (c *ResponseCache) Backend() string {
	if c == nil {
		return "none"
	}
	return c.backend.Name()
}

func (c *ResponseCache) get(ctx context.Context, key string) (executor.Report, bool) {
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return executor.Report{}, false
	}
	if !ok {
		return executor.Report{}, false
	}
	var r executor.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return executor.Report{}, false
	}
	return r, true
}

func (c *ResponseCache) set(ctx context.Context, key string, r executor.Report) {
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, string(data)); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached report for (kind, query), or runs compute
// once for all concurrent callers asking for the same key and stores the
// result. Backend failures fall back to compute. The bool reports a hit.
func (c *ResponseCache) GetOrCompute(
	ctx context.Context,
	kind Kind,
	query string,
	compute func() (executor.Report, error),
) (executor.Report, bool, error) {
	if c == nil {
		r, err := compute()
		return r, false, err
	}
	key := buildKey(kind, query)
	if r, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "kind", kind, "key", key)
		return r, true, nil
	}
	c.misses.Add(1)
	// The shared call serves every waiter, so the leader's cancellation must
	// not fail it for the rest.
	shared := context.WithoutCancel(ctx)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if r, ok := c.get(shared, key); ok {
			return r, nil
		}
		r, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(shared, key, r)
		return r, nil
	})
	if err != nil {
		return executor.Report{}, false, err
	}
	return val.(executor.Report), false, nil
}

// Invalidate removes every cached report.
func (c *ResponseCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	deleted, err := c.backend.Purge(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating report cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResponseCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func buildKey(kind Kind, query string) string {
	hash := sha256.Sum256([]byte(string(kind) + ":" + normalizeQuery(kind, query)))
	return fmt.Sprintf("%s%s:%x", keyPrefix, kind, hash[:16])
}

// normalizeQuery maps queries that render identical reports to one key. Drop
// searches split on whitespace, so runs of whitespace collapse; keyword order
// shows in the report header and is kept. Monster searches match the query
// literally and are left alone.
func normalizeQuery(kind Kind, query string) string {
	if kind == KindDrops {
		return strings.Join(strings.Fields(query), " ")
	}
	return query
}
