package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
	"github.com/akalivaty/Artale-drop-bot/pkg/resilience"
)

type brokenBackend struct{}

func (brokenBackend) Name() string { return "broken" }
func (brokenBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}
func (brokenBackend) Set(context.Context, string, string) error {
	return errors.New("connection refused")
}
func (brokenBackend) Purge(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func localCache(t *testing.T) *ResponseCache {
	t.Helper()
	b, err := NewLocalBackend(16)
	require.NoError(t, err)
	return New(b)
}

func counting(calls *atomic.Int32, r executor.Report) func() (executor.Report, error) {
	return func() (executor.Report, error) {
		calls.Add(1)
		return r, nil
	}
}

func TestGetOrComputeCachesReports(t *testing.T) {
	c := localCache(t)
	ctx := context.Background()
	want := executor.Report{Text: "```\nreport\n```", Outcome: executor.OutcomeOK, Hits: 2}
	var calls atomic.Int32

	got, hit, err := c.GetOrCompute(ctx, KindDrops, "Sword", counting(&calls, want))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, got)

	got, hit, err = c.GetOrCompute(ctx, KindDrops, "Sword", counting(&calls, want))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)

	assert.Equal(t, int32(1), calls.Load())
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKindsDoNotShareEntries(t *testing.T) {
	c := localCache(t)
	ctx := context.Background()
	var calls atomic.Int32

	_, _, _ = c.GetOrCompute(ctx, KindDrops, "Gob", counting(&calls, executor.Report{Text: "drops"}))
	got, hit, _ := c.GetOrCompute(ctx, KindMonsters, "Gob", counting(&calls, executor.Report{Text: "monsters"}))

	assert.False(t, hit)
	assert.Equal(t, "monsters", got.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDropQueriesNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, buildKey(KindDrops, "藍色 蝸牛"), buildKey(KindDrops, "  藍色\t蝸牛 "))
	assert.NotEqual(t, buildKey(KindDrops, "藍色 蝸牛"), buildKey(KindDrops, "蝸牛 藍色"))
	assert.NotEqual(t, buildKey(KindMonsters, "Blue Snail"), buildKey(KindMonsters, "Blue  Snail"))
}

func TestGetOrComputeCoalescesConcurrentMisses(t *testing.T) {
	c := localCache(t)
	ctx := context.Background()
	release := make(chan struct{})
	var calls atomic.Int32
	compute := func() (executor.Report, error) {
		calls.Add(1)
		<-release
		return executor.Report{Text: "slow"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, _, err := c.GetOrCompute(ctx, KindDrops, "Potion", compute)
			assert.NoError(t, err)
			assert.Equal(t, "slow", r.Text)
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputePropagatesErrors(t *testing.T) {
	c := localCache(t)
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), KindDrops, "x", func() (executor.Report, error) {
		return executor.Report{}, boom
	})
	assert.ErrorIs(t, err, boom)

	var calls atomic.Int32
	_, hit, err := c.GetOrCompute(context.Background(), KindDrops, "x", counting(&calls, executor.Report{}))
	require.NoError(t, err)
	assert.False(t, hit, "failures are not cached")
	assert.Equal(t, int32(1), calls.Load())
}

func TestBrokenBackendFallsBackToCompute(t *testing.T) {
	c := New(brokenBackend{})
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		r, hit, err := c.GetOrCompute(context.Background(), KindMonsters, "Orc", counting(&calls, executor.Report{Text: "ok"}))
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "ok", r.Text)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Error(t, c.Invalidate(context.Background()))
}

func TestInvalidate(t *testing.T) {
	c := localCache(t)
	ctx := context.Background()
	var calls atomic.Int32

	_, _, _ = c.GetOrCompute(ctx, KindDrops, "Sword", counting(&calls, executor.Report{Text: "v1"}))
	require.NoError(t, c.Invalidate(ctx))
	got, hit, _ := c.GetOrCompute(ctx, KindDrops, "Sword", counting(&calls, executor.Report{Text: "v2"}))

	assert.False(t, hit)
	assert.Equal(t, "v2", got.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNilCacheComputes(t *testing.T) {
	var c *ResponseCache
	var calls atomic.Int32

	r, hit, err := c.GetOrCompute(context.Background(), KindDrops, "x", counting(&calls, executor.Report{Text: "direct"}))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "direct", r.Text)
	assert.NoError(t, c.Invalidate(context.Background()))
	assert.Equal(t, "none", c.Backend())
}

func TestLocalBackendEvicts(t *testing.T) {
	b, err := NewLocalBackend(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", "1"))
	require.NoError(t, b.Set(ctx, "b", "2"))
	require.NoError(t, b.Set(ctx, "c", "3"))

	_, ok, _ := b.Get(ctx, "a")
	assert.False(t, ok)
	v, ok, _ := b.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	n, err := b.Purge(ctx, keyPrefix)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNewLocalBackendRejectsBadSize(t *testing.T) {
	_, err := NewLocalBackend(0)
	assert.Error(t, err)
}

type flakyBackend struct {
	LocalBackend
	calls int
	fail  bool
}

func (f *flakyBackend) Get(ctx context.Context, key string) (string, bool, error) {
	f.calls++
	if f.fail {
		return "", false, errors.New("i/o timeout")
	}
	return f.LocalBackend.Get(ctx, key)
}

func TestGuardedBackendShortCircuits(t *testing.T) {
	local, err := NewLocalBackend(4)
	require.NoError(t, err)
	flaky := &flakyBackend{LocalBackend: *local, fail: true}
	g := NewGuardedBackend(flaky, resilience.NewCircuitBreaker("test", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := g.Get(ctx, "k")
		assert.Error(t, err)
	}
	assert.Equal(t, 2, flaky.calls, "open circuit skips the backend")

	_, err = g.Purge(ctx, keyPrefix)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, "local", g.Name())
}

// ctxBackend honours ctx like a network client: a done ctx fails the call.
type ctxBackend struct {
	*LocalBackend
	calls atomic.Int32
}

func (b *ctxBackend) Get(ctx context.Context, key string) (string, bool, error) {
	b.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return b.LocalBackend.Get(ctx, key)
}

func (b *ctxBackend) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.LocalBackend.Set(ctx, key, value)
}

func TestGuardedBackendIgnoresCallerCancellation(t *testing.T) {
	local, err := NewLocalBackend(4)
	require.NoError(t, err)
	b := &ctxBackend{LocalBackend: local}
	g := NewGuardedBackend(b, resilience.NewCircuitBreaker("test", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	}))
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, _, err := g.Get(cancelled, "k")
		assert.ErrorIs(t, err, context.Canceled)
	}
	_, ok, err := g.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(6), b.calls.Load(), "circuit stayed closed")
}

func TestCancelledLeaderStillFillsCache(t *testing.T) {
	local, err := NewLocalBackend(4)
	require.NoError(t, err)
	c := New(&ctxBackend{LocalBackend: local})
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32

	r, hit, err := c.GetOrCompute(cancelled, KindDrops, "Sword", counting(&calls, executor.Report{Text: "v1"}))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "v1", r.Text)

	r, hit, err = c.GetOrCompute(context.Background(), KindDrops, "Sword", counting(&calls, executor.Report{Text: "v2"}))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v1", r.Text)
	assert.Equal(t, int32(1), calls.Load())
}
