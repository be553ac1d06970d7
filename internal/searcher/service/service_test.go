package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akalivaty/Artale-drop-bot/internal/analytics"
	"github.com/akalivaty/Artale-drop-bot/internal/document"
	"github.com/akalivaty/Artale-drop-bot/internal/indexer"
	"github.com/akalivaty/Artale-drop-bot/internal/indexer/index"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/cache"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
	"github.com/akalivaty/Artale-drop-bot/pkg/logger"
	"github.com/akalivaty/Artale-drop-bot/pkg/metrics"
)

type fakeSource struct {
	snap *indexer.Snapshot
	err  error
}

func (f fakeSource) Load(context.Context) (*indexer.Snapshot, error) {
	return f.snap, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.QueryEvent
}

func (r *recorder) Track(e analytics.QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func snapshot(t *testing.T) *indexer.Snapshot {
	t.Helper()
	drops, err := document.ParseDropTable([]byte(`{"菇菇仔":["藍色披風","楓葉"],"Goblin":["Sword","Shield"],"Orc":["Sword"]}`))
	require.NoError(t, err)
	itemAliases, err := document.ParseNameTable([]byte(`{"Sword":"大劍"}`))
	require.NoError(t, err)
	queryAliases, err := document.ParseNameTable([]byte(`{"披風":"披","Goblin":"哥布林"}`))
	require.NoError(t, err)
	return &indexer.Snapshot{
		Items:        index.Build(drops, itemAliases),
		Drops:        drops,
		QueryAliases: queryAliases,
		Source:       indexer.SourceBuild,
	}
}

func newService(t *testing.T, rc *cache.ResponseCache, m *metrics.Metrics, tr analytics.Tracker) *Service {
	t.Helper()
	return New(fakeSource{snap: snapshot(t)}, executor.New(executor.Options{}), rc, m, tr)
}

func TestDropsRewritesQueryFirst(t *testing.T) {
	s := newService(t, nil, nil, nil)

	got := s.Drops(context.Background(), "藍色披")

	assert.Equal(t, executor.OutcomeOK, got.Outcome)
	assert.Contains(t, got.Text, "【藍色披風】")
	assert.Contains(t, got.Text, "「藍色披風」")
}

func TestDropsThroughItemAlias(t *testing.T) {
	s := newService(t, nil, nil, nil)

	got := s.Drops(context.Background(), "大劍")
	assert.Contains(t, got.Text, "【大劍 (Sword)】")
}

func TestMonsterDropsDoesNotRewrite(t *testing.T) {
	s := newService(t, nil, nil, nil)

	assert.Equal(t, executor.MsgNoMonster, s.MonsterDrops(context.Background(), "哥布林").Text)

	got := s.MonsterDrops(context.Background(), "Gob")
	assert.Contains(t, got.Text, "【Goblin】")
}

func TestRewrite(t *testing.T) {
	s := newService(t, nil, nil, nil)

	got := s.Rewrite(context.Background(), "哥布林 披")
	assert.Equal(t, executor.OutcomeOK, got.Outcome)
	assert.Equal(t, "Goblin 披風", got.Text)
}

func TestUnavailableIndex(t *testing.T) {
	tr := &recorder{}
	s := New(fakeSource{err: errors.New("drop_data.json: document missing")}, executor.New(executor.Options{}), nil, nil, tr)
	ctx := context.Background()

	for _, got := range []Reply{s.Drops(ctx, "Sword"), s.MonsterDrops(ctx, "Orc"), s.Rewrite(ctx, "披")} {
		assert.Equal(t, MsgUnavailable, got.Text)
		assert.Equal(t, OutcomeUnavailable, got.Outcome)
	}
	require.Len(t, tr.events, 3)
	assert.Empty(t, tr.events[0].Rewritten)
}

func TestPanicsBecomeFailureReplies(t *testing.T) {
	s := New(fakeSource{snap: snapshot(t)}, nil, nil, nil, nil)

	got := s.Drops(context.Background(), "Sword")
	assert.Equal(t, MsgFailure, got.Text)
	assert.Equal(t, OutcomeFailed, got.Outcome)

	got = s.MonsterDrops(context.Background(), "Orc")
	assert.Equal(t, OutcomeFailed, got.Outcome)
}

func TestCachedRepliesAreMarked(t *testing.T) {
	b, err := cache.NewLocalBackend(8)
	require.NoError(t, err)
	s := newService(t, cache.New(b), nil, nil)
	ctx := context.Background()

	first := s.Drops(ctx, "Sword")
	second := s.Drops(ctx, "Sword")

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)

	// A drop search and a monster search for the same text do not collide.
	assert.Equal(t, executor.MsgNoMonster, s.MonsterDrops(ctx, "Sword").Text)
}

func TestQueriesAreTrackedAndMetered(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	tr := &recorder{}
	s := newService(t, nil, m, tr)
	ctx := logger.WithRequestID(context.Background(), "req-1")

	s.Drops(ctx, "藍色披")
	s.Drops(ctx, "不存在")
	s.MonsterDrops(ctx, "Orc")

	require.Len(t, tr.events, 3)
	assert.Equal(t, analytics.EventDropSearch, tr.events[0].Type)
	assert.Equal(t, "藍色披", tr.events[0].Query)
	assert.Equal(t, "藍色披風", tr.events[0].Rewritten)
	assert.Equal(t, 1, tr.events[0].Hits)
	assert.Equal(t, "req-1", tr.events[0].RequestID)
	assert.Empty(t, tr.events[1].Rewritten, "unchanged queries carry no rewrite")
	assert.Equal(t, string(executor.OutcomeNoResults), tr.events[1].Outcome)
	assert.Equal(t, analytics.EventMonsterSearch, tr.events[2].Type)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("drop_search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("drop_search", "no_results")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("monster_search", "ok")))
}

func TestSlowQueriesLogSpanTree(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newService(t, nil, nil, nil).WithSlowQueryLog(time.Nanosecond)
	s.Drops(logger.WithRequestID(context.Background(), "req-9"), "Sword")

	out := buf.String()
	assert.Contains(t, out, "span=drop_search")
	assert.Contains(t, out, "span=index_load")
	assert.Contains(t, out, "span=render")
	assert.Contains(t, out, "trace_id=req-9")
}

func TestFastQueriesLogNoSpans(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newService(t, nil, nil, nil).WithSlowQueryLog(time.Hour)
	s.MonsterDrops(context.Background(), "Orc")

	assert.NotContains(t, buf.String(), "msg=span")
}
