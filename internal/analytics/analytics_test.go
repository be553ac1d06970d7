package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
	"github.com/akalivaty/Artale-drop-bot/pkg/kafka"
	"github.com/akalivaty/Artale-drop-bot/pkg/metrics"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kafka.Event
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func (p *fakePublisher) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestCollectorPublishesFullBatches(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 16, 2, time.Hour)
	c.Start(context.Background())

	c.Track(QueryEvent{Type: EventDropSearch, Query: "楓葉"})
	c.Track(QueryEvent{Type: EventMonsterSearch, Query: "Gob"})

	require.Eventually(t, func() bool { return pub.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	c.Close()

	events := pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, "drop_search", events[0].Key)
	assert.Equal(t, "Gob", events[1].Value.(QueryEvent).Query)
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 16, 100, time.Hour)
	c.Start(context.Background())

	c.Track(QueryEvent{Type: EventDropSearch, Query: "a"})
	c.Track(QueryEvent{Type: EventDropSearch, Query: "b"})
	c.Close()

	assert.Len(t, pub.events(), 2)
	c.Track(QueryEvent{Type: EventDropSearch, Query: "late"})
	assert.Len(t, pub.events(), 2, "events after Close are ignored")
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 16, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(QueryEvent{Type: EventRewrite, Query: "披"})
	cancel()
	c.Close()

	assert.Len(t, pub.events(), 1)
}

func TestCollectorDropsWhenBufferFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := NewCollector(&fakePublisher{}, m, 1, 100, time.Hour)

	// Not started, so nothing drains the buffer.
	c.Track(QueryEvent{Query: "kept"})
	c.Track(QueryEvent{Query: "dropped"})
	c.Track(QueryEvent{Query: "dropped"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalyticsDropped))
}

func TestCollectorKeepsFailedBatch(t *testing.T) {
	pub := &fakePublisher{fail: true}
	c := NewCollector(pub, nil, 16, 100, time.Hour)

	c.add(QueryEvent{Query: "retry"})
	c.flush(context.Background())
	assert.Len(t, c.pending, 1)

	pub.fail = false
	c.flush(context.Background())
	assert.Empty(t, c.pending)
	assert.Len(t, pub.events(), 1)
}

func TestCollectorBoundsFailedBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := NewCollector(&fakePublisher{fail: true}, m, 16, 2, time.Hour)

	for i := 0; i < 8; i++ {
		c.add(QueryEvent{Hits: i})
	}
	c.flush(context.Background())

	require.Len(t, c.pending, 6)
	assert.Equal(t, 2, c.pending[0].Value.(QueryEvent).Hits, "oldest events go first")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalyticsDropped))
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.Track(QueryEvent{Type: EventDropSearch, Query: "楓葉", Outcome: string(executor.OutcomeOK), LatencyMs: 10})
	a.Track(QueryEvent{Type: EventDropSearch, Query: "楓葉", Outcome: string(executor.OutcomeOK), LatencyMs: 20, CacheHit: true})
	a.Track(QueryEvent{Type: EventDropSearch, Query: "綠色", Outcome: string(executor.OutcomeNoResults), LatencyMs: 30})
	a.Track(QueryEvent{Type: EventMonsterSearch, Query: "Slime", Outcome: string(executor.OutcomeTooLarge), LatencyMs: 40})
	a.Track(QueryEvent{Type: EventRewrite, Query: "披"})

	s := a.Stats()
	assert.Equal(t, int64(5), s.TotalQueries)
	assert.Equal(t, int64(3), s.ByType[EventDropSearch])
	assert.Equal(t, int64(1), s.ByType[EventRewrite])
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(1), s.NoResultCount)
	assert.Equal(t, int64(1), s.TooLargeCount)
	assert.InDelta(t, 25.0, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(30), s.P50LatencyMs)
	assert.Equal(t, int64(40), s.P99LatencyMs)
	assert.Equal(t, QueryCount{Query: "楓葉", Count: 2}, s.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "綠色", Count: 1}}, s.NoResultQueries)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < maxLatencySamples+10; i++ {
		a.Track(QueryEvent{Type: EventDropSearch, LatencyMs: int64(i)})
	}
	assert.Len(t, a.latencies, maxLatencySamples)
	assert.Equal(t, int64(maxLatencySamples+10), a.Stats().TotalQueries)
}

func TestHandleEvent(t *testing.T) {
	a := NewAggregator()
	h := HandleEvent(a)

	body, err := json.Marshal(QueryEvent{Type: EventMonsterSearch, Query: "Orc", Outcome: "ok"})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), []byte("monster_search"), body))
	require.NoError(t, h(context.Background(), nil, []byte("not json")))

	s := a.Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, "Orc", s.TopQueries[0].Query)
}

func TestTrackersFanOut(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	Trackers{a, b}.Track(QueryEvent{Type: EventRewrite})
	assert.Equal(t, int64(1), a.Stats().TotalQueries)
	assert.Equal(t, int64(1), b.Stats().TotalQueries)
}

func TestStatsHandler(t *testing.T) {
	a := NewAggregator()
	a.Track(QueryEvent{Type: EventDropSearch, Query: "Sword", Outcome: "ok"})

	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.TotalQueries)
}

func TestStatsHandlerTopAndTextFormat(t *testing.T) {
	a := NewAggregator()
	for _, q := range []string{"楓葉", "楓葉", "披風", "Sword"} {
		a.Track(QueryEvent{Type: EventDropSearch, Query: q, Outcome: "ok"})
	}
	a.Track(QueryEvent{Type: EventMonsterSearch, Query: "不存在", Outcome: string(executor.OutcomeNoResults)})
	h := NewHandler(a)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?top=1", nil))
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []QueryCount{{Query: "楓葉", Count: 2}}, got.TopQueries)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?format=text", nil))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "查詢總數: 5 (物品 4 / 怪物 1)")
	assert.Contains(t, body, " 1. 楓葉 (2)")
	assert.Contains(t, body, "查無結果:\n 1. 不存在 (1)")
}

func TestStatsHandlerRejectsBadTop(t *testing.T) {
	h := NewHandler(NewAggregator())
	for _, v := range []string{"0", "101", "many"} {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?top="+v, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, v)
	}
}
