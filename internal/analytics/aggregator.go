package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
	"github.com/akalivaty/Artale-drop-bot/pkg/kafka"
)

// maxLatencySamples bounds the window latency percentiles are computed over.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries     int64               `json:"total_queries"`
	ByType           map[EventType]int64 `json:"by_type"`
	CacheHits        int64               `json:"cache_hits"`
	CacheMisses      int64               `json:"cache_misses"`
	NoResultCount    int64               `json:"no_result_count"`
	TooLargeCount    int64               `json:"too_large_count"`
	AvgLatencyMs     float64             `json:"avg_latency_ms"`
	P50LatencyMs     int64               `json:"p50_latency_ms"`
	P95LatencyMs     int64               `json:"p95_latency_ms"`
	P99LatencyMs     int64               `json:"p99_latency_ms"`
	TopQueries       []QueryCount        `json:"top_queries"`
	NoResultQueries  []QueryCount        `json:"no_result_queries"`
	QueriesPerMinute float64             `json:"queries_per_minute"`
}

const (
	defaultTopQueries = 10
	maxTopQueries     = 100
)

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running query statistics. It is a Tracker, so the
// server can feed it directly, and HandleEvent feeds it from the topic.
type Aggregator struct {
	mu              sync.Mutex
	total           int64
	byType          map[EventType]int64
	cacheHits       int64
	cacheMisses     int64
	noResults       int64
	tooLarge        int64
	latencies       []int64
	next            int
	queryCounts     map[string]int64
	noResultQueries map[string]int64
	startTime       time.Time
	now             func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byType:          make(map[EventType]int64),
		latencies:       make([]int64, 0, 1024),
		queryCounts:     make(map[string]int64),
		noResultQueries: make(map[string]int64),
		startTime:       time.Now(),
		now:             time.Now,
	}
}

// HandleEvent decodes query events from the topic into agg. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	logger := slog.Default().With("component", "analytics-aggregator")
	return func(_ context.Context, key []byte, value []byte) error {
		e, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			logger.Error("failed to decode query event", "key", string(key), "error", err)
			return nil
		}
		agg.Track(e)
		return nil
	}
}

func (a *Aggregator) Track(e QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byType[e.Type]++
	if e.Type == EventRewrite {
		return
	}
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	switch executor.Outcome(e.Outcome) {
	case executor.OutcomeNoResults:
		a.noResults++
		a.noResultQueries[e.Query]++
	case executor.OutcomeTooLarge:
		a.tooLarge++
	}
	a.queryCounts[e.Query]++

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// Stats returns the aggregate with the ten most frequent queries per list.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopQueries)
}

// StatsTop is Stats with n entries in the top and zero-hit query lists.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalQueries:  a.total,
		ByType:        make(map[EventType]int64, len(a.byType)),
		CacheHits:     a.cacheHits,
		CacheMisses:   a.cacheMisses,
		NoResultCount: a.noResults,
		TooLargeCount: a.tooLarge,
	}
	for k, v := range a.byType {
		stats.ByType[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.NoResultQueries = topN(a.noResultQueries, n)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties broken by query text.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		result = append(result, QueryCount{Query: q, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
