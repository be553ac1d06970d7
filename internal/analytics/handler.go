package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// Handler serves the in-process query aggregate.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "query-stats"),
	}
}

// Stats writes the aggregate as JSON, or as a short report for pasting into
// chat when format=text. top bounds the query lists (1 to 100, default 10).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := defaultTopQueries
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTopQueries {
			http.Error(w, fmt.Sprintf("top must be an integer between 1 and %d", maxTopQueries), http.StatusBadRequest)
			return
		}
		top = n
	}
	stats := h.aggregator.StatsTop(top)

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte(stats.Summary())); err != nil {
			h.logger.Warn("writing stats summary", "error", err)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Warn("encoding query stats", "error", err)
	}
}

// Summary renders the aggregate as a code block in the bot's reply style.
func (s AggregatedStats) Summary() string {
	var b strings.Builder
	b.WriteString("```\n")
	fmt.Fprintf(&b, "查詢總數: %d (物品 %d / 怪物 %d)\n",
		s.TotalQueries, s.ByType[EventDropSearch], s.ByType[EventMonsterSearch])
	if lookups := s.CacheHits + s.CacheMisses; lookups > 0 {
		fmt.Fprintf(&b, "快取命中: %.1f%%\n", float64(s.CacheHits)/float64(lookups)*100)
	}
	fmt.Fprintf(&b, "延遲 p50/p95/p99: %d/%d/%d ms\n", s.P50LatencyMs, s.P95LatencyMs, s.P99LatencyMs)
	writeQueryList(&b, "熱門查詢", s.TopQueries)
	writeQueryList(&b, "查無結果", s.NoResultQueries)
	b.WriteString("```")
	return b.String()
}

func writeQueryList(b *strings.Builder, title string, qs []QueryCount) {
	if len(qs) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for i, q := range qs {
		fmt.Fprintf(b, "%2d. %s (%d)\n", i+1, q.Query, q.Count)
	}
}
