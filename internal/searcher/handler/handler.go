// Package handler serves drop lookups over HTTP. Reports are returned as
// text/plain exactly as a chat client would display them; cache
// administration endpoints speak JSON.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/akalivaty/Artale-drop-bot/internal/searcher/cache"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/service"
	apperrors "github.com/akalivaty/Artale-drop-bot/pkg/errors"
	"github.com/akalivaty/Artale-drop-bot/pkg/logger"
)

const (
	PathDrops           = "/api/v1/drops"
	PathMonsters        = "/api/v1/monsters"
	PathRewrite         = "/api/v1/rewrite"
	PathCacheStats      = "/api/v1/cache/stats"
	PathCacheInvalidate = "/api/v1/cache/invalidate"
)

// Usage replies for requests without a q parameter.
const (
	usageDrops    = "請輸入要查詢的物品名稱。用法: `!drop <物品名稱>`"
	usageMonsters = "請輸入要查詢的怪物名稱。用法: `!mob <怪物名稱>`"
	usageRewrite  = "請輸入要轉換的查詢文字。用法: `!rewrite <文字>`"
)

// Searcher answers queries. *service.Service satisfies it.
type Searcher interface {
	Drops(ctx context.Context, text string) service.Reply
	MonsterDrops(ctx context.Context, text string) service.Reply
	Rewrite(ctx context.Context, text string) service.Reply
}

type Handler struct {
	searcher Searcher
	cache    *cache.ResponseCache
	logger   *slog.Logger
}

// New builds a Handler. reportCache may be nil when caching is disabled.
func New(s Searcher, reportCache *cache.ResponseCache) *Handler {
	return &Handler{
		searcher: s,
		cache:    reportCache,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+PathDrops, h.Drops)
	mux.HandleFunc("GET "+PathMonsters, h.Monsters)
	mux.HandleFunc("GET "+PathRewrite, h.Rewrite)
	mux.HandleFunc("GET "+PathCacheStats, h.CacheStats)
	mux.HandleFunc("POST "+PathCacheInvalidate, h.CacheInvalidate)
}

// Routes lists the paths Register mounts.
func Routes() []string {
	return []string{PathDrops, PathMonsters, PathRewrite, PathCacheStats, PathCacheInvalidate}
}

func (h *Handler) Drops(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, usageDrops, h.searcher.Drops)
}

func (h *Handler) Monsters(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, usageMonsters, h.searcher.MonsterDrops)
}

func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, usageRewrite, h.searcher.Rewrite)
}

// answer runs one query. A missing q is a usage error; an empty q is a
// valid query.
func (h *Handler) answer(
	w http.ResponseWriter,
	r *http.Request,
	usage string,
	query func(context.Context, string) service.Reply,
) {
	values, ok := r.URL.Query()["q"]
	if !ok {
		h.writeText(w, http.StatusBadRequest, usage)
		return
	}
	reply := query(r.Context(), values[0])

	status := http.StatusOK
	switch reply.Outcome {
	case service.OutcomeUnavailable:
		status = apperrors.HTTPStatusCode(apperrors.ErrIndexNotReady)
	case service.OutcomeFailed:
		status = apperrors.HTTPStatusCode(apperrors.ErrInternal)
	}
	w.Header().Set("X-Result-Outcome", string(reply.Outcome))
	w.Header().Set("X-Result-Hits", strconv.Itoa(reply.Hits))
	if reply.CacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	h.writeText(w, status, reply.Text)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"backend":  h.cache.Backend(),
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
