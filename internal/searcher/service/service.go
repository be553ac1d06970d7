// Package service answers drop, monster and rewrite queries against the
// loaded index. It is the single entry point shared by the HTTP handler and
// the CLI.
package service

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/akalivaty/Artale-drop-bot/internal/analytics"
	"github.com/akalivaty/Artale-drop-bot/internal/indexer"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/alias"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/cache"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
	"github.com/akalivaty/Artale-drop-bot/pkg/logger"
	"github.com/akalivaty/Artale-drop-bot/pkg/metrics"
	"github.com/akalivaty/Artale-drop-bot/pkg/tracing"
)

const (
	MsgUnavailable = "掉落資料目前無法使用，請聯繫管理員。"
	MsgFailure     = "指令發生未預期的錯誤，請聯繫管理員。"
)

const (
	OutcomeUnavailable executor.Outcome = "unavailable"
	OutcomeFailed      executor.Outcome = "failed"
)

// IndexSource supplies the snapshot queries run against. *indexer.Loader
// satisfies it.
type IndexSource interface {
	Load(ctx context.Context) (*indexer.Snapshot, error)
}

// Reply is a report plus how it was produced.
type Reply struct {
	executor.Report
	CacheHit bool
}

type Service struct {
	source   IndexSource
	resolver *executor.Resolver
	cache    *cache.ResponseCache
	metrics  *metrics.Metrics
	tracker  analytics.Tracker
	slow     time.Duration
}

// New wires a Service. cache, m and tracker may be nil.
func New(
	source IndexSource,
	resolver *executor.Resolver,
	reportCache *cache.ResponseCache,
	m *metrics.Metrics,
	tracker analytics.Tracker,
) *Service {
	return &Service{
		source:   source,
		resolver: resolver,
		cache:    reportCache,
		metrics:  m,
		tracker:  tracker,
	}
}

// WithSlowQueryLog logs the span tree of every query taking at least d.
// Zero disables it.
func (s *Service) WithSlowQueryLog(d time.Duration) *Service {
	s.slow = d
	return s
}

// Drops rewrites text with the query alias table, then searches item names
// for every keyword of the rewritten query.
func (s *Service) Drops(ctx context.Context, text string) (reply Reply) {
	ctx, span := tracing.Start(ctx, string(analytics.EventDropSearch), logger.RequestID(ctx))
	var rewritten string
	defer func() { s.finish(ctx, span, text, rewritten, &reply, recover()) }()

	snap, err := s.load(ctx)
	if err != nil {
		s.logUnavailable(ctx, err)
		return unavailable()
	}
	rewritten = alias.RewriteQuery(text, snap.QueryAliases)
	report, hit, err := s.search(ctx, cache.KindDrops, rewritten, func() executor.Report {
		return s.resolver.SearchDrops(rewritten, snap.Items)
	})
	if err != nil {
		logger.FromContext(ctx).Error("drop search failed", "query", rewritten, "error", err)
		return failed()
	}
	return Reply{Report: report, CacheHit: hit}
}

// MonsterDrops searches monster names for text taken literally.
func (s *Service) MonsterDrops(ctx context.Context, text string) (reply Reply) {
	ctx, span := tracing.Start(ctx, string(analytics.EventMonsterSearch), logger.RequestID(ctx))
	defer func() { s.finish(ctx, span, text, "", &reply, recover()) }()

	snap, err := s.load(ctx)
	if err != nil {
		s.logUnavailable(ctx, err)
		return unavailable()
	}
	report, hit, err := s.search(ctx, cache.KindMonsters, text, func() executor.Report {
		return s.resolver.SearchMonsterDrops(text, snap.Drops)
	})
	if err != nil {
		logger.FromContext(ctx).Error("monster search failed", "query", text, "error", err)
		return failed()
	}
	return Reply{Report: report, CacheHit: hit}
}

// Rewrite returns text after query alias substitution.
func (s *Service) Rewrite(ctx context.Context, text string) (reply Reply) {
	ctx, span := tracing.Start(ctx, string(analytics.EventRewrite), logger.RequestID(ctx))
	var rewritten string
	defer func() { s.finish(ctx, span, text, rewritten, &reply, recover()) }()

	snap, err := s.load(ctx)
	if err != nil {
		s.logUnavailable(ctx, err)
		return unavailable()
	}
	rewritten = alias.RewriteQuery(text, snap.QueryAliases)
	return Reply{Report: executor.Report{Text: rewritten, Outcome: executor.OutcomeOK}}
}

func (s *Service) load(ctx context.Context) (*indexer.Snapshot, error) {
	ctx, span := tracing.StartChild(ctx, "index_load")
	defer span.End()
	return s.source.Load(ctx)
}

func (s *Service) search(
	ctx context.Context,
	kind cache.Kind,
	query string,
	run func() executor.Report,
) (executor.Report, bool, error) {
	ctx, span := tracing.StartChild(ctx, "search")
	defer span.End()
	report, hit, err := s.cache.GetOrCompute(ctx, kind, query, func() (executor.Report, error) {
		_, compute := tracing.StartChild(ctx, "render")
		defer compute.End()
		return run(), nil
	})
	span.SetAttr("cache_hit", hit)
	span.SetAttr("hits", report.Hits)
	return report, hit, err
}

func unavailable() Reply {
	return Reply{Report: executor.Report{Text: MsgUnavailable, Outcome: OutcomeUnavailable}}
}

func failed() Reply {
	return Reply{Report: executor.Report{Text: MsgFailure, Outcome: OutcomeFailed}}
}

func (s *Service) logUnavailable(ctx context.Context, err error) {
	logger.FromContext(ctx).Error("index unavailable", "error", err)
}

// finish turns a recovered panic into the generic failure reply, then
// records metrics and the analytics event for the query.
func (s *Service) finish(
	ctx context.Context,
	span *tracing.Span,
	query, rewritten string,
	reply *Reply,
	panicked any,
) {
	kind := analytics.EventType(span.Name)
	if panicked != nil {
		logger.FromContext(ctx).Error("query panicked",
			"kind", kind,
			"query", query,
			"panic", panicked,
			"stack", string(debug.Stack()),
		)
		*reply = failed()
	}
	span.End()
	latency := span.Duration
	if s.slow > 0 && latency >= s.slow {
		span.SetAttr("query", query)
		span.Log(logger.FromContext(ctx), slog.LevelWarn)
	}
	s.metrics.ObserveQuery(string(kind), string(reply.Outcome), reply.Hits, reply.CacheHit, latency)

	logger.FromContext(ctx).Info("query answered",
		"kind", kind,
		"query", query,
		"outcome", reply.Outcome,
		"hits", reply.Hits,
		"cache_hit", reply.CacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if s.tracker == nil {
		return
	}
	if rewritten == query {
		rewritten = ""
	}
	s.tracker.Track(analytics.QueryEvent{
		Type:      kind,
		Query:     query,
		Rewritten: rewritten,
		Hits:      reply.Hits,
		Outcome:   string(reply.Outcome),
		LatencyMs: latency.Milliseconds(),
		CacheHit:  reply.CacheHit,
		Timestamp: span.StartTime.UTC(),
		RequestID: logger.RequestID(ctx),
	})
}
