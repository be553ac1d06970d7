package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akalivaty/Artale-drop-bot/internal/analytics"
	"github.com/akalivaty/Artale-drop-bot/internal/indexer"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/cache"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/executor"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/handler"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/service"
	"github.com/akalivaty/Artale-drop-bot/internal/store"
	"github.com/akalivaty/Artale-drop-bot/pkg/config"
	"github.com/akalivaty/Artale-drop-bot/pkg/health"
	"github.com/akalivaty/Artale-drop-bot/pkg/kafka"
	"github.com/akalivaty/Artale-drop-bot/pkg/logger"
	"github.com/akalivaty/Artale-drop-bot/pkg/metrics"
	"github.com/akalivaty/Artale-drop-bot/pkg/middleware"
	"github.com/akalivaty/Artale-drop-bot/pkg/ratelimit"
	pkgredis "github.com/akalivaty/Artale-drop-bot/pkg/redis"
	"github.com/akalivaty/Artale-drop-bot/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting drop bot", "port", cfg.Server.Port, "data_dir", cfg.Data.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	loader := indexer.NewLoader(store.NewFileStore(cfg.Data.Dir), cfg.Data, m)
	snap, err := loader.Load(ctx)
	if err != nil {
		slog.Error("failed to load item index", "error", err)
		os.Exit(1)
	}
	slog.Info("item index ready",
		"source", snap.Source,
		"items", snap.Items.Len(),
		"monsters", snap.Drops.Len(),
	)

	checker := health.NewChecker()
	checker.Register("item_index", health.IndexCheck(loader.Ready))

	reportCache, closeCache := newReportCache(ctx, cfg, checker)
	defer closeCache()

	aggregator := analytics.NewAggregator()
	trackers := analytics.Trackers{aggregator}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		collector := analytics.NewCollector(producer, m,
			cfg.Kafka.EventBufferSize, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("query events published", "topic", cfg.Kafka.AnalyticsTopic, "brokers", cfg.Kafka.Brokers)
	}

	svc := service.New(loader, executor.NewFromConfig(cfg.Render), reportCache, m, trackers).
		WithSlowQueryLog(cfg.Tracing.SlowQueryThreshold)
	h := handler.New(svc, reportCache)
	statsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/stats", statsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	routes := append(handler.Routes(), "/api/v1/stats", "/health/live", "/health/ready")
	var chain http.Handler = mux
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		go limiter.Run(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter, m, handler.PathDrops, handler.PathMonsters, handler.PathRewrite)(chain)
	}
	chain = middleware.Metrics(m, routes...)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("drop bot listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("drop bot stopped")
}

// newReportCache builds the configured report cache. An unreachable Redis
// falls back to the local LRU rather than failing startup.
func newReportCache(ctx context.Context, cfg *config.Config, checker *health.Checker) (*cache.ResponseCache, func()) {
	noop := func() {}
	switch cfg.Cache.Backend {
	case config.CacheBackendNone:
		slog.Info("report cache disabled")
		return nil, noop
	case config.CacheBackendRedis:
		var client *pkgredis.Client
		err := resilience.Retry(ctx, "redis connect", resilience.RetryConfig{MaxAttempts: cfg.Redis.ConnectAttempts}, func() error {
			var err error
			client, err = pkgredis.NewClient(cfg.Redis)
			return err
		})
		if err == nil {
			checker.Register("redis", health.DegradedOnError(client))
			breaker := resilience.NewCircuitBreaker("redis-report-cache", resilience.CircuitBreakerConfig{
				FailureThreshold: cfg.Redis.BreakerThreshold,
				ResetTimeout:     cfg.Redis.BreakerCooldown,
			})
			backend := cache.NewGuardedBackend(cache.NewRedisBackend(client, cfg.Redis.CacheTTL), breaker)
			slog.Info("report cache enabled", "backend", "redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
			return cache.New(backend), func() { _ = client.Close() }
		}
		slog.Warn("redis unavailable, using local report cache", "error", err)
	}
	local, err := cache.NewLocalBackend(cfg.Cache.LocalSize)
	if err != nil {
		slog.Warn("local report cache unavailable, caching disabled", "error", err)
		return nil, noop
	}
	slog.Info("report cache enabled", "backend", "local", "size", cfg.Cache.LocalSize)
	return cache.New(local), noop
}
