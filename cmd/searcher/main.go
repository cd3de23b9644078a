// Command searcher serves symbol queries over HTTP. Shards are loaded on
// demand from a directory or a static file server, optionally through a
// shared Redis blob cache.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(nil, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"shard_source", cfg.Search.ShardSource,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	origin := store.NewOrigin(cfg.Search.ShardSource, shard.FileName, m)
	var fetcher store.Fetcher = origin

	checker := health.NewChecker()
	checker.Register("shard_origin", health.PingCheck(origin.Ping))

	var shardCache *cache.ShardCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shard cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			shardCache = cache.New(redisClient, origin, cfg.Redis, cfg.Search.IndexVersion, m)
			fetcher = shardCache
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := redisClient.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
			slog.Info("shard cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	shards := store.New(fetcher, segment.Decode, store.Options{LoadTimeout: cfg.Search.LoadTimeout, Metrics: m})
	engine := query.NewEngine(shards, cfg.Search.MaxResults, m)
	checker.Register("shard_store", func(ctx context.Context) health.ComponentHealth {
		st := shards.Stats()
		if len(st.Degraded) > 0 {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("%d of %d loaded shards degraded", len(st.Degraded), len(st.Cached)),
			}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d shards loaded", len(st.Cached))}
	})

	var tracker handler.Tracker
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 100, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("query analytics enabled", "topic", cfg.Kafka.Topics.QueryEvents)
	}

	var cacheIface handler.ShardCache
	if shardCache != nil {
		cacheIface = shardCache
	}
	h := handler.New(engine, shards, cacheIface, tracker, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	search := middleware.RateLimit(cfg.Search.RateLimit, cfg.Search.RateBurst)(http.HandlerFunc(h.Search))
	mux.Handle("GET /api/v1/search", search)
	mux.HandleFunc("GET /api/v1/shards", h.Shards)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
