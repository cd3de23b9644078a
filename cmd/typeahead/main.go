// Command typeahead answers keystrokes over stdin and stdout. Each msgpack
// request {id, q} carries the full text of the search field; a msgpack
// response is written for the latest request once its shard is available.
// Logs go to stderr.
//
// Usage:
//
//	typeahead [-config configs/development.yaml] [-shards ./html/search]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/ipc"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	shardSource := flag.String("shards", "", "shard directory or base URL (overrides search.shardSource)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *shardSource != "" {
		cfg.Search.ShardSource = *shardSource
	}

	logger.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fetcher store.Fetcher = store.NewOrigin(cfg.Search.ShardSource, shard.FileName, nil)
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shard cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			fetcher = cache.New(redisClient, fetcher, cfg.Redis, cfg.Search.IndexVersion, nil)
		}
	}

	shards := store.New(fetcher, segment.Decode, store.Options{LoadTimeout: cfg.Search.LoadTimeout})
	engine := query.NewEngine(shards, cfg.Search.MaxResults, nil)

	var tracker ipc.Tracker
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
		defer producer.Close()
		collectorCtx, cancelCollector := context.WithCancel(context.Background())
		collector := analytics.NewCollector(producer, 100, 5*time.Second)
		collector.Start(collectorCtx)
		defer collector.Close()
		defer cancelCollector()
		tracker = collector
	}

	srv := ipc.NewServer(os.Stdin, os.Stdout, engine, query.SessionConfig{
		Debounce:         cfg.Search.Debounce,
		PrefetchAdjacent: cfg.Search.PrefetchAdjacent,
	}, tracker)

	slog.Info("typeahead ready",
		"shard_source", cfg.Search.ShardSource,
		"debounce", cfg.Search.Debounce,
	)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		slog.Error("typeahead stopped", "error", err)
		os.Exit(1)
	}
	st := shards.Stats()
	slog.Info("typeahead stopped", "shards_loaded", len(st.Cached), "degraded", len(st.Degraded), "fetches", st.Fetches)
}
