// Command analytics aggregates query events from the search surfaces.
//
// It consumes query events from Kafka, keeps running statistics in memory
// (query volume, zero-result and degraded queries, truncation, latency
// percentiles, top queries), optionally snapshots them to PostgreSQL, and
// serves them at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/postgres"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(nil, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)
	if len(cfg.Kafka.Brokers) == 0 {
		slog.Error("analytics needs kafka.brokers")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator(nil)
	agg.SetConsumer(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, analytics.HandleEvent(agg)))
	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.QueryEvents)

	checker := health.NewChecker()
	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Host != "" {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer db.Close()
			store := aggregator.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("snapshot schema unavailable", "error", err)
			} else {
				store.StartPeriodicSave(ctx, agg, snapshotInterval)
				snapshots = store
				checker.Register("postgres", health.PingCheck(db.Ping))
			}
		}
	}

	analyticsHandler := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
