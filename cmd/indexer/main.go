// Command indexer builds the shard files for a documentation set.
//
// In batch mode it reads a JSON-lines symbol table and/or a directory of
// legacy Doxygen search scripts and writes one shard per partition plus
// manifest.json. With -consume it builds from the symbol topic instead,
// writing a new index each time a producer closes a build. With -publish it
// streams a symbol table onto that topic for another indexer to build.
//
// Usage:
//
//	indexer -symbols symbols.jsonl [-out ./html/search]
//	indexer -legacy-dir ./html/search -out ./search
//	indexer -consume
//	indexer -publish -symbols symbols.jsonl
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/manifest"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/postgres"
)

const publishBatchSize = 500

func main() {
	configPath := flag.String("config", "", "path to config file")
	symbolsPath := flag.String("symbols", "", "JSON-lines symbol table, '-' for stdin (overrides indexer.symbolTable)")
	legacyDir := flag.String("legacy-dir", "", "directory of Doxygen all_*.js scripts to import (overrides indexer.legacyDir)")
	outDir := flag.String("out", "", "shard output directory (overrides indexer.shardDir)")
	consume := flag.Bool("consume", false, "build from the symbol topic instead of local input")
	publish := flag.Bool("publish", false, "publish the symbol table to the symbol topic instead of building")
	latest := flag.Bool("latest", false, "print the most recently recorded build manifest and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *symbolsPath != "" {
		cfg.Indexer.SymbolTable = *symbolsPath
	}
	if *legacyDir != "" {
		cfg.Indexer.LegacyDir = *legacyDir
	}
	if *outDir != "" {
		cfg.Indexer.ShardDir = *outDir
	}

	logger.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *latest:
		err = printLatest(ctx, cfg)
	case *publish:
		err = publishSymbols(ctx, cfg)
	case *consume:
		err = consumeSymbols(ctx, cfg)
	default:
		err = buildOnce(ctx, cfg)
	}
	if err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func buildOnce(ctx context.Context, cfg *config.Config) error {
	if cfg.Indexer.SymbolTable == "" && cfg.Indexer.LegacyDir == "" {
		return fmt.Errorf("nothing to index: set -symbols or -legacy-dir")
	}
	engine, err := indexer.NewEngine(cfg.Indexer.ShardDir, metrics.New(nil))
	if err != nil {
		return err
	}

	if cfg.Indexer.SymbolTable != "" {
		syms, err := readSymbols(cfg.Indexer.SymbolTable)
		if err != nil {
			return err
		}
		if err := engine.AddAll(syms); err != nil {
			slog.Warn("symbol table has rejected symbols", "error", err)
		}
		slog.Info("symbol table read", "path", cfg.Indexer.SymbolTable, "symbols", len(syms))
	}
	if cfg.Indexer.LegacyDir != "" {
		files, err := indexer.ImportLegacy(engine, cfg.Indexer.LegacyDir)
		if err != nil {
			return err
		}
		slog.Info("legacy scripts imported", "dir", cfg.Indexer.LegacyDir, "files", files)
	}

	m, err := engine.Build(ctx)
	if err != nil {
		return err
	}
	if recorder, closeFn := openRecorder(ctx, cfg); recorder != nil {
		defer closeFn()
		if err := recorder.Record(ctx, m); err != nil {
			slog.Error("failed to record build", "build_id", m.BuildID, "error", err)
		}
	}
	fmt.Println(m.BuildID)
	return nil
}

func consumeSymbols(ctx context.Context, cfg *config.Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("-consume needs kafka.brokers")
	}
	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}
	engine, err := indexer.NewEngine(cfg.Indexer.ShardDir, m)
	if err != nil {
		return err
	}

	var rec consumer.Recorder
	if recorder, closeFn := openRecorder(ctx, cfg); recorder != nil {
		defer closeFn()
		rec = recorder
	}
	builder := consumer.NewBuilder(engine, rec)
	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SymbolEvents, consumer.HandleMessage(builder))
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer consuming symbol events",
		"topic", cfg.Kafka.Topics.SymbolEvents,
		"group", cfg.Kafka.ConsumerGroup,
		"shard_dir", cfg.Indexer.ShardDir,
	)
	return indexConsumer.Start(ctx)
}

func publishSymbols(ctx context.Context, cfg *config.Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("-publish needs kafka.brokers")
	}
	if cfg.Indexer.SymbolTable == "" {
		return fmt.Errorf("-publish needs -symbols")
	}
	syms, err := readSymbols(cfg.Indexer.SymbolTable)
	if err != nil {
		return err
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SymbolEvents)
	defer producer.Close()

	// Every event of one build shares a key so they land on one partition
	// in order.
	buildID := uuid.NewString()
	batch := make([]kafka.Event, 0, publishBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := producer.PublishBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	for i := range syms {
		batch = append(batch, kafka.Event{Key: buildID, Value: consumer.SymbolEvent{BuildID: buildID, Symbol: &syms[i]}})
		if len(batch) == publishBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := producer.Publish(ctx, kafka.Event{Key: buildID, Value: consumer.SymbolEvent{BuildID: buildID, Final: true}}); err != nil {
		return err
	}
	slog.Info("symbol table published", "build_id", buildID, "symbols", len(syms), "topic", cfg.Kafka.Topics.SymbolEvents)
	fmt.Println(buildID)
	return nil
}

func printLatest(ctx context.Context, cfg *config.Config) error {
	recorder, closeFn := openRecorder(ctx, cfg)
	if recorder == nil {
		return fmt.Errorf("-latest needs postgres.host")
	}
	defer closeFn()
	m, err := recorder.Latest(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func readSymbols(path string) ([]index.Symbol, error) {
	if path == "-" {
		return indexer.ReadSymbols(os.Stdin)
	}
	return indexer.ReadSymbolFile(path)
}

// openRecorder connects to PostgreSQL when it is configured. A connection
// failure is logged and disables recording rather than failing the build.
func openRecorder(ctx context.Context, cfg *config.Config) (*manifest.Store, func()) {
	if cfg.Postgres.Host == "" {
		return nil, func() {}
	}
	client, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, build history disabled", "error", err)
		return nil, func() {}
	}
	store := manifest.NewStore(client)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("build history schema unavailable", "error", err)
		client.Close()
		return nil, func() {}
	}
	return store, func() { client.Close() }
}
