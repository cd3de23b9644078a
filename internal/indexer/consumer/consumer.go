// Package consumer reads symbol events from Kafka and drives the shard
// builder. Producers stream the symbols of one build and close it with a
// final event, at which point every shard is written and the build is
// recorded.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/manifest"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
)

// SymbolEvent is one message on the symbol topic. A Final event carries no
// symbol and asks for the build to be written.
type SymbolEvent struct {
	BuildID string        `json:"build_id"`
	Symbol  *index.Symbol `json:"symbol,omitempty"`
	Final   bool          `json:"final,omitempty"`
}

// Recorder persists finished builds.
type Recorder interface {
	Record(ctx context.Context, m *manifest.Manifest) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// Builder accumulates the symbols of the build in progress.
type Builder struct {
	mu       sync.Mutex
	engine   *indexer.Engine
	recorder Recorder
	buildID  string
	logger   *slog.Logger
}

// NewBuilder creates a Builder. recorder may be nil.
func NewBuilder(engine *indexer.Engine, recorder Recorder) *Builder {
	return &Builder{
		engine:   engine,
		recorder: recorder,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Handle applies one event. Symbols tagged with a new build id abandon the
// build in progress. It returns the manifest when the event finished a build.
func (b *Builder) Handle(ctx context.Context, ev SymbolEvent) (*manifest.Manifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.BuildID != b.buildID {
		if b.engine.SymbolCount() > 0 {
			b.logger.Warn("abandoning incomplete build",
				"build_id", b.buildID,
				"next_build_id", ev.BuildID,
				"symbols", b.engine.SymbolCount(),
			)
		}
		b.engine.Reset()
		b.buildID = ev.BuildID
	}

	if ev.Symbol != nil {
		if err := b.engine.Add(*ev.Symbol); err != nil {
			return nil, fmt.Errorf("build %s: %w", ev.BuildID, err)
		}
	}
	if !ev.Final {
		return nil, nil
	}

	m, err := b.engine.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", ev.BuildID, err)
	}
	b.engine.Reset()
	b.buildID = ""
	if b.recorder != nil {
		if err := b.recorder.Record(ctx, m); err != nil {
			b.logger.Error("failed to record build", "build_id", m.BuildID, "error", err)
		}
	}
	b.logger.Info("streamed build complete", "stream_build_id", ev.BuildID, "build_id", m.BuildID)
	return m, nil
}

// HandleMessage returns a Kafka MessageHandler feeding b. Undecodable and
// invalid symbols are logged and skipped so one bad message cannot stall
// the topic.
func HandleMessage(b *Builder) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SymbolEvent](value)
		if err != nil {
			logger.Error("failed to decode symbol event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if _, err := b.Handle(ctx, event); err != nil {
			if event.Final {
				return err
			}
			logger.Error("skipping symbol", "build_id", event.BuildID, "error", err)
		}
		return nil
	}
}
