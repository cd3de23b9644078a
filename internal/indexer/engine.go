// Package indexer builds the persisted symbol index: it groups symbols by
// normalized key, partitions them into one shard per leading letter and
// writes every shard plus a build manifest.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/manifest"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
)

// Engine is the shard builder. Symbols are accumulated in memory and written
// out by Build; the engine can then be Reset and reused for the next build.
type Engine struct {
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	buildMu  sync.Mutex
}

// NewEngine creates a builder writing into shardDir. m may be nil.
func NewEngine(shardDir string, m *metrics.Metrics) (*Engine, error) {
	if shardDir == "" {
		return nil, fmt.Errorf("%w: shard directory is required", apperrors.ErrInvalidInput)
	}
	return &Engine{
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(shardDir),
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}, nil
}

// Add files one symbol. A name that normalizes to the empty key is filed
// in the catch-all shard. Symbols without a URL, or whose URL already
// carries a fragment, are rejected.
func (e *Engine) Add(sym index.Symbol) error {
	if sym.URL == "" {
		return fmt.Errorf("%w: symbol %q has no url", apperrors.ErrInvalidInput, sym.Name)
	}
	if strings.ContainsRune(sym.URL, '#') {
		return fmt.Errorf("%w: url %q of symbol %q has a fragment, use anchor", apperrors.ErrInvalidInput, sym.URL, sym.Name)
	}
	key := e.memIndex.Add(sym)
	if e.metrics != nil {
		e.metrics.SymbolsIndexedTotal.Inc()
	}
	e.logger.Debug("symbol added", "name", sym.Name, "key", key, "scope", sym.Scope)
	return nil
}

// AddAll files every valid symbol in order. Rejected symbols are skipped
// and reported together in the returned error.
func (e *Engine) AddAll(syms []index.Symbol) error {
	var errs []error
	for i, sym := range syms {
		if err := e.Add(sym); err != nil {
			e.logger.Warn("symbol skipped", "index", i, "error", err)
			errs = append(errs, fmt.Errorf("symbol %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// AddEntry merges an already grouped entry, as produced by a legacy import.
func (e *Engine) AddEntry(entry index.Entry) error {
	for _, ref := range entry.References {
		if ref.URL == "" {
			return fmt.Errorf("%w: entry %q has a reference without url", apperrors.ErrInvalidInput, entry.Key)
		}
	}
	if len(entry.References) == 0 {
		return fmt.Errorf("%w: entry %q has no references", apperrors.ErrInvalidInput, entry.Key)
	}
	e.memIndex.AddEntry(entry)
	if e.metrics != nil {
		e.metrics.SymbolsIndexedTotal.Add(float64(len(entry.References)))
	}
	return nil
}

// SymbolCount returns the number of references accumulated so far.
func (e *Engine) SymbolCount() int {
	return e.memIndex.SymbolCount()
}

// Build writes one shard file for every partition, empty ones included, and
// then the manifest. Shard files are replaced atomically one by one; the
// manifest is written last so its presence marks a complete build.
func (e *Engine) Build(ctx context.Context) (*manifest.Manifest, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	snapshot := e.memIndex.Snapshot()
	m := &manifest.Manifest{
		Format:      manifest.Format,
		SymbolCount: e.memIndex.SymbolCount(),
		KeyCount:    e.memIndex.KeyCount(),
		Shards:      make([]manifest.ShardInfo, 0, len(snapshot)),
	}
	hash := sha256.New()

	for _, id := range shard.All() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build cancelled before shard %q: %w", id, err)
		}
		s := snapshot[id]
		res, err := e.writer.Write(s)
		if err != nil {
			e.countWrite("error")
			return nil, fmt.Errorf("writing shard %q: %w", id, err)
		}
		e.countWrite("ok")
		if e.metrics != nil {
			e.metrics.ShardEntryCount.WithLabelValues(string(id)).Set(float64(res.EntryCount))
		}
		hash.Write(res.Data)
		m.Shards = append(m.Shards, manifest.ShardInfo{
			ID:         id,
			File:       res.FileName,
			Entries:    res.EntryCount,
			References: res.RefCount,
			Size:       res.Size,
			CRC32:      res.Checksum,
		})
		e.logger.Debug("shard written", "shard_id", id, "entries", res.EntryCount, "refs", res.RefCount)
	}
	m.BuildID = hex.EncodeToString(hash.Sum(nil))

	data, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	if err := e.writer.WriteFile(manifest.FileName, data); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	e.logger.Info("index built",
		"build_id", m.BuildID,
		"dir", e.writer.Dir(),
		"symbols", m.SymbolCount,
		"keys", m.KeyCount,
		"shards", len(m.Shards),
	)
	return m, nil
}

// Reset discards all accumulated symbols.
func (e *Engine) Reset() {
	e.memIndex.Reset()
}

func (e *Engine) countWrite(status string) {
	if e.metrics != nil {
		e.metrics.ShardsWrittenTotal.WithLabelValues(status).Inc()
	}
}
