// Package query turns typed text into ranked documentation destinations.
// Engine answers one query at a time; Session drives an engine from a
// stream of keystrokes.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/tracing"
)

// ShardSource is the part of store.Store the engine uses.
type ShardSource interface {
	Load(ctx context.Context, id shard.ID) (store.Loaded, error)
	Cached(id shard.ID) (store.Loaded, bool)
	Prefetch(id shard.ID)
}

// Result is the answer to one query. Idle means the normalized query was
// empty and no shard was consulted. Degraded means the shard could not be
// loaded and Groups is empty for that reason.
type Result struct {
	Seq        uint64         `json:"seq,omitempty"`
	Query      string         `json:"query"`
	Normalized string         `json:"normalized"`
	Shard      shard.ID       `json:"shard,omitempty"`
	Groups     []merger.Group `json:"groups"`
	Total      int            `json:"total"`
	Truncated  bool           `json:"truncated"`
	Degraded   bool           `json:"degraded"`
	Idle       bool           `json:"idle"`
}

// ReferenceCount is the number of references actually returned.
func (r Result) ReferenceCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.References)
	}
	return n
}

type Engine struct {
	source     ShardSource
	maxResults int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEngine creates an engine. maxResults caps every query; a non-positive
// value means no cap. m may be nil.
func NewEngine(source ShardSource, maxResults int, m *metrics.Metrics) *Engine {
	return &Engine{
		source:     source,
		maxResults: maxResults,
		metrics:    m,
		logger:     slog.Default().With("component", "query-engine"),
	}
}

// Search answers raw, loading its shard if needed. The only error is ctx's,
// returned when the caller stops waiting for a shard load.
func (e *Engine) Search(ctx context.Context, raw string, limit int) (Result, error) {
	start := time.Now()
	q := normalizer.Normalize(raw)
	if q == "" {
		r := idle(raw)
		e.observe(r, "none", start)
		return r, nil
	}

	id := shard.For(q)
	loadCtx, span := tracing.StartChildSpan(ctx, "shard.load")
	span.SetAttr("shard_id", string(id))
	status := "loaded"
	loaded, ok := e.source.Cached(id)
	if ok {
		status = "cached"
	} else {
		var err error
		loaded, err = e.source.Load(loadCtx, id)
		if err != nil {
			span.SetAttr("error", err.Error())
			span.End()
			return Result{}, err
		}
	}
	span.SetAttr("status", status)
	span.End()

	_, span = tracing.StartChildSpan(ctx, "evaluate")
	r := e.Evaluate(raw, loaded, limit)
	span.SetAttr("total", r.Total)
	span.End()
	e.observe(r, status, start)
	return r, nil
}

// Evaluate answers raw against an already loaded shard. It does not check
// that loaded is the shard raw selects; callers pass shard.For of the
// normalized query.
func (e *Engine) Evaluate(raw string, loaded store.Loaded, limit int) Result {
	q := normalizer.Normalize(raw)
	if q == "" {
		return idle(raw)
	}
	r := Result{
		Query:      raw,
		Normalized: q,
		Shard:      shard.For(q),
		Groups:     []merger.Group{},
	}
	if loaded.Degraded || loaded.Shard == nil {
		r.Degraded = true
		return r
	}
	ranked := ranker.Rank(executor.Match(loaded.Shard, q), q)
	r.Groups, r.Total, r.Truncated = merger.Truncate(ranked, e.effectiveLimit(limit))
	return r
}

func (e *Engine) effectiveLimit(limit int) int {
	if limit <= 0 || (e.maxResults > 0 && limit > e.maxResults) {
		return e.maxResults
	}
	return limit
}

func (e *Engine) observe(r Result, shardStatus string, start time.Time) {
	outcome := "hit"
	switch {
	case r.Idle:
		outcome = "idle"
	case r.Degraded:
		outcome, shardStatus = "degraded", "degraded"
	case r.Total == 0:
		outcome = "zero_result"
	}
	e.metrics.ObserveQuery(outcome, shardStatus, r.ReferenceCount(), r.Truncated, time.Since(start))
	e.logger.Debug("query evaluated",
		"query", r.Query,
		"normalized", r.Normalized,
		"shard_id", r.Shard,
		"outcome", outcome,
		"groups", len(r.Groups),
		"total", r.Total,
		"truncated", r.Truncated,
	)
}

func idle(raw string) Result {
	return Result{Query: raw, Groups: []merger.Group{}, Idle: true}
}
