// Package store is the run-time shard cache. Shards are loaded lazily on
// first use, published once and kept for the life of the process.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/resilience"
)

const defaultLoadTimeout = 2 * time.Second

// Loaded is a published shard. A degraded shard is empty and stands in for
// one that could not be fetched or decoded.
type Loaded struct {
	Shard    *index.Shard
	Degraded bool
}

// Options configures a Store.
type Options struct {
	LoadTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Store loads shards on demand. Concurrent loads of the same id share one
// fetch, and every id is published exactly once; failures are published as
// degraded empty shards rather than returned.
type Store struct {
	fetcher Fetcher
	decode  Decoder
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	shards map[shard.ID]Loaded
	group  singleflight.Group

	fetches atomic.Int64
}

func New(fetcher Fetcher, decode Decoder, opts Options) *Store {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	return &Store{
		fetcher: fetcher,
		decode:  decode,
		timeout: opts.LoadTimeout,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "shard-store"),
		shards:  make(map[shard.ID]Loaded),
	}
}

// Cached returns the published shard for id without loading it.
func (s *Store) Cached(id shard.ID) (Loaded, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.shards[id]
	return l, ok
}

// Load returns the shard for id, fetching it on first use. The only error is
// ctx's own: if the caller gives up while waiting, the load carries on in
// the background and is still published.
func (s *Store) Load(ctx context.Context, id shard.ID) (Loaded, error) {
	if l, ok := s.Cached(id); ok {
		return l, nil
	}
	if !shard.Valid(id) {
		s.logger.Warn("refusing to load unknown shard id", "shard_id", id)
		return Loaded{Shard: index.EmptyShard(id), Degraded: true}, nil
	}

	ch := s.group.DoChan(string(id), func() (any, error) {
		// A load that finished between Cached and DoChan has already been
		// published; do not fetch again.
		if l, ok := s.Cached(id); ok {
			return l, nil
		}
		return s.publish(id, s.fetchAndDecode(id)), nil
	})
	select {
	case r := <-ch:
		return r.Val.(Loaded), nil
	case <-ctx.Done():
		return Loaded{}, ctx.Err()
	}
}

// Prefetch starts loading id in the background if it is not cached yet.
func (s *Store) Prefetch(id shard.ID) {
	if _, ok := s.Cached(id); ok || !shard.Valid(id) {
		return
	}
	go func() {
		if _, err := s.Load(context.Background(), id); err != nil {
			s.logger.Debug("prefetch failed", "shard_id", id, "error", err)
		}
	}()
}

// Stats describes the store's contents.
type Stats struct {
	Cached   []shard.ID `json:"cached"`
	Degraded []shard.ID `json:"degraded"`
	Entries  int        `json:"entries"`
	Fetches  int64      `json:"fetches"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Cached:   make([]shard.ID, 0, len(s.shards)),
		Degraded: []shard.ID{},
		Fetches:  s.fetches.Load(),
	}
	for id, l := range s.shards {
		st.Cached = append(st.Cached, id)
		if l.Degraded {
			st.Degraded = append(st.Degraded, id)
		}
		st.Entries += len(l.Shard.Entries)
	}
	sort.Slice(st.Cached, func(i, j int) bool { return st.Cached[i] < st.Cached[j] })
	sort.Slice(st.Degraded, func(i, j int) bool { return st.Degraded[i] < st.Degraded[j] })
	return st
}

// Fetches is the number of fetches issued so far.
func (s *Store) Fetches() int64 {
	return s.fetches.Load()
}

func (s *Store) publish(id shard.ID, l Loaded) Loaded {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.shards[id]; ok {
		return existing
	}
	s.shards[id] = l
	s.metrics.SetShardsCached(len(s.shards))
	return l
}

// fetchAndDecode never fails: errors become a degraded empty shard. It runs
// detached from any caller so an abandoned wait cannot cancel it.
func (s *Store) fetchAndDecode(id shard.ID) Loaded {
	start := time.Now()
	s.fetches.Add(1)

	sh, err := resilience.WithTimeout(context.Background(), s.timeout, "load shard "+string(id),
		func(ctx context.Context) (*index.Shard, error) {
			data, err := s.fetcher.Fetch(ctx, id)
			if err != nil {
				return nil, err
			}
			return s.decode(id, data)
		})
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", apperrors.ErrShardTimeout, err)
	}
	if err != nil {
		loadErr := &apperrors.LoadError{ShardID: string(id), Err: err}
		s.metrics.ObserveShardLoad(loadErr.Reason(), time.Since(start))
		s.logger.Warn("shard degraded", "shard_id", id, "reason", loadErr.Reason(), "error", loadErr)
		return Loaded{Shard: index.EmptyShard(id), Degraded: true}
	}

	s.metrics.ObserveShardLoad("ok", time.Since(start))
	s.logger.Info("shard loaded",
		"shard_id", id,
		"entries", len(sh.Entries),
		"refs", sh.ReferenceCount(),
		"duration", time.Since(start).Round(time.Microsecond),
	)
	return Loaded{Shard: sh}
}
