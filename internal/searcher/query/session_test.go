package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
)

// fakeSource is an in-memory ShardSource. Loads of ids in block wait for the
// channel to close and ignore the caller's context.
type fakeSource struct {
	mu         sync.Mutex
	shards     map[shard.ID]*index.Shard
	cached     map[shard.ID]store.Loaded
	loads      map[shard.ID]int
	block      map[shard.ID]chan struct{}
	prefetched []shard.ID
}

func newFakeSource(shards ...*index.Shard) *fakeSource {
	f := &fakeSource{
		shards: map[shard.ID]*index.Shard{},
		cached: map[shard.ID]store.Loaded{},
		loads:  map[shard.ID]int{},
		block:  map[shard.ID]chan struct{}{},
	}
	for _, s := range shards {
		f.shards[s.ID] = s
	}
	return f
}

func (f *fakeSource) Load(_ context.Context, id shard.ID) (store.Loaded, error) {
	f.mu.Lock()
	f.loads[id]++
	ch := f.block[id]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.cached[id]; ok {
		return l, nil
	}
	l := store.Loaded{Shard: index.EmptyShard(id), Degraded: true}
	if s, ok := f.shards[id]; ok {
		l = store.Loaded{Shard: s}
	}
	f.cached[id] = l
	return l, nil
}

func (f *fakeSource) Cached(id shard.ID) (store.Loaded, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.cached[id]
	return l, ok
}

func (f *fakeSource) Prefetch(id shard.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetched = append(f.prefetched, id)
}

func (f *fakeSource) loadCount(id shard.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[id]
}

func testShard(id shard.ID, keys ...string) *index.Shard {
	s := &index.Shard{ID: id}
	for _, k := range keys {
		s.Entries = append(s.Entries, index.Entry{
			Key: k, DisplayName: k, References: []index.Reference{{Label: k, URL: "../" + k + ".html"}},
		})
	}
	return s
}

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) Present(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func (r *recorder) seqs() []uint64 {
	var out []uint64
	for _, res := range r.snapshot() {
		out = append(out, res.Seq)
	}
	return out
}

func startSession(t *testing.T, src ShardSource, cfg SessionConfig) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := NewSession(NewEngine(src, 50, nil), rec, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	return s, rec
}

const wait = 2 * time.Second

func TestSessionSequenceNumbers(t *testing.T) {
	s, _ := startSession(t, newFakeSource(), SessionConfig{})
	assert.Equal(t, uint64(1), s.Type("a"))
	assert.Equal(t, uint64(2), s.Type("ab"))
	assert.Equal(t, uint64(3), s.Type(""))
}

func TestSessionIdleIsImmediate(t *testing.T) {
	src := newFakeSource()
	s, rec := startSession(t, src, SessionConfig{Debounce: time.Hour})

	seq := s.Type("  ")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, wait, time.Millisecond)
	r := rec.snapshot()[0]
	assert.Equal(t, seq, r.Seq)
	assert.True(t, r.Idle)
	assert.Zero(t, src.loadCount(shard.CatchAll))
}

func TestSessionCachedShardSkipsDebounce(t *testing.T) {
	src := newFakeSource(testShard("n", "next", "node"))
	_, err := src.Load(context.Background(), "n")
	require.NoError(t, err)

	s, rec := startSession(t, src, SessionConfig{Debounce: time.Hour})
	seq := s.Type("no")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, wait, time.Millisecond)
	r := rec.snapshot()[0]
	assert.Equal(t, seq, r.Seq)
	assert.Equal(t, []string{"node"}, groupKeys(r))
	assert.Equal(t, 1, src.loadCount("n"))
}

func TestSessionDebounceCoalescesLoads(t *testing.T) {
	src := newFakeSource(testShard("n", "next", "nextuint"))
	s, rec := startSession(t, src, SessionConfig{Debounce: 100 * time.Millisecond})

	s.Type("n")
	s.Type("ne")
	last := s.Type("nex")

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, wait, time.Millisecond)
	assert.Equal(t, []uint64{last}, rec.seqs())
	assert.Equal(t, []string{"next", "nextuint"}, groupKeys(rec.snapshot()[0]))
	assert.Equal(t, 1, src.loadCount("n"))
}

func TestSessionLastWriteWins(t *testing.T) {
	src := newFakeSource(testShard("n", "next"), testShard("m", "mesh"))
	release := make(chan struct{})
	src.block["n"] = release
	s, rec := startSession(t, src, SessionConfig{})

	s.Type("next")
	require.Eventually(t, func() bool { return src.loadCount("n") == 1 }, wait, time.Millisecond)

	second := s.Type("mesh")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, wait, time.Millisecond)
	assert.Equal(t, []uint64{second}, rec.seqs())

	// The first load finishes late; its result must never be presented.
	close(release)
	require.Eventually(t, func() bool {
		_, ok := src.Cached("n")
		return ok
	}, wait, time.Millisecond)
	third := s.Type("")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, wait, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []uint64{second, third}, rec.seqs())
}

func TestSessionDegradedShard(t *testing.T) {
	src := newFakeSource()
	s, rec := startSession(t, src, SessionConfig{})

	s.Type("zeta")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, wait, time.Millisecond)
	r := rec.snapshot()[0]
	assert.True(t, r.Degraded)
	assert.Empty(t, r.Groups)
}

func TestSessionPrefetchesAdjacentShards(t *testing.T) {
	src := newFakeSource(testShard("n", "next"))
	s, rec := startSession(t, src, SessionConfig{PrefetchAdjacent: true})

	s.Type("next")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, wait, time.Millisecond)
	assert.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.prefetched) == 2
	}, wait, time.Millisecond)
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, []shard.ID{"m", "o"}, src.prefetched)
}

// ctxSource wraps fakeSource and keeps the context of every load.
type ctxSource struct {
	*fakeSource
	mu   sync.Mutex
	ctxs []context.Context
}

func (c *ctxSource) Load(ctx context.Context, id shard.ID) (store.Loaded, error) {
	c.mu.Lock()
	c.ctxs = append(c.ctxs, ctx)
	c.mu.Unlock()
	return c.fakeSource.Load(ctx, id)
}

func (c *ctxSource) loadContexts() []context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]context.Context(nil), c.ctxs...)
}

func TestSessionReleasesDeliveredLoadContext(t *testing.T) {
	src := &ctxSource{fakeSource: newFakeSource(testShard("n", "next"))}
	s, rec := startSession(t, src, SessionConfig{})

	s.Type("nex")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, wait, time.Millisecond)

	ctxs := src.loadContexts()
	require.Len(t, ctxs, 1)
	assert.Eventually(t, func() bool { return ctxs[0].Err() != nil }, wait, time.Millisecond,
		"the load context is cancelled once its result is delivered")
}
