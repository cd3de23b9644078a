package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
)

type staticSource struct {
	shards map[shard.ID]*index.Shard
}

func (s staticSource) Load(_ context.Context, id shard.ID) (store.Loaded, error) {
	if sh, ok := s.shards[id]; ok {
		return store.Loaded{Shard: sh}, nil
	}
	return store.Loaded{Shard: index.EmptyShard(id), Degraded: true}, nil
}

func (s staticSource) Cached(shard.ID) (store.Loaded, bool) { return store.Loaded{}, false }
func (s staticSource) Prefetch(shard.ID)                    {}

type fixedStats struct{}

func (fixedStats) Stats() store.Stats {
	return store.Stats{Cached: []shard.ID{"n", "z"}, Degraded: []shard.ID{"z"}, Entries: 2, Fetches: 2}
}

type fakeCache struct {
	invalidated int
	err         error
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidated++
	return c.err
}

func (c *fakeCache) Stats() (int64, int64) { return 3, 1 }

type memTracker struct {
	mu     sync.Mutex
	events []analytics.QueryEvent
}

func (m *memTracker) Track(ev analytics.QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func newTestHandler(cache ShardCache, tracker Tracker) *Handler {
	n := &index.Shard{ID: "n", Entries: []index.Entry{
		{Key: "next", DisplayName: "Next", References: []index.Reference{
			{Label: "Random::Next()", URL: "../class_random.html", Anchor: "a76", Scope: "Random"},
			{Label: "Sampler::Next()", URL: "../class_sampler.html", Anchor: "a92", Scope: "Sampler"},
		}},
		{Key: "nextuint", DisplayName: "NextUInt", References: []index.Reference{
			{Label: "Random::NextUInt()", URL: "../class_random.html", Anchor: "ab2", Scope: "Random"},
		}},
	}}
	engine := query.NewEngine(staticSource{shards: map[shard.ID]*index.Shard{"n": n}}, 50, nil)
	return New(engine, fixedStats{}, cache, tracker, 50)
}

func get(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearch(t *testing.T) {
	tracker := &memTracker{}
	h := newTestHandler(nil, tracker)

	rec := get(t, h.Search, "/api/v1/search?q=Next")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Next", body["query"])
	assert.Equal(t, "next", body["normalized"])
	assert.Equal(t, "n", body["shard"])
	assert.Equal(t, false, body["truncated"])
	assert.Equal(t, false, body["degraded"])
	groups := body["groups"].([]any)
	require.Len(t, groups, 2)
	first := groups[0].(map[string]any)
	assert.Equal(t, "next", first["key"])
	assert.Equal(t, "Next", first["display_name"])
	refs := first["references"].([]any)
	require.Len(t, refs, 2)
	assert.Equal(t, map[string]any{
		"label": "Random::Next()", "url": "../class_random.html", "anchor": "a76", "scope": "Random",
	}, refs[0])

	require.Len(t, tracker.events, 1)
	assert.Equal(t, analytics.SourceHTTP, tracker.events[0].Source)
	assert.Equal(t, 3, tracker.events[0].Total)
}

func TestSearchLimit(t *testing.T) {
	h := newTestHandler(nil, nil)

	rec := get(t, h.Search, "/api/v1/search?q=nex&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var r query.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.True(t, r.Truncated)
	assert.Equal(t, 1, r.ReferenceCount())
	assert.Equal(t, 3, r.Total)

	for _, bad := range []string{"0", "-1", "x"} {
		rec := get(t, h.Search, "/api/v1/search?q=nex&limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestSearchIdleAndMissingQuery(t *testing.T) {
	tracker := &memTracker{}
	h := newTestHandler(nil, tracker)

	rec := get(t, h.Search, "/api/v1/search?q=")
	require.Equal(t, http.StatusOK, rec.Code)
	var r query.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.True(t, r.Idle)
	assert.Empty(t, tracker.events)

	rec = get(t, h.Search, "/api/v1/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchDegraded(t *testing.T) {
	h := newTestHandler(nil, nil)

	rec := get(t, h.Search, "/api/v1/search?q=zeta")
	require.Equal(t, http.StatusOK, rec.Code)
	var r query.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.True(t, r.Degraded)
	assert.Empty(t, r.Groups)
}

func TestShards(t *testing.T) {
	h := newTestHandler(nil, nil)
	rec := get(t, h.Shards, "/api/v1/shards")
	require.Equal(t, http.StatusOK, rec.Code)
	var st store.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, []shard.ID{"z"}, st.Degraded)
}

func TestCacheEndpoints(t *testing.T) {
	h := newTestHandler(nil, nil)
	rec := get(t, h.CacheStats, "/api/v1/cache/stats")
	assert.Contains(t, rec.Body.String(), "disabled")
	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	cache := &fakeCache{}
	h = newTestHandler(cache, nil)
	rec = get(t, h.CacheStats, "/api/v1/cache/stats")
	assert.Contains(t, rec.Body.String(), `"hit_rate":"75.0%"`)

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cache.invalidated)

	cache.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
