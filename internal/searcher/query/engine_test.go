package query

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/tracing"
)

const fixturePath = "../../indexer/segment/testdata/all_c.js"

// fixtureFetcher serves one native shard as "n" and nothing else.
type fixtureFetcher struct{ data []byte }

func (f fixtureFetcher) Fetch(_ context.Context, id shard.ID) ([]byte, error) {
	if id != "n" {
		return nil, apperrors.ErrShardNotFound
	}
	return f.data, nil
}

func newFixtureEngine(t *testing.T, maxResults int) *Engine {
	t.Helper()
	data, err := os.ReadFile(fixturePath)
	require.NoError(t, err)
	// Doxygen numbers its script files, so all_c.js holds the "n" keys.
	entries, err := segment.DecodeSearchData(data)
	require.NoError(t, err)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	payload, err := segment.Encode(&index.Shard{ID: "n", Entries: entries})
	require.NoError(t, err)
	s := store.New(fixtureFetcher{data: payload}, segment.Decode, store.Options{})
	return NewEngine(s, maxResults, nil)
}

func groupKeys(r Result) []string {
	out := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		out = append(out, g.Key)
	}
	return out
}

func TestSearchPrefix(t *testing.T) {
	e := newFixtureEngine(t, 50)

	r, err := e.Search(context.Background(), "nex", 0)
	require.NoError(t, err)
	assert.Equal(t, "nex", r.Normalized)
	assert.Equal(t, shard.ID("n"), r.Shard)
	assert.Equal(t, []string{"next", "nextchild", "nextuint", "nextvec2"}, groupKeys(r))
	assert.Equal(t, 22, r.Total)
	assert.False(t, r.Truncated)
	assert.False(t, r.Degraded)
	assert.False(t, r.Idle)

	next := r.Groups[0]
	assert.Equal(t, "Next", next.DisplayName)
	labels := make([]string, 0, len(next.References))
	for _, ref := range next.References {
		labels = append(labels, ref.Label)
	}
	assert.Equal(t, []string{
		"PSSMLTPrimarySamplerImpl::Next()",
		"RandomSampler::Next()",
		"RewindableSamplerImpl::Next()",
		"StratifiedSampler::Next()",
		"Random::Next()",
		"Sampler::Next()",
	}, labels)
}

func TestSearchNarrowing(t *testing.T) {
	e := newFixtureEngine(t, 50)

	r, err := e.Search(context.Background(), "NextU", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"nextuint"}, groupKeys(r))
	assert.Len(t, r.Groups[0].References, 8)
}

func TestSearchExactMatchFirst(t *testing.T) {
	e := newFixtureEngine(t, 50)

	r, err := e.Search(context.Background(), "next", 0)
	require.NoError(t, err)
	require.NotEmpty(t, r.Groups)
	assert.Equal(t, "next", r.Groups[0].Key)
}

func TestSearchMergesUnrelatedScopes(t *testing.T) {
	e := newFixtureEngine(t, 50)

	r, err := e.Search(context.Background(), "num_samples", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"numsamples"}, groupKeys(r))
	scopes := []string{}
	for _, ref := range r.Groups[0].References {
		scopes = append(scopes, ref.Scope)
	}
	assert.Equal(t, []string{
		"MPIRenderProcessScheduler",
		"MTRenderProcessScheduler",
		"SamplingBasedRenderProcessScheduler",
	}, scopes)
}

func TestSearchPrefixMonotonic(t *testing.T) {
	e := newFixtureEngine(t, 0)
	full := "nextchild"
	prev := -1
	for i := len(full); i >= 1; i-- {
		r, err := e.Search(context.Background(), full[:i], 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Total, prev, "prefix %q", full[:i])
		prev = r.Total
	}
}

func TestSearchTruncates(t *testing.T) {
	e := newFixtureEngine(t, 10)

	r, err := e.Search(context.Background(), "nex", 0)
	require.NoError(t, err)
	assert.True(t, r.Truncated)
	assert.Equal(t, 22, r.Total)
	assert.Equal(t, 10, r.ReferenceCount())
	assert.Equal(t, []string{"next", "nextchild", "nextuint"}, groupKeys(r))

	r, err = e.Search(context.Background(), "nex", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, r.ReferenceCount())

	r, err = e.Search(context.Background(), "nex", 500)
	require.NoError(t, err)
	assert.Equal(t, 10, r.ReferenceCount(), "limit is capped at the maximum")
}

func TestSearchIdle(t *testing.T) {
	e := newFixtureEngine(t, 50)
	for _, raw := range []string{"", "   ", "::", "-_-"} {
		r, err := e.Search(context.Background(), raw, 0)
		require.NoError(t, err)
		assert.True(t, r.Idle, "%q", raw)
		assert.Empty(t, r.Groups)
		assert.Empty(t, r.Shard)
	}
}

func TestSearchDegraded(t *testing.T) {
	e := newFixtureEngine(t, 50)

	r, err := e.Search(context.Background(), "zeta", 0)
	require.NoError(t, err)
	assert.True(t, r.Degraded)
	assert.Equal(t, shard.ID("z"), r.Shard)
	assert.Empty(t, r.Groups)
	assert.NotNil(t, r.Groups)
}

func TestSearchNoMatch(t *testing.T) {
	e := newFixtureEngine(t, 50)

	r, err := e.Search(context.Background(), "nz", 0)
	require.NoError(t, err)
	assert.False(t, r.Degraded)
	assert.Empty(t, r.Groups)
	assert.Zero(t, r.Total)
}

func TestSearchRecordsSpans(t *testing.T) {
	e := newFixtureEngine(t, 50)
	ctx, root := tracing.StartSpan(context.Background(), "search", "req-7")

	_, err := e.Search(ctx, "nextuint", 0)
	require.NoError(t, err)
	_, err = e.Search(ctx, "nextuint", 0)
	require.NoError(t, err)

	children := root.Children()
	require.Len(t, children, 4)
	assert.Equal(t, "shard.load", children[0].Name)
	status, _ := children[0].Attr("status")
	assert.Equal(t, "loaded", status)
	status, _ = children[2].Attr("status")
	assert.Equal(t, "cached", status)
	total, _ := children[3].Attr("total")
	assert.Equal(t, 8, total)
}
