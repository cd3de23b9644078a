package segment

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/all_c.js")
	require.NoError(t, err)
	return data
}

func entryByKey(t *testing.T, entries []index.Entry, key string) index.Entry {
	t.Helper()
	for _, e := range entries {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("no entry for key %q", key)
	return index.Entry{}
}

func TestDecodeSearchData(t *testing.T) {
	entries, err := DecodeSearchData(loadFixture(t))
	require.NoError(t, err)
	require.Len(t, entries, 15)
	assert.Equal(t, "naivephotonmap", entries[0].Key)
	assert.Equal(t, "numvertices", entries[14].Key)

	next := entryByKey(t, entries, "next")
	assert.Equal(t, "Next", next.DisplayName)
	labels := make([]string, 0, len(next.References))
	for _, r := range next.References {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{
		"PSSMLTPrimarySamplerImpl::Next()",
		"RandomSampler::Next()",
		"RewindableSamplerImpl::Next()",
		"StratifiedSampler::Next()",
		"Random::Next()",
		"Sampler::Next()",
	}, labels)
	assert.Equal(t, index.Reference{
		Label:  "Random::Next()",
		URL:    "../class_random.html",
		Anchor: "a762ff9ae43e2057e034d3ebe0203697e",
		Scope:  "Random",
	}, next.References[4])

	assert.Len(t, entryByKey(t, entries, "nextuint").References, 8)
	assert.Len(t, entryByKey(t, entries, "numsamples").References, 3)
}

func TestDecodeSearchDataLabels(t *testing.T) {
	entries, err := DecodeSearchData(loadFixture(t))
	require.NoError(t, err)

	// Free-standing symbol: label is the display name, no scope.
	naive := entryByKey(t, entries, "naivephotonmap").References[0]
	assert.Equal(t, "NaivePhotonMap", naive.Label)
	assert.Empty(t, naive.Scope)
	assert.Equal(t, "../class_naive_photon_map.html", naive.URL)
	assert.Empty(t, naive.Anchor)

	// Bare type name: label is built from it.
	name := entryByKey(t, entries, "name").References[0]
	assert.Equal(t, "ConfigNode::Name", name.Label)
	assert.Equal(t, "ConfigNode", name.Scope)

	// Signature labels are trimmed, entity-decoded, and scoped by the part
	// before the argument list.
	child := entryByKey(t, entries, "nextchild").References
	require.Len(t, child, 2)
	assert.Equal(t, "ConfigNode::NextChild() const", child[0].Label)
	assert.Equal(t, "ConfigNode::NextChild(const std::string &name) const", child[1].Label)
	assert.Equal(t, "ConfigNode", child[1].Scope)
}

func TestDecodeSearchDataFlattenedReference(t *testing.T) {
	src := `var searchData=
[
  ['random',['Random','../class_random.html#a1',1,'Random::Random()']],
  ['vec2',['Vec2','../struct_vec2.html',1,'']]
];`
	entries, err := DecodeSearchData([]byte(src))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []index.Reference{{
		Label: "Random::Random()", URL: "../class_random.html", Anchor: "a1", Scope: "Random",
	}}, entries[0].References)
	assert.Equal(t, "Vec2", entries[1].References[0].Label)
}

func TestDecodeSearchDataMergesCollidingKeys(t *testing.T) {
	src := `var searchData=[
  ['_5fsize',['_size',['../a.html#x',1,'A']]],
  ['size',['Size',['../b.html#y',1,'B::Size()']]]
];`
	entries, err := DecodeSearchData([]byte(src))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "size", entries[0].Key)
	assert.Equal(t, "_size", entries[0].DisplayName)
	require.Len(t, entries[0].References, 2)
	assert.Equal(t, "A::_size", entries[0].References[0].Label)
	assert.Equal(t, "B::Size()", entries[0].References[1].Label)
}

func TestDecodeSearchDataEscapes(t *testing.T) {
	src := `var searchData=[['operator',['operator\'s',['../a.html',1,'A&lt;T&gt;::operator\'s()']]]];`
	entries, err := DecodeSearchData([]byte(src))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "operators", entries[0].Key)
	assert.Equal(t, "A<T>::operator's()", entries[0].References[0].Label)
	assert.Equal(t, "A<T>", entries[0].References[0].Scope)
}

func TestDecodeSearchDataRejectsGarbage(t *testing.T) {
	_, err := DecodeSearchData([]byte("not a script"))
	assert.ErrorIs(t, err, apperrors.ErrShardCorrupt)

	_, err = DecodeSearchData([]byte("var searchData=[['next',['Next;"))
	assert.ErrorIs(t, err, apperrors.ErrShardCorrupt)

	_, err = DecodeSearchData([]byte("var searchData=[['next',[42,['../a.html',1,'']]]];"))
	assert.ErrorIs(t, err, apperrors.ErrShardSchema)
}
