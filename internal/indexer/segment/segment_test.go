package segment

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
)

func sampleShard() *index.Shard {
	return &index.Shard{
		ID: "n",
		Entries: []index.Entry{
			{Key: "name", DisplayName: "Name", References: []index.Reference{
				{Label: "ConfigNode::Name", URL: "../class_config_node.html", Anchor: "a631f", Scope: "ConfigNode"},
			}},
			{Key: "next", DisplayName: "Next", References: []index.Reference{
				{Label: "Random::Next()", URL: "../class_random.html", Anchor: "a762f", Scope: "Random"},
				{Label: "Sampler::Next()", URL: "../class_sampler.html", Anchor: "a9209", Scope: "Sampler"},
			}},
			{Key: "nextuint", DisplayName: "NextUInt", References: []index.Reference{
				{Label: "NextUInt", URL: "../free_functions.html"},
			}},
		},
	}
}

// frame wraps a msgpack body in a valid header.
func frame(t *testing.T, body any, entries, refs uint32) []byte {
	t.Helper()
	b, err := msgpack.Marshal(body)
	require.NoError(t, err)
	h := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		EntryCount: entries,
		RefCount:   refs,
		BodySize:   uint64(len(b)),
		Checksum:   crc32.ChecksumIEEE(b),
	}
	return append(h.marshal(), b...)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleShard()
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode("n", data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := Encode(sampleShard())
	require.NoError(t, err)
	b, err := Encode(sampleShard())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func TestEncodeEmptyShard(t *testing.T) {
	data, err := Encode(index.EmptyShard("q"))
	require.NoError(t, err)
	out, err := Decode("q", data)
	require.NoError(t, err)
	assert.Empty(t, out.Entries)
	assert.Equal(t, shard.ID("q"), out.ID)
}

func TestDecodeRejectsCorruptFraming(t *testing.T) {
	good, err := Encode(sampleShard())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated header", func(b []byte) []byte { return b[:HeaderSize-1] }},
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xff; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-1] }},
		{"flipped body byte", func(b []byte) []byte { b[len(b)-2] ^= 0x01; return b }},
		{"wrong entry count", func(b []byte) []byte { b[8]++; return b }},
		{"empty file", func(b []byte) []byte { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := Decode("n", data)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrShardCorrupt)
		})
	}
}

func TestDecodeRejectsSchemaViolations(t *testing.T) {
	ref := []string{"Random::Next()", "../class_random.html#a1"}
	tests := []struct {
		name    string
		id      shard.ID
		entries []any
		refs    uint32
	}{
		{"wrong shard id", "m", []any{[]any{"next", "Next", []any{ref}}}, 1},
		{"wrong partition", "n", []any{[]any{"random", "Random", []any{ref}}}, 1},
		{"unsorted keys", "n", []any{
			[]any{"next", "Next", []any{ref}},
			[]any{"name", "Name", []any{ref}},
		}, 2},
		{"duplicate keys", "n", []any{
			[]any{"next", "Next", []any{ref}},
			[]any{"next", "Next", []any{ref}},
		}, 2},
		{"unnormalized key", "n", []any{[]any{"Next", "Next", []any{ref}}}, 1},
		{"no references", "n", []any{[]any{"next", "Next", []any{}}}, 0},
		{"short reference", "n", []any{[]any{"next", "Next", []any{[]string{"only label"}}}}, 1},
		{"long reference", "n", []any{[]any{"next", "Next", []any{[]string{"a", "b", "c", "d"}}}}, 1},
		{"numeric label", "n", []any{[]any{"next", "Next", []any{[]any{1, "../x.html"}}}}, 1},
		{"empty link", "n", []any{[]any{"next", "Next", []any{[]string{"Next", ""}}}}, 1},
		{"entry not an array", "n", []any{"next"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := frame(t, wireShard{Name: bodyName, ID: "n", Entries: tt.entries}, uint32(len(tt.entries)), tt.refs)
			_, err := Decode(tt.id, data)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrShardSchema)
		})
	}
}

func TestDecodeRejectsForeignBody(t *testing.T) {
	data := frame(t, wireShard{Name: "indexSectionsWithContent", ID: "n"}, 0, 0)
	_, err := Decode("n", data)
	assert.ErrorIs(t, err, apperrors.ErrShardSchema)
}

func TestDecodeAcceptsSingleReferenceShape(t *testing.T) {
	entries := []any{
		[]any{"name", "Name", []string{"ConfigNode::Name", "../class_config_node.html#a631f", "ConfigNode"}},
		[]any{"next", "Next", []any{
			[]string{"Random::Next()", "../class_random.html#a762f"},
			[]string{"Sampler::Next()", "../class_sampler.html#a9209"},
		}},
	}
	data := frame(t, wireShard{Name: bodyName, ID: "n", Entries: entries}, 2, 3)

	s, err := Decode("n", data)
	require.NoError(t, err)
	require.Len(t, s.Entries, 2)

	name := s.Entries[0]
	require.Len(t, name.References, 1)
	assert.Equal(t, index.Reference{
		Label: "ConfigNode::Name", URL: "../class_config_node.html", Anchor: "a631f", Scope: "ConfigNode",
	}, name.References[0])

	next := s.Entries[1]
	require.Len(t, next.References, 2)
	assert.Equal(t, "Random::Next()", next.References[0].Label)
	assert.Equal(t, "Sampler::Next()", next.References[1].Label)
}

func TestDecodeKeepsAnchorVerbatim(t *testing.T) {
	entries := []any{
		[]any{"next", "Next", []any{[]string{"Next", "../page.html#sec#2"}}},
	}
	s, err := Decode("n", frame(t, wireShard{Name: bodyName, ID: "n", Entries: entries}, 1, 1))
	require.NoError(t, err)
	ref := s.Entries[0].References[0]
	assert.Equal(t, "../page.html", ref.URL)
	assert.Equal(t, "sec#2", ref.Anchor)
	assert.Equal(t, "../page.html#sec#2", ref.Link())
}

func TestWriterWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	res, err := w.Write(sampleShard())
	require.NoError(t, err)
	assert.Equal(t, "all_n.shard", res.FileName)
	assert.Equal(t, 3, res.EntryCount)
	assert.Equal(t, 4, res.RefCount)
	assert.Equal(t, int64(len(res.Data)), res.Size)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1, "temporary file left behind")

	s, err := ReadFile(dir, "n")
	require.NoError(t, err)
	assert.Equal(t, sampleShard(), s)

	onDisk, err := os.ReadFile(filepath.Join(dir, res.FileName))
	require.NoError(t, err)
	assert.Equal(t, res.Data, onDisk)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(t.TempDir(), "z")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
