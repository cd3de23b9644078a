package ipc

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
)

type staticSource map[shard.ID]*index.Shard

func (s staticSource) Load(_ context.Context, id shard.ID) (store.Loaded, error) {
	if sh, ok := s[id]; ok {
		return store.Loaded{Shard: sh}, nil
	}
	return store.Loaded{Shard: index.EmptyShard(id), Degraded: true}, nil
}

func (s staticSource) Cached(shard.ID) (store.Loaded, bool) { return store.Loaded{}, false }
func (s staticSource) Prefetch(shard.ID)                    {}

func testEngine() *query.Engine {
	n := &index.Shard{ID: "n", Entries: []index.Entry{
		{Key: "next", DisplayName: "Next", References: []index.Reference{
			{Label: "Random::Next()", URL: "../class_random.html", Anchor: "a76", Scope: "Random"},
		}},
	}}
	return query.NewEngine(staticSource{"n": n}, 50, nil)
}

func TestServeRoundTrip(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	srv := NewServer(inR, outW, testEngine(), query.SessionConfig{}, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	enc := msgpack.NewEncoder(inW)
	dec := msgpack.NewDecoder(outR)

	require.NoError(t, enc.Encode(&Request{ID: 41, Q: "Nex"}))
	var resp Response
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, uint64(41), resp.ID)
	assert.Equal(t, uint64(1), resp.Seq)
	assert.Equal(t, "Nex", resp.Q)
	assert.False(t, resp.Idle)
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "Next", resp.Groups[0].DisplayName)
	assert.Equal(t, []Reference{{Label: "Random::Next()", URL: "../class_random.html", Anchor: "a76", Scope: "Random"}},
		resp.Groups[0].References)

	require.NoError(t, enc.Encode(&Request{ID: 42, Q: "zz"}))
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, uint64(42), resp.ID)
	assert.True(t, resp.Degraded)
	assert.Empty(t, resp.Groups)

	require.NoError(t, enc.Encode(&Request{ID: 43, Q: ""}))
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, uint64(43), resp.ID)
	assert.True(t, resp.Idle)

	require.NoError(t, inW.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the request stream closed")
	}
}

func TestServeAnswersLastRequestBeforeExit(t *testing.T) {
	var in bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	require.NoError(t, enc.Encode(&Request{ID: 1, Q: "n"}))
	require.NoError(t, enc.Encode(&Request{ID: 2, Q: "ne"}))
	require.NoError(t, enc.Encode(&Request{ID: 3, Q: "nex"}))

	var out bytes.Buffer
	srv := NewServer(&in, &out, testEngine(), query.SessionConfig{Debounce: 200 * time.Millisecond}, nil)
	require.NoError(t, srv.Serve(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var resp Response
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, uint64(3), resp.ID)
	assert.Equal(t, uint64(3), resp.Seq)
	assert.ErrorIs(t, dec.Decode(&resp), io.EOF)
}

func TestServeRejectsGarbage(t *testing.T) {
	in := bytes.NewReader([]byte{0xc1})
	srv := NewServer(in, io.Discard, testEngine(), query.SessionConfig{}, nil)
	assert.Error(t, srv.Serve(context.Background()))
}
