package executor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
)

func shardOf(keys ...string) *index.Shard {
	s := &index.Shard{ID: "n"}
	for _, k := range keys {
		s.Entries = append(s.Entries, index.Entry{Key: k, DisplayName: k})
	}
	return s
}

func keys(entries []index.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

func TestMatch(t *testing.T) {
	s := shardOf("name", "neighbor", "next", "nextchild", "nextuint", "nextvec2", "node", "numsamples")

	tests := []struct {
		q    string
		want []string
	}{
		{"nex", []string{"next", "nextchild", "nextuint", "nextvec2"}},
		{"next", []string{"next", "nextchild", "nextuint", "nextvec2"}},
		{"nextu", []string{"nextuint"}},
		{"n", []string{"name", "neighbor", "next", "nextchild", "nextuint", "nextvec2", "node", "numsamples"}},
		{"nz", []string{}},
		{"a", []string{}},
		{"numsamplesx", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			assert.Equal(t, tt.want, keys(Match(s, tt.q)))
		})
	}
}

func TestMatchEmptyShard(t *testing.T) {
	assert.Empty(t, Match(index.EmptyShard("q"), "q"))
	assert.Empty(t, Match(nil, "q"))
}

func TestMatchIsMonotonicInPrefix(t *testing.T) {
	s := shardOf("next", "nextchild", "nextuint", "nextvec2", "node")
	q := "nextchild"
	prev := len(s.Entries) + 1
	for i := 1; i <= len(q); i++ {
		got := Match(s, q[:i])
		assert.LessOrEqual(t, len(got), prev, "prefix %q", q[:i])
		prev = len(got)
	}
}

func BenchmarkMatch(b *testing.B) {
	var ks []string
	for i := 0; i < 10000; i++ {
		ks = append(ks, fmt.Sprintf("n%05d", i))
	}
	s := shardOf(ks...)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Match(s, "n042")
	}
}
