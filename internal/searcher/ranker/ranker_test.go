package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
)

func TestRankExactFirst(t *testing.T) {
	entries := []index.Entry{
		{Key: "next"},
		{Key: "nextchild"},
		{Key: "nextuint"},
	}
	got := Rank(entries, "nextuint")
	assert.Equal(t, "nextuint", got[0].Key)
	assert.Equal(t, "next", got[1].Key)
	assert.Equal(t, "nextchild", got[2].Key)
	assert.Equal(t, "next", entries[0].Key, "input is not modified")
}

func TestRankWithoutExactMatchKeepsKeyOrder(t *testing.T) {
	entries := []index.Entry{{Key: "nextvec2"}, {Key: "nextchild"}, {Key: "next"}}
	got := Rank(entries, "nex")
	assert.Equal(t, []string{"next", "nextchild", "nextvec2"}, []string{got[0].Key, got[1].Key, got[2].Key})
}

func TestRankKeepsReferenceOrder(t *testing.T) {
	refs := []index.Reference{{Label: "B::next"}, {Label: "A::next"}}
	got := Rank([]index.Entry{{Key: "next", References: refs}}, "next")
	assert.Equal(t, refs, got[0].References)
}
