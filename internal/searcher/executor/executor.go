// Package executor matches a normalized query against one shard.
package executor

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
)

// Match returns every entry of s whose key starts with q, in key order.
// Entries are sorted, so the matches form one contiguous run: binary search
// to the first key >= q, then scan while the prefix holds. The returned
// slice aliases the shard and must not be modified.
func Match(s *index.Shard, q string) []index.Entry {
	if s == nil {
		return nil
	}
	entries := s.Entries
	lo := sort.Search(len(entries), func(i int) bool {
		return entries[i].Key >= q
	})
	hi := lo
	for hi < len(entries) && strings.HasPrefix(entries[hi].Key, q) {
		hi++
	}
	return entries[lo:hi:hi]
}
