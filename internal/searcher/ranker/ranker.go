// Package ranker orders matched entries for display.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
)

// Rank returns a copy of entries with the entry whose key equals q first and
// the rest in ascending key order. References inside an entry are never
// reordered.
func Rank(entries []index.Entry, q string) []index.Entry {
	result := make([]index.Entry, len(entries))
	copy(result, entries)
	sort.SliceStable(result, func(i, j int) bool {
		ei, ej := result[i].Key == q, result[j].Key == q
		if ei != ej {
			return ei
		}
		return result[i].Key < result[j].Key
	})
	return result
}
