// Package merger flattens ranked entries into display groups and applies the
// result cap.
package merger

import (
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
)

// Group is one entry as shown: a header and its references.
type Group struct {
	Key         string            `json:"key"`
	DisplayName string            `json:"display_name"`
	References  []index.Reference `json:"references"`
}

// Truncate walks entries in order and keeps references until limit of them
// have been taken. The group that crosses the limit is cut short; later
// groups are dropped. total is the number of references before the cut. A
// non-positive limit keeps everything.
func Truncate(entries []index.Entry, limit int) (groups []Group, total int, truncated bool) {
	for _, e := range entries {
		total += len(e.References)
	}
	groups = make([]Group, 0, len(entries))
	taken := 0
	for _, e := range entries {
		refs := e.References
		if limit > 0 {
			remaining := limit - taken
			if remaining <= 0 {
				break
			}
			if len(refs) > remaining {
				refs = refs[:remaining]
			}
		}
		taken += len(refs)
		groups = append(groups, Group{
			Key:         e.Key,
			DisplayName: e.DisplayName,
			References:  append([]index.Reference(nil), refs...),
		})
	}
	return groups, total, taken < total
}
