package index

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
)

// Symbol is one documented declaration as produced by symbol extraction.
// URL is the page path without a fragment; the fragment goes in Anchor.
// Shards store the two joined by '#' and split them on the first '#'.
type Symbol struct {
	Name   string `json:"name"`
	Scope  string `json:"scope,omitempty"`
	URL    string `json:"url"`
	Anchor string `json:"anchor,omitempty"`
	// Label overrides the derived display label. Imported legacy data uses it
	// to keep signatures such as "ConfigNode::NextChild() const".
	Label string `json:"label,omitempty"`
}

// DisplayLabel is Label if set, else "Scope::Name", else Name.
func (s Symbol) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	if s.Scope != "" {
		return s.Scope + "::" + s.Name
	}
	return s.Name
}

// Reference is one navigable documentation destination.
type Reference struct {
	Label  string `json:"label"`
	URL    string `json:"url"`
	Anchor string `json:"anchor,omitempty"`
	Scope  string `json:"scope,omitempty"`
}

// Link joins URL and Anchor the way they are stored in a shard.
func (r Reference) Link() string {
	if r.Anchor == "" {
		return r.URL
	}
	return r.URL + "#" + r.Anchor
}

// SplitLink splits a stored link on its first '#'. Both halves are kept
// verbatim.
func SplitLink(link string) (url, anchor string) {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		return link[:i], link[i+1:]
	}
	return link, ""
}

// Entry groups every reference whose symbol name normalizes to Key.
// References stay in discovery order.
type Entry struct {
	Key         string      `json:"key"`
	DisplayName string      `json:"display_name"`
	References  []Reference `json:"references"`
}

// Shard is one partition of the index: entries sorted ascending by Key, all
// with shard.For(Key) == ID. Shards are never mutated once built or loaded.
type Shard struct {
	ID      shard.ID
	Entries []Entry
}

// EmptyShard returns a shard with no entries.
func EmptyShard(id shard.ID) *Shard {
	return &Shard{ID: id, Entries: []Entry{}}
}

// ReferenceCount is the total number of references across all entries.
func (s *Shard) ReferenceCount() int {
	n := 0
	for _, e := range s.Entries {
		n += len(e.References)
	}
	return n
}
