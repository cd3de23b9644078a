// Package index holds the symbol data model and the in-memory grouping used
// by the shard builder.
package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
)

// MemoryIndex groups symbols by normalized key. Symbols with the same key
// are merged into one Entry whatever their declaring scope; the first
// symbol seen names the entry and references keep the order they were added.
type MemoryIndex struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	order    []string
	symCount int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]*Entry),
	}
}

// Add files a symbol under its normalized key and returns that key.
func (m *MemoryIndex) Add(sym Symbol) string {
	key := normalizer.Normalize(sym.Name)
	ref := Reference{
		Label:  sym.DisplayLabel(),
		URL:    sym.URL,
		Anchor: sym.Anchor,
		Scope:  sym.Scope,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(key, sym.Name, ref)
	return key
}

// AddEntry merges a pre-grouped entry, as decoded from an existing shard.
// The entry's key is normalized again so foreign data cannot bypass the key
// rules.
func (m *MemoryIndex) AddEntry(e Entry) string {
	key := normalizer.Normalize(e.Key)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range e.References {
		m.addLocked(key, e.DisplayName, ref)
	}
	return key
}

func (m *MemoryIndex) addLocked(key, displayName string, ref Reference) {
	e, ok := m.entries[key]
	if !ok {
		e = &Entry{Key: key, DisplayName: displayName}
		m.entries[key] = e
		m.order = append(m.order, key)
	}
	e.References = append(e.References, ref)
	m.symCount++
}

// Lookup returns a copy of the entry stored under key.
func (m *MemoryIndex) Lookup(key string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(e), true
}

// Snapshot partitions the grouped entries into shards. Every partition id is
// present in the result, empty ones included, and each shard's entries are
// sorted by key.
func (m *MemoryIndex) Snapshot() map[shard.ID]*Shard {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[shard.ID]*Shard, len(shard.All()))
	for _, id := range shard.All() {
		out[id] = EmptyShard(id)
	}
	for _, key := range m.order {
		s := out[shard.For(key)]
		s.Entries = append(s.Entries, cloneEntry(m.entries[key]))
	}
	for _, s := range out {
		sort.Slice(s.Entries, func(i, j int) bool {
			return s.Entries[i].Key < s.Entries[j].Key
		})
	}
	return out
}

// SymbolCount is the number of references added so far.
func (m *MemoryIndex) SymbolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.symCount
}

// KeyCount is the number of distinct keys.
func (m *MemoryIndex) KeyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	m.order = nil
	m.symCount = 0
}

func cloneEntry(e *Entry) Entry {
	refs := make([]Reference, len(e.References))
	copy(refs, e.References)
	return Entry{Key: e.Key, DisplayName: e.DisplayName, References: refs}
}
