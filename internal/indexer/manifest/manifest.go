// Package manifest describes a finished shard build and keeps a history of
// builds in PostgreSQL.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
)

const (
	FileName = "manifest.json"
	Format   = "dssh/1"
)

// Manifest lists every shard file of one build. It carries no timestamps so
// that rebuilding the same symbol table yields an identical manifest.
type Manifest struct {
	BuildID     string      `json:"build_id"`
	Format      string      `json:"format"`
	SymbolCount int         `json:"symbol_count"`
	KeyCount    int         `json:"key_count"`
	Shards      []ShardInfo `json:"shards"`
}

// ShardInfo summarises one shard file.
type ShardInfo struct {
	ID         shard.ID `json:"id"`
	File       string   `json:"file"`
	Entries    int      `json:"entries"`
	References int      `json:"references"`
	Size       int64    `json:"size"`
	CRC32      uint32   `json:"crc32"`
}

// Shard returns the info for id.
func (m *Manifest) Shard(id shard.ID) (ShardInfo, bool) {
	for _, s := range m.Shards {
		if s.ID == id {
			return s, true
		}
	}
	return ShardInfo{}, false
}

// Marshal renders the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Parse decodes a manifest.json document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Format != Format {
		return nil, fmt.Errorf("unsupported manifest format %q", m.Format)
	}
	return &m, nil
}
