// Package segment reads and writes persisted shard files.
//
// A shard file is a 32-byte little-endian header followed by a msgpack body:
//
//	offset size field
//	0      4    magic 0x44535348 ("DSSH")
//	4      4    format version
//	8      4    entry count
//	12     4    reference count
//	16     8    body size
//	24     4    CRC32 (IEEE) of the body
//	28     4    reserved, zero
//
// The body is the map {name: "searchData", id, entries}, each entry being
// [key, displayName, references] and each reference [label, link] or
// [label, link, scope]. The writer always emits references as a sequence;
// the decoder also accepts a single flattened reference.
package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
)

const (
	MagicBytes    uint32 = 0x44535348
	FormatVersion uint32 = 1
	HeaderSize    int    = 32

	bodyName = "searchData"
)

// Header is the fixed-size prefix of every shard file.
type Header struct {
	Magic      uint32
	Version    uint32
	EntryCount uint32
	RefCount   uint32
	BodySize   uint64
	Checksum   uint32
}

func (h Header) marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.EntryCount)
	binary.LittleEndian.PutUint32(b[12:16], h.RefCount)
	binary.LittleEndian.PutUint64(b[16:24], h.BodySize)
	binary.LittleEndian.PutUint32(b[24:28], h.Checksum)
	return b
}

func parseHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		EntryCount: binary.LittleEndian.Uint32(b[8:12]),
		RefCount:   binary.LittleEndian.Uint32(b[12:16]),
		BodySize:   binary.LittleEndian.Uint64(b[16:24]),
		Checksum:   binary.LittleEndian.Uint32(b[24:28]),
	}
}

type wireShard struct {
	Name    string `msgpack:"name"`
	ID      string `msgpack:"id"`
	Entries []any  `msgpack:"entries"`
}

// Encode serialises a shard. The output depends only on the shard's content,
// so encoding the same shard twice yields identical bytes.
func Encode(s *index.Shard) ([]byte, error) {
	w := wireShard{
		Name:    bodyName,
		ID:      string(s.ID),
		Entries: make([]any, 0, len(s.Entries)),
	}
	refCount := 0
	for _, e := range s.Entries {
		refs := make([]any, 0, len(e.References))
		for _, r := range e.References {
			if r.Scope != "" {
				refs = append(refs, []string{r.Label, r.Link(), r.Scope})
			} else {
				refs = append(refs, []string{r.Label, r.Link()})
			}
		}
		refCount += len(refs)
		w.Entries = append(w.Entries, []any{e.Key, e.DisplayName, refs})
	}

	var body bytes.Buffer
	enc := msgpack.NewEncoder(&body)
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("encoding shard %q body: %w", s.ID, err)
	}

	h := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		EntryCount: uint32(len(s.Entries)),
		RefCount:   uint32(refCount),
		BodySize:   uint64(body.Len()),
		Checksum:   crc32.ChecksumIEEE(body.Bytes()),
	}
	out := make([]byte, 0, HeaderSize+body.Len())
	out = append(out, h.marshal()...)
	out = append(out, body.Bytes()...)
	return out, nil
}

// WriteResult describes one shard file written to disk.
type WriteResult struct {
	ID         shard.ID
	FileName   string
	Size       int64
	Checksum   uint32
	EntryCount int
	RefCount   int
	Data       []byte
}

// Writer writes shard files into a directory.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes shards into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dataDir
}

// Write encodes s and atomically replaces its shard file.
func (w *Writer) Write(s *index.Shard) (WriteResult, error) {
	data, err := Encode(s)
	if err != nil {
		return WriteResult{}, err
	}
	name := shard.FileName(s.ID)
	if err := w.WriteFile(name, data); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{
		ID:         s.ID,
		FileName:   name,
		Size:       int64(len(data)),
		Checksum:   parseHeader(data).Checksum,
		EntryCount: len(s.Entries),
		RefCount:   s.ReferenceCount(),
		Data:       data,
	}, nil
}

// WriteFile writes data to name inside the output directory via a temporary
// file and a rename, so readers never observe a partial file.
func (w *Writer) WriteFile(name string, data []byte) error {
	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}
