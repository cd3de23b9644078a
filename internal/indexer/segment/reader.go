package segment

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
)

// Decode parses a native shard file expected to hold partition id. It either
// returns a fully valid shard or an error wrapping ErrShardCorrupt (framing,
// size or checksum problems) or ErrShardSchema (well-formed bytes with
// invalid content).
func Decode(id shard.ID, data []byte) (*index.Shard, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", apperrors.ErrShardCorrupt, len(data))
	}
	h := parseHeader(data[:HeaderSize])
	if h.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrShardCorrupt, h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", apperrors.ErrShardCorrupt, h.Version)
	}
	body := data[HeaderSize:]
	if uint64(len(body)) != h.BodySize {
		return nil, fmt.Errorf("%w: body is %d bytes, header says %d", apperrors.ErrShardCorrupt, len(body), h.BodySize)
	}
	if sum := crc32.ChecksumIEEE(body); sum != h.Checksum {
		return nil, fmt.Errorf("%w: checksum %08x, header says %08x", apperrors.ErrShardCorrupt, sum, h.Checksum)
	}

	var w wireShard
	if err := msgpack.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", apperrors.ErrShardSchema, err)
	}
	if w.Name != bodyName {
		return nil, fmt.Errorf("%w: body name %q", apperrors.ErrShardSchema, w.Name)
	}
	if shard.ID(w.ID) != id {
		return nil, fmt.Errorf("%w: file holds shard %q, expected %q", apperrors.ErrShardSchema, w.ID, id)
	}

	s := &index.Shard{ID: id, Entries: make([]index.Entry, 0, len(w.Entries))}
	for i, raw := range w.Entries {
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", apperrors.ErrShardSchema, i, err)
		}
		s.Entries = append(s.Entries, e)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	if int(h.EntryCount) != len(s.Entries) || int(h.RefCount) != s.ReferenceCount() {
		return nil, fmt.Errorf("%w: header counts %d/%d do not match body %d/%d",
			apperrors.ErrShardCorrupt, h.EntryCount, h.RefCount, len(s.Entries), s.ReferenceCount())
	}
	return s, nil
}

// ReadFile reads and decodes the shard file for id from dir.
func ReadFile(dir string, id shard.ID) (*index.Shard, error) {
	data, err := os.ReadFile(filepath.Join(dir, shard.FileName(id)))
	if err != nil {
		return nil, fmt.Errorf("reading shard %q: %w", id, err)
	}
	return Decode(id, data)
}

// Validate checks the invariants every loaded shard must satisfy: keys are
// normalized, strictly ascending and belong to the shard's partition, and
// every entry has at least one reference.
func Validate(s *index.Shard) error {
	for i, e := range s.Entries {
		if !normalizer.IsNormalized(e.Key) {
			return fmt.Errorf("%w: key %q is not normalized", apperrors.ErrShardSchema, e.Key)
		}
		if got := shard.For(e.Key); got != s.ID {
			return fmt.Errorf("%w: key %q belongs to shard %q, not %q", apperrors.ErrShardSchema, e.Key, got, s.ID)
		}
		if i > 0 && s.Entries[i-1].Key >= e.Key {
			return fmt.Errorf("%w: key %q after %q breaks ascending order", apperrors.ErrShardSchema, e.Key, s.Entries[i-1].Key)
		}
		if len(e.References) == 0 {
			return fmt.Errorf("%w: key %q has no references", apperrors.ErrShardSchema, e.Key)
		}
	}
	return nil
}

func decodeEntry(raw any) (index.Entry, error) {
	fields, ok := raw.([]any)
	if !ok || len(fields) != 3 {
		return index.Entry{}, fmt.Errorf("want [key, display, references], got %T", raw)
	}
	key, ok := fields[0].(string)
	if !ok {
		return index.Entry{}, fmt.Errorf("key is %T, want string", fields[0])
	}
	display, ok := fields[1].(string)
	if !ok {
		return index.Entry{}, fmt.Errorf("display name of %q is %T, want string", key, fields[1])
	}
	refs, err := decodeReferences(fields[2])
	if err != nil {
		return index.Entry{}, fmt.Errorf("references of %q: %v", key, err)
	}
	return index.Entry{Key: key, DisplayName: display, References: refs}, nil
}

// decodeReferences accepts both payload shapes and always returns the
// sequence form.
func decodeReferences(raw any) ([]index.Reference, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, want array", raw)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty reference list")
	}
	if _, single := items[0].(string); single {
		ref, err := decodeReference(items)
		if err != nil {
			return nil, err
		}
		return []index.Reference{ref}, nil
	}
	refs := make([]index.Reference, 0, len(items))
	for i, item := range items {
		parts, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("reference %d is %T, want array", i, item)
		}
		ref, err := decodeReference(parts)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %v", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func decodeReference(parts []any) (index.Reference, error) {
	if len(parts) < 2 || len(parts) > 3 {
		return index.Reference{}, fmt.Errorf("want 2 or 3 elements, got %d", len(parts))
	}
	strs := make([]string, len(parts))
	for i, p := range parts {
		s, ok := p.(string)
		if !ok {
			return index.Reference{}, fmt.Errorf("element %d is %T, want string", i, p)
		}
		strs[i] = s
	}
	if strs[1] == "" {
		return index.Reference{}, fmt.Errorf("empty link")
	}
	url, anchor := index.SplitLink(strs[1])
	ref := index.Reference{Label: strs[0], URL: url, Anchor: anchor}
	if len(strs) == 3 {
		ref.Scope = strs[2]
	}
	return ref, nil
}
