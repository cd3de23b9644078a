// Package shard defines how lookup keys are partitioned into shards. The
// partition function is pure and shared by the shard builder and the query
// engine: the builder files an entry under For(entry.Key), and the engine
// loads For(query) to answer a query.
package shard

import (
	"fmt"
	"strings"
)

// ID names one partition: a single letter "a".."z" or CatchAll.
type ID string

// CatchAll holds every key that does not start with a letter, including the
// empty key and keys starting with a digit.
const CatchAll ID = "_"

const (
	filePrefix    = "all_"
	fileExt       = ".shard"
	catchAllStem  = "other"
	partitionSize = 27
)

// For returns the partition id of a normalized key.
func For(key string) ID {
	if key == "" {
		return CatchAll
	}
	c := key[0]
	if c >= 'a' && c <= 'z' {
		return ID(key[:1])
	}
	return CatchAll
}

// All returns every partition id in file order: "a".."z" followed by
// CatchAll.
func All() []ID {
	ids := make([]ID, 0, partitionSize)
	for c := byte('a'); c <= 'z'; c++ {
		ids = append(ids, ID([]byte{c}))
	}
	return append(ids, CatchAll)
}

// Valid reports whether id is one of the ids returned by All.
func Valid(id ID) bool {
	if id == CatchAll {
		return true
	}
	return len(id) == 1 && id[0] >= 'a' && id[0] <= 'z'
}

// Stem is the id as it appears in file names.
func (id ID) Stem() string {
	if id == CatchAll {
		return catchAllStem
	}
	return string(id)
}

func (id ID) String() string {
	return string(id)
}

// FileName returns the persisted file name of a shard, e.g. "all_n.shard".
func FileName(id ID) string {
	return filePrefix + id.Stem() + fileExt
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (ID, error) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return "", fmt.Errorf("not a shard file name: %q", name)
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	return ParseStem(stem)
}

// ParseStem maps a file stem ("n", "other") back to its id.
func ParseStem(stem string) (ID, error) {
	if stem == catchAllStem {
		return CatchAll, nil
	}
	id := ID(stem)
	if !Valid(id) || id == CatchAll {
		return "", fmt.Errorf("unknown shard stem %q", stem)
	}
	return id, nil
}

// Adjacent returns the letter partitions next to id, used for speculative
// prefetch. The catch-all has no neighbours.
func Adjacent(id ID) []ID {
	if id == CatchAll || !Valid(id) {
		return nil
	}
	c := id[0]
	var out []ID
	if c > 'a' {
		out = append(out, ID([]byte{c - 1}))
	}
	if c < 'z' {
		out = append(out, ID([]byte{c + 1}))
	}
	return out
}
