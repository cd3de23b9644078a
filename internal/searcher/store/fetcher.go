package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
)

// Fetcher returns the raw bytes of one shard. A shard that does not exist
// is reported with an error wrapping ErrShardNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, id shard.ID) ([]byte, error)
}

// Decoder turns fetched bytes into a validated shard.
type Decoder func(id shard.ID, data []byte) (*index.Shard, error)

// Origin is a fetcher that can also report whether its source is reachable.
type Origin interface {
	Fetcher
	Ping(ctx context.Context) error
}

// NewOrigin returns an HTTPFetcher for an http(s) source and a DirFetcher
// for anything else.
func NewOrigin(source string, fileName func(shard.ID) string, m *metrics.Metrics) Origin {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return NewHTTPFetcher(source, fileName, m)
	}
	return NewDirFetcher(source, fileName)
}

// DirFetcher reads shard files from a local directory.
type DirFetcher struct {
	dir      string
	fileName func(shard.ID) string
}

// NewDirFetcher creates a DirFetcher. A nil fileName uses shard.FileName.
func NewDirFetcher(dir string, fileName func(shard.ID) string) *DirFetcher {
	if fileName == nil {
		fileName = shard.FileName
	}
	return &DirFetcher{dir: dir, fileName: fileName}
}

func (f *DirFetcher) Fetch(ctx context.Context, id shard.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.dir, f.fileName(id)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrShardNotFound, f.fileName(id))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrShardUnavailable, f.fileName(id), err)
	}
	return data, nil
}

// Ping reports whether the shard directory is reachable.
func (f *DirFetcher) Ping(ctx context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return fmt.Errorf("shard directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("shard directory %s is not a directory", f.dir)
	}
	return nil
}
