package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_builds (
	build_id     TEXT PRIMARY KEY,
	format       TEXT NOT NULL,
	symbol_count INTEGER NOT NULL,
	key_count    INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS index_build_shards (
	build_id   TEXT NOT NULL REFERENCES index_builds(build_id) ON DELETE CASCADE,
	shard_id   TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	entries    INTEGER NOT NULL,
	refs       INTEGER NOT NULL,
	size_bytes BIGINT NOT NULL,
	crc32      BIGINT NOT NULL,
	PRIMARY KEY (build_id, shard_id)
);`

// Store records build manifests in PostgreSQL.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewStore(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "manifest-store"),
	}
}

// EnsureSchema creates the build tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating manifest schema: %w", err)
	}
	return nil
}

// Record stores m and its shard rows in one transaction. Recording the same
// build twice is a no-op.
func (s *Store) Record(ctx context.Context, m *Manifest) error {
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO index_builds (build_id, format, symbol_count, key_count)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (build_id) DO NOTHING`,
			m.BuildID, m.Format, m.SymbolCount, m.KeyCount,
		)
		if err != nil {
			return fmt.Errorf("inserting build %s: %w", m.BuildID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		for _, sh := range m.Shards {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO index_build_shards (build_id, shard_id, file_name, entries, refs, size_bytes, crc32)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				m.BuildID, string(sh.ID), sh.File, sh.Entries, sh.References, sh.Size, int64(sh.CRC32),
			); err != nil {
				return fmt.Errorf("inserting shard %s of build %s: %w", sh.ID, m.BuildID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("build recorded", "build_id", m.BuildID, "shards", len(m.Shards))
	return nil
}

// ErrNoBuilds is returned by Latest when nothing has been recorded yet.
var ErrNoBuilds = errors.New("no builds recorded")

// Latest returns the most recently recorded build.
func (s *Store) Latest(ctx context.Context) (*Manifest, error) {
	m := &Manifest{}
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT build_id, format, symbol_count, key_count
		 FROM index_builds ORDER BY created_at DESC LIMIT 1`,
	).Scan(&m.BuildID, &m.Format, &m.SymbolCount, &m.KeyCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBuilds
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest build: %w", err)
	}

	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT shard_id, file_name, entries, refs, size_bytes, crc32
		 FROM index_build_shards WHERE build_id = $1 ORDER BY file_name`,
		m.BuildID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying shards of build %s: %w", m.BuildID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sh ShardInfo
		var id string
		var crc int64
		if err := rows.Scan(&id, &sh.File, &sh.Entries, &sh.References, &sh.Size, &crc); err != nil {
			return nil, fmt.Errorf("scanning shard row: %w", err)
		}
		sh.ID = shard.ID(id)
		sh.CRC32 = uint32(crc)
		m.Shards = append(m.Shards, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shard rows: %w", err)
	}
	return m, nil
}
