package postgres

import (
	"context"
	"fmt"

	"goladium-analytics/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// One row per source in ingest_cursors.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the cursor for a source.
func (s *CursorStore) Get(ctx context.Context, source string) (*storage.SourceCursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT source, position_ms, updated_at_ms
		FROM ingest_cursors
		WHERE source = $1
	`, source)

	var c storage.SourceCursor
	if err := row.Scan(&c.Source, &c.PositionMs, &c.UpdatedAtMs); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cursor %s: %w", source, err)
	}
	return &c, nil
}

// Set saves the cursor. Uses upsert to handle initial insert and later updates.
func (s *CursorStore) Set(ctx context.Context, c *storage.SourceCursor) error {
	if c == nil || c.Source == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_cursors (source, position_ms, updated_at_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (source) DO UPDATE
		SET position_ms = EXCLUDED.position_ms,
		    updated_at_ms = EXCLUDED.updated_at_ms
	`, c.Source, c.PositionMs, c.UpdatedAtMs)
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", c.Source, err)
	}
	return nil
}
