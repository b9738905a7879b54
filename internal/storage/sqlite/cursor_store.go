package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"goladium-analytics/internal/storage"
)

// CursorStore implements storage.CursorStore using SQLite.
type CursorStore struct {
	db *DB
}

// NewCursorStore creates a new CursorStore.
func NewCursorStore(db *DB) *CursorStore {
	return &CursorStore{db: db}
}

var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the cursor for a source.
func (s *CursorStore) Get(ctx context.Context, source string) (*storage.SourceCursor, error) {
	var c storage.SourceCursor
	err := s.db.QueryRowContext(ctx, `
		SELECT source, position_ms, updated_at_ms FROM ingest_cursors WHERE source = ?
	`, source).Scan(&c.Source, &c.PositionMs, &c.UpdatedAtMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cursor %s: %w", source, err)
	}
	return &c, nil
}

// Set saves the cursor, replacing any previous value.
func (s *CursorStore) Set(ctx context.Context, c *storage.SourceCursor) error {
	if c == nil || c.Source == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_cursors (source, position_ms, updated_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT (source) DO UPDATE
		SET position_ms = excluded.position_ms,
		    updated_at_ms = excluded.updated_at_ms
	`, c.Source, c.PositionMs, c.UpdatedAtMs)
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", c.Source, err)
	}
	return nil
}
