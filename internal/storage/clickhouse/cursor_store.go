package clickhouse

import (
	"context"
	"fmt"

	"goladium-analytics/internal/storage"
)

// CursorStore implements storage.CursorStore using ClickHouse.
// Every Set appends a row; reads pick the newest one per source.
type CursorStore struct {
	conn *Conn
}

// NewCursorStore creates a new ClickHouse cursor store.
func NewCursorStore(conn *Conn) *CursorStore {
	return &CursorStore{conn: conn}
}

var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the cursor for a source.
func (s *CursorStore) Get(ctx context.Context, source string) (*storage.SourceCursor, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source, position_ms, updated_at_ms
		FROM ingest_cursors FINAL
		WHERE source = ?
		ORDER BY updated_at_ms DESC
		LIMIT 1
	`, source)
	if err != nil {
		return nil, fmt.Errorf("get cursor %s: %w", source, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get cursor %s: %w", source, err)
		}
		return nil, storage.ErrNotFound
	}

	var c storage.SourceCursor
	if err := rows.Scan(&c.Source, &c.PositionMs, &c.UpdatedAtMs); err != nil {
		return nil, fmt.Errorf("scan cursor %s: %w", source, err)
	}
	return &c, nil
}

// Set saves the cursor.
func (s *CursorStore) Set(ctx context.Context, c *storage.SourceCursor) error {
	if c == nil || c.Source == "" {
		return storage.ErrInvalidInput
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO ingest_cursors (source, position_ms, updated_at_ms)
		VALUES (?, ?, ?)
	`, c.Source, c.PositionMs, c.UpdatedAtMs)
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", c.Source, err)
	}
	return nil
}
