package storage

import (
	"context"

	"goladium-analytics/internal/domain"
)

// EventStore provides access to ledger_events storage.
// Events are keyed by (user_id, category, event_number) and never updated.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if (user_id, category, event_number) exists.
	Insert(ctx context.Context, e *domain.Event) error

	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetByTimeRange retrieves a stream's events within [start, end),
	// ordered by (timestamp_ms, event_number) ASC.
	GetByTimeRange(ctx context.Context, userID string, category domain.Category, start, end int64) ([]domain.Event, error)

	// GetRecent retrieves the latest limit events of a stream in chronological order.
	GetRecent(ctx context.Context, userID string, category domain.Category, limit int) ([]domain.Event, error)

	// GetLast retrieves the stream's highest-numbered event. Returns ErrNotFound if the stream is empty.
	GetLast(ctx context.Context, userID string, category domain.Category) (*domain.Event, error)

	// FirstTimestamp returns the timestamp of the stream's earliest event.
	// Returns ErrNotFound if the stream is empty.
	FirstTimestamp(ctx context.Context, userID string, category domain.Category) (int64, error)

	// Count returns the number of events in a stream.
	Count(ctx context.Context, userID string, category domain.Category) (int, error)
}

// SourceCursor is the resume position of one ingestion source.
type SourceCursor struct {
	Source      string // source name, e.g. "ws:ledger"
	PositionMs  int64  // timestamp of the last stored event delivered by the source
	UpdatedAtMs int64
}

// CursorStore persists ingestion resume positions so a restarted source
// does not replay its whole history.
type CursorStore interface {
	// Get returns the cursor for a source. Returns ErrNotFound if none was saved.
	Get(ctx context.Context, source string) (*SourceCursor, error)

	// Set saves the cursor, replacing any previous value.
	Set(ctx context.Context, c *SourceCursor) error
}
