package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
)

// EventStore implements storage.EventStore using SQLite.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new EventStore.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

var _ storage.EventStore = (*EventStore)(nil)

const insertEventSQL = `
	INSERT INTO ledger_events (
		event_id, user_id, category, event_number, timestamp_ms, event_type, delta, value_after, detail
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectEventColumns = `
	SELECT event_id, user_id, category, event_number, timestamp_ms, event_type, delta, value_after, detail
	FROM ledger_events
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, x execer, e *domain.Event) error {
	if err := storage.CheckEvent(e); err != nil {
		return err
	}
	detail, err := domain.MarshalDetail(e.Detail)
	if err != nil {
		return fmt.Errorf("encode detail: %w", err)
	}

	var detailArg any
	if detail != nil {
		detailArg = string(detail)
	}

	_, err = x.ExecContext(ctx, insertEventSQL,
		e.EventID, e.UserID, string(e.Category), e.EventNumber, e.TimestampMs,
		string(e.Type), e.Delta, e.ValueAfter, detailArg,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Insert adds a new event. Returns ErrDuplicateKey if (user_id, category, event_number) exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	return insertEvent(ctx, s.db, e)
}

// InsertBulk adds multiple events in one transaction. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if err := insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves a stream's events within [start, end).
func (s *EventStore) GetByTimeRange(ctx context.Context, userID string, category domain.Category, start, end int64) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEventColumns+`
		WHERE user_id = ? AND category = ? AND timestamp_ms >= ? AND timestamp_ms < ?
		ORDER BY timestamp_ms ASC, event_number ASC
	`, userID, string(category), start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRecent retrieves the latest limit events in chronological order.
func (s *EventStore) GetRecent(ctx context.Context, userID string, category domain.Category, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (`+selectEventColumns+`
			WHERE user_id = ? AND category = ?
			ORDER BY timestamp_ms DESC, event_number DESC
			LIMIT ?
		)
		ORDER BY timestamp_ms ASC, event_number ASC
	`, userID, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetLast retrieves the stream's highest-numbered event.
func (s *EventStore) GetLast(ctx context.Context, userID string, category domain.Category) (*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEventColumns+`
		WHERE user_id = ? AND category = ?
		ORDER BY event_number DESC
		LIMIT 1
	`, userID, string(category))
	if err != nil {
		return nil, fmt.Errorf("get last event: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return &events[0], nil
}

// FirstTimestamp returns the timestamp of the stream's earliest event.
func (s *EventStore) FirstTimestamp(ctx context.Context, userID string, category domain.Category) (int64, error) {
	var first sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(timestamp_ms) FROM ledger_events
		WHERE user_id = ? AND category = ?
	`, userID, string(category)).Scan(&first)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get first timestamp: %w", err)
	}
	if !first.Valid {
		return 0, storage.ErrNotFound
	}
	return first.Int64, nil
}

// Count returns the number of events in a stream.
func (s *EventStore) Count(ctx context.Context, userID string, category domain.Category) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_events
		WHERE user_id = ? AND category = ?
	`, userID, string(category)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event

	for rows.Next() {
		var (
			e        domain.Event
			category string
			typ      string
			detail   sql.NullString
		)

		if err := rows.Scan(
			&e.EventID, &e.UserID, &category, &e.EventNumber, &e.TimestampMs,
			&typ, &e.Delta, &e.ValueAfter, &detail,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.Category = domain.Category(category)
		e.Type = domain.EventType(typ)
		d, err := domain.UnmarshalDetail(e.Type, []byte(detail.String))
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.EventID, err)
		}
		e.Detail = d
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
