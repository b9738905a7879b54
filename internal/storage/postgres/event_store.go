package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const insertEventSQL = `
	INSERT INTO ledger_events (
		event_id, user_id, category, event_number, timestamp_ms, event_type, delta, value_after, detail
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const selectEventColumns = `
	SELECT event_id, user_id, category, event_number, timestamp_ms, event_type, delta, value_after, detail
	FROM ledger_events
`

func insertArgs(e *domain.Event) ([]any, error) {
	detail, err := domain.MarshalDetail(e.Detail)
	if err != nil {
		return nil, fmt.Errorf("encode detail: %w", err)
	}
	return []any{
		e.EventID,
		e.UserID,
		string(e.Category),
		e.EventNumber,
		e.TimestampMs,
		string(e.Type),
		e.Delta,
		e.ValueAfter,
		detail,
	}, nil
}

// Insert adds a new event. Returns ErrDuplicateKey if (user_id, category, event_number) exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if err := storage.CheckEvent(e); err != nil {
		return err
	}
	args, err := insertArgs(e)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, insertEventSQL, args...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
// Rows are sent as one pgx.Batch inside a transaction.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		if err := storage.CheckEvent(e); err != nil {
			return err
		}
		args, err := insertArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEventSQL, args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert event in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves a stream's events within [start, end).
func (s *EventStore) GetByTimeRange(ctx context.Context, userID string, category domain.Category, start, end int64) ([]domain.Event, error) {
	query := selectEventColumns + `
		WHERE user_id = $1 AND category = $2 AND timestamp_ms >= $3 AND timestamp_ms < $4
		ORDER BY timestamp_ms ASC, event_number ASC
	`

	rows, err := s.pool.Query(ctx, query, userID, string(category), start, end)
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

	query := `
		SELECT * FROM (` + selectEventColumns + `
			WHERE user_id = $1 AND category = $2
			ORDER BY timestamp_ms DESC, event_number DESC
			LIMIT $3
		) recent
		ORDER BY timestamp_ms ASC, event_number ASC
	`

	rows, err := s.pool.Query(ctx, query, userID, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetLast retrieves the stream's highest-numbered event.
func (s *EventStore) GetLast(ctx context.Context, userID string, category domain.Category) (*domain.Event, error) {
	query := selectEventColumns + `
		WHERE user_id = $1 AND category = $2
		ORDER BY event_number DESC
		LIMIT 1
	`

	rows, err := s.pool.Query(ctx, query, userID, string(category))
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
	var first *int64
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(timestamp_ms) FROM ledger_events
		WHERE user_id = $1 AND category = $2
	`, userID, string(category)).Scan(&first)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get first timestamp: %w", err)
	}
	if first == nil {
		return 0, storage.ErrNotFound
	}
	return *first, nil
}

// Count returns the number of events in a stream.
func (s *EventStore) Count(ctx context.Context, userID string, category domain.Category) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_events
		WHERE user_id = $1 AND category = $2
	`, userID, string(category)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

// scanEvents scans multiple rows into a slice of Event.
func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event

	for rows.Next() {
		var (
			e        domain.Event
			category string
			typ      string
			detail   []byte
		)

		err := rows.Scan(
			&e.EventID,
			&e.UserID,
			&category,
			&e.EventNumber,
			&e.TimestampMs,
			&typ,
			&e.Delta,
			&e.ValueAfter,
			&detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.Category = domain.Category(category)
		e.Type = domain.EventType(typ)
		if e.Detail, err = domain.UnmarshalDetail(e.Type, detail); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.EventID, err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}
