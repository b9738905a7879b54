package clickhouse

import (
	"context"
	"fmt"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// Uniqueness of (user_id, category, event_number) is checked before each insert
// because MergeTree does not enforce keys.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const selectEventColumns = `
	SELECT event_id, user_id, category, event_number, timestamp_ms, event_type, delta, value_after, detail
	FROM ledger_events
`

// Insert adds a new event. Returns ErrDuplicateKey if (user_id, category, event_number) exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	return s.InsertBulk(ctx, []*domain.Event{e})
}

// InsertBulk adds multiple events in one batch. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	type stream struct {
		userID   string
		category domain.Category
	}
	numbers := make(map[stream][]int64)
	seen := make(map[string]struct{}, len(events))

	for _, e := range events {
		if err := storage.CheckEvent(e); err != nil {
			return err
		}
		k := fmt.Sprintf("%s|%s|%d", e.UserID, e.Category, e.EventNumber)
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		st := stream{e.UserID, e.Category}
		numbers[st] = append(numbers[st], e.EventNumber)
	}

	for st, nums := range numbers {
		n, err := s.countExisting(ctx, st.userID, st.category, nums)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			event_id, user_id, category, event_number, timestamp_ms, event_type, delta, value_after, detail
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		detail, err := domain.MarshalDetail(e.Detail)
		if err != nil {
			return fmt.Errorf("encode detail: %w", err)
		}
		err = batch.Append(
			e.EventID, e.UserID, string(e.Category), e.EventNumber, e.TimestampMs,
			string(e.Type), e.Delta, e.ValueAfter, string(detail),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// countExisting counts stored events of a stream with the given numbers.
func (s *EventStore) countExisting(ctx context.Context, userID string, category domain.Category, numbers []int64) (uint64, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM ledger_events
		WHERE user_id = ? AND category = ? AND event_number IN ?
	`, userID, string(category), numbers).Scan(&n)
	return n, err
}

// GetByTimeRange retrieves a stream's events within [start, end).
func (s *EventStore) GetByTimeRange(ctx context.Context, userID string, category domain.Category, start, end int64) ([]domain.Event, error) {
	query := selectEventColumns + `
		WHERE user_id = ? AND category = ? AND timestamp_ms >= ? AND timestamp_ms < ?
		ORDER BY timestamp_ms ASC, event_number ASC
	`

	rows, err := s.conn.Query(ctx, query, userID, string(category), start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
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
			WHERE user_id = ? AND category = ?
			ORDER BY timestamp_ms DESC, event_number DESC
			LIMIT ?
		)
		ORDER BY timestamp_ms ASC, event_number ASC
	`

	rows, err := s.conn.Query(ctx, query, userID, string(category), uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetLast retrieves the stream's highest-numbered event.
func (s *EventStore) GetLast(ctx context.Context, userID string, category domain.Category) (*domain.Event, error) {
	query := selectEventColumns + `
		WHERE user_id = ? AND category = ?
		ORDER BY event_number DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, userID, string(category))
	if err != nil {
		return nil, fmt.Errorf("query last: %w", err)
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
	var (
		first int64
		n     uint64
	)
	err := s.conn.QueryRow(ctx, `
		SELECT min(timestamp_ms), count() FROM ledger_events
		WHERE user_id = ? AND category = ?
	`, userID, string(category)).Scan(&first, &n)
	if err != nil {
		return 0, fmt.Errorf("query first timestamp: %w", err)
	}
	if n == 0 {
		return 0, storage.ErrNotFound
	}
	return first, nil
}

// Count returns the number of events in a stream.
func (s *EventStore) Count(ctx context.Context, userID string, category domain.Category) (int, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM ledger_events
		WHERE user_id = ? AND category = ?
	`, userID, string(category)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

// scanEvents scans rows into a slice of Event.
func scanEvents(rows chRows) ([]domain.Event, error) {
	var events []domain.Event

	for rows.Next() {
		var (
			e        domain.Event
			category string
			typ      string
			detail   string
		)

		if err := rows.Scan(
			&e.EventID, &e.UserID, &category, &e.EventNumber, &e.TimestampMs,
			&typ, &e.Delta, &e.ValueAfter, &detail,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.Category = domain.Category(category)
		e.Type = domain.EventType(typ)
		d, err := domain.UnmarshalDetail(e.Type, []byte(detail))
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.EventID, err)
		}
		e.Detail = d
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}
