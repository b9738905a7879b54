package bootstrap

import (
	"context"
	"errors"
	"time"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/observability"
	"goladium-analytics/internal/storage"
)

// MeteredEventStore records latency and errors of every store call.
// ErrNotFound and ErrDuplicateKey are expected outcomes, not errors.
type MeteredEventStore struct {
	inner    storage.EventStore
	database string
}

// NewMeteredEventStore wraps inner, labelling metrics with database.
func NewMeteredEventStore(inner storage.EventStore, database string) *MeteredEventStore {
	return &MeteredEventStore{inner: inner, database: database}
}

var _ storage.EventStore = (*MeteredEventStore)(nil)

func (m *MeteredEventStore) observe(op string, start time.Time, err error) {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrDuplicateKey) {
		err = nil
	}
	observability.RecordDBQuery(m.database, op, time.Since(start).Seconds(), err)
}

func (m *MeteredEventStore) Insert(ctx context.Context, e *domain.Event) error {
	start := time.Now()
	err := m.inner.Insert(ctx, e)
	m.observe("insert", start, err)
	return err
}

func (m *MeteredEventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	start := time.Now()
	err := m.inner.InsertBulk(ctx, events)
	m.observe("insert_bulk", start, err)
	return err
}

func (m *MeteredEventStore) GetByTimeRange(ctx context.Context, userID string, category domain.Category, start, end int64) ([]domain.Event, error) {
	t := time.Now()
	events, err := m.inner.GetByTimeRange(ctx, userID, category, start, end)
	m.observe("get_by_time_range", t, err)
	return events, err
}

func (m *MeteredEventStore) GetRecent(ctx context.Context, userID string, category domain.Category, limit int) ([]domain.Event, error) {
	start := time.Now()
	events, err := m.inner.GetRecent(ctx, userID, category, limit)
	m.observe("get_recent", start, err)
	return events, err
}

func (m *MeteredEventStore) GetLast(ctx context.Context, userID string, category domain.Category) (*domain.Event, error) {
	start := time.Now()
	e, err := m.inner.GetLast(ctx, userID, category)
	m.observe("get_last", start, err)
	return e, err
}

func (m *MeteredEventStore) FirstTimestamp(ctx context.Context, userID string, category domain.Category) (int64, error) {
	start := time.Now()
	ts, err := m.inner.FirstTimestamp(ctx, userID, category)
	m.observe("first_timestamp", start, err)
	return ts, err
}

func (m *MeteredEventStore) Count(ctx context.Context, userID string, category domain.Category) (int, error) {
	start := time.Now()
	n, err := m.inner.Count(ctx, userID, category)
	m.observe("count", start, err)
	return n, err
}
