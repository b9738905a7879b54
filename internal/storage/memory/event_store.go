package memory

import (
	"context"
	"sync"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
)

type streamKey struct {
	userID   string
	category domain.Category
}

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu      sync.RWMutex
	streams map[streamKey]map[int64]*domain.Event // keyed by event_number
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[streamKey]map[int64]*domain.Event),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if exists.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if err := storage.CheckEvent(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{e.UserID, e.Category}
	if _, exists := s.streams[key][e.EventNumber]; exists {
		return storage.ErrDuplicateKey
	}
	s.put(key, e)
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type eventKey struct {
		stream      streamKey
		eventNumber int64
	}
	batchKeys := make(map[eventKey]struct{}, len(events))

	for _, e := range events {
		if err := storage.CheckEvent(e); err != nil {
			return err
		}
		k := eventKey{streamKey{e.UserID, e.Category}, e.EventNumber}
		if _, exists := s.streams[k.stream][k.eventNumber]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, e := range events {
		s.put(streamKey{e.UserID, e.Category}, e)
	}
	return nil
}

// put stores a copy of e. Caller holds the write lock.
func (s *EventStore) put(key streamKey, e *domain.Event) {
	stream, ok := s.streams[key]
	if !ok {
		stream = make(map[int64]*domain.Event)
		s.streams[key] = stream
	}
	copy := *e
	stream[e.EventNumber] = &copy
}

// collect returns sorted copies of the stream's events matching keep. Caller holds a read lock.
func (s *EventStore) collect(key streamKey, keep func(*domain.Event) bool) []domain.Event {
	var result []domain.Event
	for _, e := range s.streams[key] {
		if keep(e) {
			result = append(result, *e)
		}
	}
	storage.SortEvents(result)
	return result
}

// GetByTimeRange retrieves a stream's events within [start, end).
func (s *EventStore) GetByTimeRange(_ context.Context, userID string, category domain.Category, start, end int64) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(streamKey{userID, category}, func(e *domain.Event) bool {
		return e.TimestampMs >= start && e.TimestampMs < end
	}), nil
}

// GetRecent retrieves the latest limit events in chronological order.
func (s *EventStore) GetRecent(_ context.Context, userID string, category domain.Category, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.collect(streamKey{userID, category}, func(*domain.Event) bool { return true })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// GetLast retrieves the stream's highest-numbered event.
func (s *EventStore) GetLast(_ context.Context, userID string, category domain.Category) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.Event
	for _, e := range s.streams[streamKey{userID, category}] {
		if last == nil || e.EventNumber > last.EventNumber {
			last = e
		}
	}
	if last == nil {
		return nil, storage.ErrNotFound
	}
	copy := *last
	return &copy, nil
}

// FirstTimestamp returns the timestamp of the stream's earliest event.
func (s *EventStore) FirstTimestamp(_ context.Context, userID string, category domain.Category) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[streamKey{userID, category}]
	if len(stream) == 0 {
		return 0, storage.ErrNotFound
	}

	first := int64(-1)
	for _, e := range stream {
		if first < 0 || e.TimestampMs < first {
			first = e.TimestampMs
		}
	}
	return first, nil
}

// Count returns the number of events in a stream.
func (s *EventStore) Count(_ context.Context, userID string, category domain.Category) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.streams[streamKey{userID, category}]), nil
}

var _ storage.EventStore = (*EventStore)(nil)
