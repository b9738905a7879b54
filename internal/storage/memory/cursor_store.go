package memory

import (
	"context"
	"sync"

	"goladium-analytics/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]storage.SourceCursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]storage.SourceCursor),
	}
}

// Get returns the cursor for a source.
func (s *CursorStore) Get(_ context.Context, source string) (*storage.SourceCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[source]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// Set saves the cursor.
func (s *CursorStore) Set(_ context.Context, c *storage.SourceCursor) error {
	if c == nil || c.Source == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[c.Source] = *c
	return nil
}

var _ storage.CursorStore = (*CursorStore)(nil)
