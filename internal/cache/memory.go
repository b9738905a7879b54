package cache

import (
	"context"
	"sync"
	"time"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/timeseries"
)

type memoryEntry struct {
	result    timeseries.Result
	expiresAt time.Time
}

// Memory is an in-process ResultCache for single-node deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[Key]memoryEntry
	now     func() time.Time
}

// NewMemory creates a memory cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[Key]memoryEntry),
		now:     time.Now,
	}
}

var _ ResultCache = (*Memory)(nil)

// Get returns a copy of the cached result.
func (m *Memory) Get(_ context.Context, key Key) (*timeseries.Result, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, ErrMiss
	}
	return copyResult(&entry.result), nil
}

// Set stores a copy of result.
func (m *Memory) Set(_ context.Context, key Key, result *timeseries.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{
		result:    *copyResult(result),
		expiresAt: m.now().Add(m.ttl),
	}
	m.evictExpiredLocked()
	return nil
}

// InvalidateUser drops every entry of userID.
func (m *Memory) InvalidateUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.entries {
		if k.UserID == userID {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) evictExpiredLocked() {
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// copyResult deep-copies candles, breakdowns and stats so callers cannot alias stored state.
func copyResult(r *timeseries.Result) *timeseries.Result {
	out := *r
	if r.Candles != nil {
		out.Candles = make([]domain.Candle, len(r.Candles))
		for i, c := range r.Candles {
			if c.Breakdown != nil {
				bd := make(map[domain.EventType]int, len(c.Breakdown))
				for t, n := range c.Breakdown {
					bd[t] = n
				}
				c.Breakdown = bd
			}
			out.Candles[i] = c
		}
	}
	if r.Stats != nil {
		s := *r.Stats
		out.Stats = &s
	}
	return &out
}
