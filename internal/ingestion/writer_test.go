package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goladium-analytics/internal/cache"
	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/logging"
	"goladium-analytics/internal/storage"
	"goladium-analytics/internal/storage/memory"
	"goladium-analytics/internal/timeseries"
)

func betEvent(user string, n int64, delta, after float64) *domain.Event {
	return &domain.Event{
		UserID:      user,
		Category:    domain.CategoryFinancial,
		EventNumber: n,
		TimestampMs: n * 1000,
		Type:        domain.EventTypeBet,
		Delta:       delta,
		ValueAfter:  after,
	}
}

func newTestWriter(store storage.EventStore, c cache.ResultCache) *Writer {
	return NewWriter(WriterOptions{
		EventStore: store,
		Cache:      c,
		Logger:     logging.Discard(),
	})
}

func TestWriter_StoresAndAssignsIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	w := newTestWriter(store, nil)

	// Arrival order differs from stream order.
	res, err := w.Write(ctx, []*domain.Event{
		betEvent("u1", 2, -5, 5),
		betEvent("u1", 1, 10, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Zero(t, res.ChainBreaks)

	events, err := store.GetByTimeRange(ctx, "u1", domain.CategoryFinancial, 0, 10_000)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, int64(1), events[0].EventNumber)
}

func TestWriter_SkipsRedelivered(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	w := newTestWriter(store, nil)

	_, err := w.Write(ctx, []*domain.Event{betEvent("u1", 1, 10, 10), betEvent("u1", 2, 5, 15)})
	require.NoError(t, err)

	// Redelivery of 1..2 plus a new event and an in-batch repeat.
	res, err := w.Write(ctx, []*domain.Event{
		betEvent("u1", 1, 10, 10),
		betEvent("u1", 2, 5, 15),
		betEvent("u1", 3, 1, 16),
		betEvent("u1", 3, 1, 16),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 3, res.Duplicates)

	n, err := store.Count(ctx, "u1", domain.CategoryFinancial)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.Stored)
	assert.Equal(t, int64(3), stats.Duplicates)
}

func TestWriter_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	w := newTestWriter(memory.NewEventStore(), nil)

	bad := betEvent("u1", 2, 1, 1)
	bad.Type = domain.EventTypeDrop // not a financial event

	res, err := w.Write(ctx, []*domain.Event{betEvent("u1", 1, 1, 1), bad, nil})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, 1, res.Rejected[0].Index)
	assert.Equal(t, 2, res.Rejected[1].Index)
	assert.ErrorIs(t, res.Rejected[0].Err, storage.ErrInvalidInput)
}

func TestWriter_RejectsBackdated(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	w := newTestWriter(store, nil)

	_, err := w.Write(ctx, []*domain.Event{betEvent("u1", 1, 10, 10)})
	require.NoError(t, err)

	at := func(e *domain.Event, ms int64) *domain.Event {
		e.TimestampMs = ms
		return e
	}
	res, err := w.Write(ctx, []*domain.Event{
		at(betEvent("u1", 2, 5, 15), 500), // before the stored tail at 1000
		at(betEvent("u1", 3, 1, 11), 2000),
		at(betEvent("u1", 4, 1, 12), 4000),
		at(betEvent("u1", 5, 1, 13), 3000), // before event 4 in the same batch
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, 0, res.Rejected[0].Index)
	assert.Equal(t, 3, res.Rejected[1].Index)
	assert.ErrorIs(t, res.Rejected[0].Err, ErrInvalidOrdering)
	assert.ErrorIs(t, res.Rejected[1].Err, ErrInvalidOrdering)
	assert.Equal(t, int64(2), w.Stats().Rejected)

	events, err := store.GetByTimeRange(ctx, "u1", domain.CategoryFinancial, 0, 10_000)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, want := range []int64{1, 3, 4} {
		assert.Equal(t, want, events[i].EventNumber)
	}
}

func TestWriter_CountsChainBreaksAcrossStoredTail(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	w := newTestWriter(store, nil)

	_, err := w.Write(ctx, []*domain.Event{betEvent("u1", 1, 10, 10)})
	require.NoError(t, err)

	// 10 + 5 should be 15, and 20 + 1 should be 21.
	res, err := w.Write(ctx, []*domain.Event{
		betEvent("u1", 2, 5, 20),
		betEvent("u1", 3, 1, 22),
		betEvent("u1", 4, 1, 23),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stored, "broken events are still stored")
	assert.Equal(t, 2, res.ChainBreaks)
}

func TestWriter_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(time.Minute)
	w := newTestWriter(memory.NewEventStore(), c)

	k1 := cache.Key{UserID: "u1", Category: domain.CategoryFinancial, Range: timeseries.Range1D}
	k2 := cache.Key{UserID: "u2", Category: domain.CategoryFinancial, Range: timeseries.Range1D}
	require.NoError(t, c.Set(ctx, k1, &timeseries.Result{Mode: timeseries.ModeEmpty}))
	require.NoError(t, c.Set(ctx, k2, &timeseries.Result{Mode: timeseries.ModeEmpty}))

	_, err := w.Write(ctx, []*domain.Event{betEvent("u1", 1, 1, 1)})
	require.NoError(t, err)

	_, err = c.Get(ctx, k1)
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = c.Get(ctx, k2)
	assert.NoError(t, err)
}

// racingStore reports a duplicate on bulk insert, as if another writer
// stored part of the batch between GetLast and InsertBulk.
type racingStore struct {
	*memory.EventStore
	bulkCalls int
}

func (s *racingStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	s.bulkCalls++
	if err := s.EventStore.Insert(ctx, events[0]); err != nil {
		return err
	}
	return storage.ErrDuplicateKey
}

func TestWriter_FallsBackOnConcurrentDuplicate(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{EventStore: memory.NewEventStore()}
	w := newTestWriter(store, nil)

	res, err := w.Write(ctx, []*domain.Event{betEvent("u1", 1, 1, 1), betEvent("u1", 2, 1, 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, store.bulkCalls)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 1, res.Duplicates)

	n, err := store.Count(ctx, "u1", domain.CategoryFinancial)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// failingStore fails every read.
type failingStore struct {
	*memory.EventStore
}

func (failingStore) GetLast(context.Context, string, domain.Category) (*domain.Event, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestWriter_StoreFailure(t *testing.T) {
	ctx := context.Background()
	w := newTestWriter(failingStore{memory.NewEventStore()}, nil)

	_, err := w.Write(ctx, []*domain.Event{betEvent("u1", 1, 1, 1)})
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrDuplicateKey))
	assert.Zero(t, w.Stats().Stored)
}
