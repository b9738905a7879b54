package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/logging"
	"goladium-analytics/internal/storage/memory"
)

// mockSource implements a controllable source for testing.
type mockSource struct {
	name string
	ch   chan Delivery
}

func newMockSource(name string) *mockSource {
	return &mockSource{name: name, ch: make(chan Delivery, 100)}
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	return m.ch, nil
}

// Send delivers events and returns a counter of acks.
func (m *mockSource) Send(events ...*domain.Event) *ackCounter {
	acks := &ackCounter{}
	m.ch <- newDelivery(m.name, events, acks.ack)
	return acks
}

func (m *mockSource) Close() {
	close(m.ch)
}

type ackCounter struct {
	mu sync.Mutex
	n  int
}

func (a *ackCounter) ack(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	return nil
}

func (a *ackCounter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func TestRunner_FlushesOnBatchSize(t *testing.T) {
	store := memory.NewEventStore()
	cursors := memory.NewCursorStore()
	src := newMockSource("mock")

	runner := NewRunner(RunnerOptions{
		Sources:       []Source{src},
		Writer:        newTestWriter(store, nil),
		CursorStore:   cursors,
		BatchSize:     2,
		FlushInterval: time.Hour,
		Logger:        logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	acks := src.Send(betEvent("u1", 1, 10, 10), betEvent("u1", 2, -4, 6))

	require.Eventually(t, func() bool { return acks.count() == 1 }, time.Second, 5*time.Millisecond)

	n, err := store.Count(context.Background(), "u1", domain.CategoryFinancial)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cur, err := cursors.Get(context.Background(), "mock")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), cur.PositionMs)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int64(1), runner.Stats().Batches)
}

func TestRunner_FlushesOnInterval(t *testing.T) {
	store := memory.NewEventStore()
	src := newMockSource("mock")

	runner := NewRunner(RunnerOptions{
		Sources:       []Source{src},
		Writer:        newTestWriter(store, nil),
		BatchSize:     1000,
		FlushInterval: 10 * time.Millisecond,
		Logger:        logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	acks := src.Send(betEvent("u1", 1, 10, 10))
	require.Eventually(t, func() bool { return acks.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunner_FlushesOnShutdown(t *testing.T) {
	store := memory.NewEventStore()
	src := newMockSource("mock")

	runner := NewRunner(RunnerOptions{
		Sources:       []Source{src},
		Writer:        newTestWriter(store, nil),
		BatchSize:     1000,
		FlushInterval: time.Hour,
		Logger:        logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	acks := src.Send(betEvent("u1", 1, 10, 10))
	// Give the runner time to take the delivery off the channel.
	require.Eventually(t, func() bool { return len(src.ch) == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, 1, acks.count())
	n, err := store.Count(context.Background(), "u1", domain.CategoryFinancial)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunner_SourcesClosed(t *testing.T) {
	src := newMockSource("mock")
	runner := NewRunner(RunnerOptions{
		Sources: []Source{src},
		Writer:  newTestWriter(memory.NewEventStore(), nil),
		Logger:  logging.Discard(),
	})

	src.Send(betEvent("u1", 1, 1, 1))
	src.Close()

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), runner.Stats().Writer.Stored)
}

func TestRunner_RetriesFailedFlushWithoutAck(t *testing.T) {
	src := newMockSource("mock")
	store := &flakyStore{EventStore: memory.NewEventStore(), failures: 1}
	runner := NewRunner(RunnerOptions{
		Sources:       []Source{src},
		Writer:        newTestWriter(store, nil),
		BatchSize:     1,
		FlushInterval: 10 * time.Millisecond,
		Logger:        logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	acks := src.Send(betEvent("u1", 1, 1, 1))
	require.Eventually(t, func() bool { return acks.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), runner.Stats().FailedFlushes)
}

// flakyStore fails the first bulk inserts.
type flakyStore struct {
	*memory.EventStore
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return context.DeadlineExceeded
	}
	s.mu.Unlock()
	return s.EventStore.InsertBulk(ctx, events)
}
