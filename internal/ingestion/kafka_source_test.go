package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goladium-analytics/internal/logging"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestKafkaSource_CommitsOnlyAfterAck(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 10, Value: []byte(`{"user_id":"u1","category":"financial","event_number":1,"timestamp":1000,"event_type":"bet","delta":-5,"value_after":95}`)},
		{Offset: 11, Value: []byte(`not json`)},
		{Offset: 12, Value: []byte(`[{"user_id":"u1","category":"financial","event_number":2,"timestamp":2000,"event_type":"win","delta":10,"value_after":105}]`)},
	}}
	src := newKafkaSource(reader, "kafka:ledger_events", logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := src.Subscribe(ctx)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "kafka:ledger_events", first.Source)
	require.Len(t, first.Events, 1)
	assert.Equal(t, int64(1000), first.PositionMs)

	second := <-ch
	require.Len(t, second.Events, 1)
	assert.Equal(t, int64(2), second.Events[0].EventNumber)

	// The undecodable message is committed on its own; the others wait for Ack.
	assert.Equal(t, []int64{11}, reader.commits())

	require.NoError(t, first.Ack(ctx))
	require.NoError(t, second.Ack(ctx))
	assert.Equal(t, []int64{11, 10, 12}, reader.commits())
}

func TestKafkaSource_ClosesOnCancel(t *testing.T) {
	reader := &fakeReader{}
	src := newKafkaSource(reader, "kafka:ledger_events", logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return reader.closed
	}, time.Second, 5*time.Millisecond)
}
