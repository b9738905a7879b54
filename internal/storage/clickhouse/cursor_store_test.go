package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goladium-analytics/internal/storage"
)

func TestCursorStore_GetSet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCursorStore(conn)

	_, err := store.Get(ctx, "kafka:ledger_events")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, &storage.SourceCursor{Source: "kafka:ledger_events", PositionMs: 1000, UpdatedAtMs: 1}))
	require.NoError(t, store.Set(ctx, &storage.SourceCursor{Source: "kafka:ledger_events", PositionMs: 2000, UpdatedAtMs: 2}))

	cur, err := store.Get(ctx, "kafka:ledger_events")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), cur.PositionMs)

	assert.ErrorIs(t, store.Set(ctx, &storage.SourceCursor{}), storage.ErrInvalidInput)
}
