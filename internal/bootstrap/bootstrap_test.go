package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goladium-analytics/internal/cache"
	"goladium-analytics/internal/config"
	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/idhash"
	"goladium-analytics/internal/logging"
	"goladium-analytics/internal/storage"
)

func roundTrip(t *testing.T, stores *Stores) {
	t.Helper()
	ctx := context.Background()

	e := &domain.Event{
		UserID:      "u1",
		Category:    domain.CategoryInventory,
		EventNumber: 1,
		TimestampMs: 1000,
		Type:        domain.EventTypeDrop,
		Delta:       12.5,
		ValueAfter:  12.5,
	}
	idhash.AssignEventID(e)
	require.NoError(t, stores.Events.Insert(ctx, e))
	assert.ErrorIs(t, stores.Events.Insert(ctx, e), storage.ErrDuplicateKey)

	last, err := stores.Events.GetLast(ctx, "u1", domain.CategoryInventory)
	require.NoError(t, err)
	assert.Equal(t, e.EventID, last.EventID)

	require.NoError(t, stores.Cursors.Set(ctx, &storage.SourceCursor{Source: "ws:ledger", PositionMs: 1000}))
	cur, err := stores.Cursors.Get(ctx, "ws:ledger")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cur.PositionMs)
}

func TestOpenStores_Memory(t *testing.T) {
	cfg := &config.Config{StorageBackend: config.BackendMemory}
	stores, err := OpenStores(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer stores.Close()

	assert.IsType(t, &MeteredEventStore{}, stores.Events)
	roundTrip(t, stores)
}

func TestOpenStores_Sqlite(t *testing.T) {
	cfg := &config.Config{
		StorageBackend: config.BackendSqlite,
		SqlitePath:     filepath.Join(t.TempDir(), "ledger.db"),
	}
	stores, err := OpenStores(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer stores.Close()

	roundTrip(t, stores)
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	_, err := OpenStores(context.Background(), &config.Config{StorageBackend: "mongo"}, logging.Discard())
	assert.Error(t, err)
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	c, closeFn, err := OpenCache(ctx, &config.Config{CacheTTL: 0}, logging.Discard())
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, cache.Nop{}, c)

	c, closeFn, err = OpenCache(ctx, &config.Config{CacheTTL: time.Minute}, logging.Discard())
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &cache.Memory{}, c)
}

func TestSources(t *testing.T) {
	stores := &Stores{}

	assert.Empty(t, Sources(&config.Config{}, stores, logging.Discard()))

	cfg := &config.Config{
		KafkaBrokers:     []string{"localhost:9092"},
		KafkaTopic:       "ledger_events",
		KafkaGroupID:     "g",
		LedgerWSEndpoint: "ws://localhost:9000/ledger",
	}
	sources := Sources(cfg, stores, logging.Discard())
	require.Len(t, sources, 2)
	assert.Equal(t, "kafka:ledger_events", sources[0].Name())
	assert.Equal(t, "ws:ledger", sources[1].Name())
}
