// Package bootstrap builds the stores and cache selected by configuration.
// It is shared by the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/config"
	"goladium-analytics/internal/storage"
	chstore "goladium-analytics/internal/storage/clickhouse"
	"goladium-analytics/internal/storage/memory"
	"goladium-analytics/internal/storage/migrations"
	pgstore "goladium-analytics/internal/storage/postgres"
	sqlitestore "goladium-analytics/internal/storage/sqlite"
)

// Stores holds the ledger event store and the ingestion cursor store of one backend.
type Stores struct {
	Backend string
	Events  storage.EventStore
	Cursors storage.CursorStore
	close   func()
}

// Close releases backend connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores connects to the configured backend and applies its migrations.
func OpenStores(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Stores, error) {
	logger = logger.WithField("backend", cfg.StorageBackend)

	var stores *Stores
	switch cfg.StorageBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, events are lost on restart")
		stores = &Stores{
			Events:  memory.NewEventStore(),
			Cursors: memory.NewCursorStore(),
		}

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores = &Stores{
			Events:  pgstore.NewEventStore(pool),
			Cursors: pgstore.NewCursorStore(pool),
			close:   pool.Close,
		}

	case config.BackendClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores = &Stores{
			Events:  chstore.NewEventStore(conn),
			Cursors: chstore.NewCursorStore(conn),
			close:   func() { conn.Close() },
		}

	case config.BackendSqlite:
		db, err := sqlitestore.Open(ctx, cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunSqliteMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migrations: %w", err)
		}
		stores = &Stores{
			Events:  sqlitestore.NewEventStore(db),
			Cursors: sqlitestore.NewCursorStore(db),
			close:   func() { db.Close() },
		}

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	stores.Backend = cfg.StorageBackend
	stores.Events = NewMeteredEventStore(stores.Events, cfg.StorageBackend)
	logger.Info("storage ready")
	return stores, nil
}
