package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/timeseries"
)

// setupRedis starts a Redis container and returns a connected client.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
				wait.ForListeningPort("6379/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, client.Ping(ctx).Err())

	cleanup := func() {
		client.Close()
		_ = container.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedis_SetGetRoundTrip(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	c := NewRedis(client, time.Minute)
	key := Key{UserID: "u1", Category: domain.CategoryFinancial, Range: timeseries.Range1D}

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)

	want := sampleResult()
	require.NoError(t, c.Set(ctx, key, want))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ttl, err := client.TTL(ctx, key.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedis_EmptyModeRoundTrip(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	c := NewRedis(client, time.Minute)
	key := Key{UserID: "u1", Category: domain.CategoryInventory, Range: timeseries.RangeAll}

	want := &timeseries.Result{
		Range:         timeseries.RangeAll,
		Resolution:    domain.ResolutionHour,
		Mode:          timeseries.ModeEmpty,
		WindowStartMs: 5000,
		WindowEndMs:   5001,
	}
	require.NoError(t, c.Set(ctx, key, want))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, timeseries.ModeEmpty, got.Mode)
	assert.Nil(t, got.Stats)
	assert.Empty(t, got.Candles)
}

func TestRedis_InvalidateUser(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	c := NewRedis(client, time.Minute)

	k1 := Key{UserID: "u1", Category: domain.CategoryFinancial, Range: timeseries.Range1D}
	k2 := Key{UserID: "u1", Category: domain.CategoryInventory, Range: timeseries.Range1Y, Limit: 10}
	k3 := Key{UserID: "u2", Category: domain.CategoryFinancial, Range: timeseries.Range1D}
	for _, k := range []Key{k1, k2, k3} {
		require.NoError(t, c.Set(ctx, k, sampleResult()))
	}

	require.NoError(t, c.InvalidateUser(ctx, "u1"))

	_, err := c.Get(ctx, k1)
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, k2)
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, k3)
	assert.NoError(t, err)

	// Invalidating a user with no entries is a no-op.
	assert.NoError(t, c.InvalidateUser(ctx, "ghost"))
}
