package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"goladium-analytics/internal/timeseries"
)

// Redis is a ResultCache backed by Redis string keys.
// Each user has an index set listing its keys so invalidation does not need KEYS scans.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis cache. ttl must be positive.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

var _ ResultCache = (*Redis)(nil)

func indexKey(userID string) string {
	return "history:idx:" + userID
}

// Get loads and decodes a cached result.
func (r *Redis) Get(ctx context.Context, key Key) (*timeseries.Result, error) {
	data, err := r.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var result timeseries.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &result, nil
}

// Set stores result and registers its key in the user's index.
func (r *Redis) Set(ctx context.Context, key Key, result *timeseries.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	idx := indexKey(key.UserID)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key.String(), data, r.ttl)
	pipe.SAdd(ctx, idx, key.String())
	pipe.Expire(ctx, idx, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// InvalidateUser deletes every key listed in the user's index, then the index.
func (r *Redis) InvalidateUser(ctx context.Context, userID string) error {
	idx := indexKey(userID)
	keys, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("list keys of %s: %w", userID, err)
	}

	pipe := r.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate %s: %w", userID, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
