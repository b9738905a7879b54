package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/cache"
	"goladium-analytics/internal/config"
)

// OpenCache returns the result cache selected by configuration and a close func.
// CacheTTL 0 disables caching; an empty RedisAddr keeps results in process.
func OpenCache(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (cache.ResultCache, func(), error) {
	if cfg.CacheTTL == 0 {
		logger.Info("result cache disabled")
		return cache.Nop{}, func() {}, nil
	}
	if cfg.RedisAddr == "" {
		logger.WithField("ttl", cfg.CacheTTL).Info("using in-process result cache")
		return cache.NewMemory(cfg.CacheTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rc := cache.NewRedis(client, cfg.CacheTTL)
	if err := rc.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
	}
	logger.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "ttl": cfg.CacheTTL}).Info("using redis result cache")
	return rc, func() { client.Close() }, nil
}
