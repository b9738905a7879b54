// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"goladium-analytics/internal/timeseries"
)

// Storage backends.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
	BackendSqlite     = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// HTTP
	HTTPAddr       string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Storage
	StorageBackend string
	PostgresDSN    string
	ClickHouseDSN  string
	SqlitePath     string

	// Cache. Empty RedisAddr selects the in-process cache; CacheTTL 0 disables caching.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Aggregation
	MaxPoints int
	GapPolicy timeseries.GapPolicy

	// Ingestion. Each source is enabled when its endpoint is set.
	KafkaBrokers        []string
	KafkaTopic          string
	KafkaGroupID        string
	LedgerWSEndpoint    string
	IngestBatchSize     int
	IngestFlushInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the environment.
// All validation problems are returned together.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string
	var err error

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	if cfg.RequestTimeout, err = getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		errs = append(errs, err.Error())
	} else if cfg.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT must be positive")
	}

	if cfg.RateLimitRPS, err = getEnvAsFloat("RATE_LIMIT_RPS", 20); err != nil {
		errs = append(errs, err.Error())
	} else if cfg.RateLimitRPS < 0 {
		errs = append(errs, "RATE_LIMIT_RPS cannot be negative")
	}

	if cfg.RateLimitBurst, err = getEnvAsInt("RATE_LIMIT_BURST", 40); err != nil {
		errs = append(errs, err.Error())
	} else if cfg.RateLimitBurst < 0 {
		errs = append(errs, "RATE_LIMIT_BURST cannot be negative")
	}

	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory))
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", "")
	cfg.ClickHouseDSN = getEnv("CLICKHOUSE_DSN", "")
	cfg.SqlitePath = getEnv("SQLITE_PATH", "./data/ledger.db")

	switch cfg.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN must be set for postgres backend")
		}
	case BackendClickHouse:
		if cfg.ClickHouseDSN == "" {
			errs = append(errs, "CLICKHOUSE_DSN must be set for clickhouse backend")
		}
	case BackendSqlite:
		if cfg.SqlitePath == "" {
			errs = append(errs, "SQLITE_PATH must be set for sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown STORAGE_BACKEND %q", cfg.StorageBackend))
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.CacheTTL, err = getEnvAsDuration("CACHE_TTL", 30*time.Second); err != nil {
		errs = append(errs, err.Error())
	} else if cfg.CacheTTL < 0 {
		errs = append(errs, "CACHE_TTL cannot be negative")
	}

	if cfg.MaxPoints, err = getEnvAsInt("MAX_POINTS", timeseries.DefaultMaxPoints); err != nil {
		errs = append(errs, err.Error())
	} else if cfg.MaxPoints <= 0 {
		errs = append(errs, "MAX_POINTS must be positive")
	}

	if cfg.GapPolicy, err = timeseries.ParseGapPolicy(getEnv("GAP_POLICY", "always")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid GAP_POLICY: %v", err))
	}

	cfg.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "ledger_events")
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", "goladium-analytics")
	cfg.LedgerWSEndpoint = getEnv("LEDGER_WS_ENDPOINT", "")

	if cfg.IngestBatchSize, err = getEnvAsInt("INGEST_BATCH_SIZE", 200); err != nil {
		errs = append(errs, err.Error())
	} else if cfg.IngestBatchSize <= 0 {
		errs = append(errs, "INGEST_BATCH_SIZE must be positive")
	}
	if cfg.IngestFlushInterval, err = getEnvAsDuration("INGEST_FLUSH_INTERVAL", time.Second); err != nil {
		errs = append(errs, err.Error())
	} else if cfg.IngestFlushInterval <= 0 {
		errs = append(errs, "INGEST_FLUSH_INTERVAL must be positive")
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")

	if len(errs) > 0 {
		return nil, errors.New("config validation failed: " + strings.Join(errs, "; "))
	}
	return cfg, nil
}

// KafkaEnabled reports whether the Kafka source is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// WSEnabled reports whether the upstream WebSocket source is configured.
func (c *Config) WSEnabled() bool {
	return c.LedgerWSEndpoint != ""
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, s)
	}
	return v, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", key, s)
	}
	return v, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a duration", key, s)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
