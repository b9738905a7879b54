// Package cache stores aggregation results keyed by (user, category, range, limit).
package cache

import (
	"context"
	"errors"
	"fmt"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/timeseries"
)

// ErrMiss is returned by Get when no fresh entry exists.
var ErrMiss = errors.New("cache miss")

// Key identifies one cached aggregation.
type Key struct {
	UserID   string
	Category domain.Category
	Range    timeseries.RangeKey
	Limit    int
}

// String returns the storage key form.
func (k Key) String() string {
	return fmt.Sprintf("history:%s:%s:%s:%d", k.UserID, k.Category, k.Range, k.Limit)
}

// ResultCache caches aggregation results.
// Entries expire after the cache TTL; ingestion also drops a user's entries
// as soon as new events for that user are stored.
type ResultCache interface {
	// Get returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, key Key) (*timeseries.Result, error)

	Set(ctx context.Context, key Key, result *timeseries.Result) error

	// InvalidateUser drops every entry of a user, across categories and ranges.
	InvalidateUser(ctx context.Context, userID string) error
}

// Nop never stores anything. Used when caching is disabled.
type Nop struct{}

var _ ResultCache = Nop{}

func (Nop) Get(context.Context, Key) (*timeseries.Result, error) { return nil, ErrMiss }

func (Nop) Set(context.Context, Key, *timeseries.Result) error { return nil }

func (Nop) InvalidateUser(context.Context, string) error { return nil }
