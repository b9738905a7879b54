// Package history answers value-history and recent-event queries for one
// user's ledger stream by combining the event store, the aggregation engine
// and the result cache.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/cache"
	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/observability"
	"goladium-analytics/internal/storage"
	"goladium-analytics/internal/timeseries"
)

// ErrStoreUnavailable wraps event store failures. Callers must not serve
// partial data when they see it.
var ErrStoreUnavailable = errors.New("event store unavailable")

// Query is one value-history request.
type Query struct {
	UserID   string
	Category domain.Category
	Range    timeseries.RangeKey
	Limit    int
}

// Service serves history queries.
type Service struct {
	store  storage.EventStore
	engine *timeseries.Engine
	cache  cache.ResultCache
	now    func() time.Time
	logger logrus.FieldLogger
}

// Options configures a Service.
type Options struct {
	EventStore storage.EventStore
	Engine     *timeseries.Engine // default: DefaultMaxPoints, GapFillAlways
	Cache      cache.ResultCache  // default: no caching
	Now        func() time.Time   // default: time.Now
	Logger     logrus.FieldLogger
}

// NewService creates a history service.
func NewService(opts Options) *Service {
	engine := opts.Engine
	if engine == nil {
		engine = timeseries.NewEngine(timeseries.DefaultMaxPoints, timeseries.GapFillAlways)
	}
	c := opts.Cache
	if c == nil {
		c = cache.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:  opts.EventStore,
		engine: engine,
		cache:  c,
		now:    now,
		logger: logger.WithField("component", "history"),
	}
}

// ValueHistory aggregates the stream into candles and period stats for the
// requested range. A stream with no events in range yields ModeEmpty.
func (s *Service) ValueHistory(ctx context.Context, q Query) (*timeseries.Result, error) {
	if q.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", storage.ErrInvalidInput)
	}
	if !q.Category.IsValid() {
		return nil, fmt.Errorf("%w: invalid category %q", storage.ErrInvalidInput, q.Category)
	}
	if _, err := timeseries.ParseRange(string(q.Range)); err != nil {
		return nil, err
	}

	key := cache.Key{UserID: q.UserID, Category: q.Category, Range: q.Range, Limit: q.Limit}
	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		observability.RecordCacheResult("hit")
		return cached, nil
	case errors.Is(err, cache.ErrMiss):
		observability.RecordCacheResult("miss")
	default:
		observability.RecordCacheResult("error")
		s.logger.WithError(err).Warn("cache read failed")
	}

	start := time.Now()
	result, err := s.aggregate(ctx, q)
	if err != nil {
		return nil, err
	}
	observability.RecordAggregation(string(result.Range), result.Resolution.String(), string(result.Mode), len(result.Candles), time.Since(start))

	if err := s.cache.Set(ctx, key, result); err != nil {
		s.logger.WithError(err).Warn("cache write failed")
	}
	return result, nil
}

func (s *Service) aggregate(ctx context.Context, q Query) (*timeseries.Result, error) {
	req := timeseries.Request{
		Range: q.Range,
		NowMs: s.now().UnixMilli(),
		Limit: q.Limit,
	}

	first, err := s.store.FirstTimestamp(ctx, q.UserID, q.Category)
	switch {
	case err == nil:
		req.HasHistory = true
		req.FirstEventMs = first
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("%w: first timestamp: %w", ErrStoreUnavailable, err)
	}

	startMs, endMs, err := s.engine.Bounds(req)
	if err != nil {
		return nil, err
	}

	var events []domain.Event
	if req.HasHistory {
		events, err = s.store.GetByTimeRange(ctx, q.UserID, q.Category, startMs, endMs)
		if err != nil {
			return nil, fmt.Errorf("%w: load events: %w", ErrStoreUnavailable, err)
		}
		// Stores return timestamp order; the ledger's order is event number.
		// Any disagreement surfaces as an unsorted input error.
		sortByEventNumber(events)
	}

	result, err := s.engine.Aggregate(req, events)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s/%s %s: %w", q.UserID, q.Category, q.Range, err)
	}
	return result, nil
}

func sortByEventNumber(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventNumber < events[j].EventNumber
	})
}
