package history

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
)

// Recent-event limits.
const (
	DefaultRecentLimit = 30
	MinRecentLimit     = 10
	MaxRecentLimit     = 100
)

// ClampRecentLimit maps a requested limit into [MinRecentLimit, MaxRecentLimit].
// Zero or negative means the default.
func ClampRecentLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit < MinRecentLimit:
		return MinRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}

// RecentStats summarizes the returned events.
type RecentStats struct {
	Current       float64
	Highest       float64
	Lowest        float64
	Range         float64
	PercentChange float64 // against the value before the oldest returned event; 0 when that is 0
}

// RecentResult is the latest slice of a stream.
type RecentResult struct {
	Events      []domain.Event // chronological
	TotalEvents int            // events in the whole stream
	Limit       int
	Stats       RecentStats
}

// RecentEvents returns the most recent events of a stream with summary stats.
func (s *Service) RecentEvents(ctx context.Context, userID string, category domain.Category, limit int) (*RecentResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", storage.ErrInvalidInput)
	}
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: invalid category %q", storage.ErrInvalidInput, category)
	}
	limit = ClampRecentLimit(limit)

	events, err := s.store.GetRecent(ctx, userID, category, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent events: %w", ErrStoreUnavailable, err)
	}
	total, err := s.store.Count(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %w", ErrStoreUnavailable, err)
	}

	return &RecentResult{
		Events:      events,
		TotalEvents: total,
		Limit:       limit,
		Stats:       recentStats(events),
	}, nil
}

func recentStats(events []domain.Event) RecentStats {
	if len(events) == 0 {
		return RecentStats{}
	}

	base := events[0].ValueBefore()
	st := RecentStats{
		Current: events[len(events)-1].ValueAfter,
		Highest: events[0].ValueAfter,
		Lowest:  events[0].ValueAfter,
	}
	for i := 1; i < len(events); i++ {
		v := events[i].ValueAfter
		if v > st.Highest {
			st.Highest = v
		}
		if v < st.Lowest {
			st.Lowest = v
		}
	}
	st.Range = st.Highest - st.Lowest

	if base != 0 {
		b := decimal.NewFromFloat(base)
		st.PercentChange = decimal.NewFromFloat(st.Current).Sub(b).
			Div(b.Abs()).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return st
}
