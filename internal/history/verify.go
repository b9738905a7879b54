package history

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
	"goladium-analytics/internal/timeseries"
)

// ChainBreak is one stored event whose value_after does not follow from its predecessor.
type ChainBreak struct {
	EventNumber int64
	TimestampMs int64
	Expected    float64
	Got         float64
}

// NumberGap is a missing run of event numbers between two stored events.
type NumberGap struct {
	After  int64 // last event number before the gap
	Before int64 // first event number after the gap
}

// Backdated is a stored event stamped earlier than the event numbered before it.
type Backdated struct {
	EventNumber int64
	TimestampMs int64
	PrevMs      int64
}

// StreamReport contains the result of verifying one stored stream.
type StreamReport struct {
	UserID      string
	Category    domain.Category
	TotalEvents int
	Breaks      []ChainBreak
	Gaps        []NumberGap
	Backdated   []Backdated
}

// OK reports whether the stream reconstructs cleanly.
func (r *StreamReport) OK() bool {
	return len(r.Breaks) == 0 && len(r.Gaps) == 0 && len(r.Backdated) == 0
}

// VerifyStream replays a stored stream and reports every reconstruction break
// and event number gap. Breaks are reported, not repaired.
func (s *Service) VerifyStream(ctx context.Context, userID string, category domain.Category, tolerance float64) (*StreamReport, error) {
	if userID == "" || !category.IsValid() {
		return nil, fmt.Errorf("%w: user_id and a valid category are required", storage.ErrInvalidInput)
	}

	events, err := s.store.GetByTimeRange(ctx, userID, category, math.MinInt64, math.MaxInt64)
	if err != nil {
		return nil, fmt.Errorf("%w: load stream: %w", ErrStoreUnavailable, err)
	}
	sortByEventNumber(events)

	report := &StreamReport{
		UserID:      userID,
		Category:    category,
		TotalEvents: len(events),
	}

	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1].EventNumber, events[i].EventNumber
		if cur != prev+1 {
			report.Gaps = append(report.Gaps, NumberGap{After: prev, Before: cur})
		}
		if events[i].TimestampMs < events[i-1].TimestampMs {
			report.Backdated = append(report.Backdated, Backdated{
				EventNumber: cur,
				TimestampMs: events[i].TimestampMs,
				PrevMs:      events[i-1].TimestampMs,
			})
		}
	}

	offset := 0
	for offset < len(events) {
		err := timeseries.VerifyChain(events[offset:], tolerance)
		if err == nil {
			break
		}
		var cbe *timeseries.ChainBreakError
		if !errors.As(err, &cbe) {
			return nil, err
		}
		e := events[offset+cbe.Index]
		report.Breaks = append(report.Breaks, ChainBreak{
			EventNumber: e.EventNumber,
			TimestampMs: e.TimestampMs,
			Expected:    cbe.Expected,
			Got:         cbe.Got,
		})
		offset += cbe.Index
	}

	if !report.OK() {
		s.logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"category":  category,
			"breaks":    len(report.Breaks),
			"gaps":      len(report.Gaps),
			"backdated": len(report.Backdated),
		}).Warn("stream verification found problems")
	}
	return report, nil
}
