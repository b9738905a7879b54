package timeseries

import (
	"strings"

	"goladium-analytics/internal/domain"
)

// RangeKey is a symbolic chart range.
type RangeKey string

const (
	Range1D  RangeKey = "1D"
	Range1W  RangeKey = "1W"
	Range1M  RangeKey = "1M"
	Range3M  RangeKey = "3M"
	Range6M  RangeKey = "6M"
	Range1Y  RangeKey = "1Y"
	RangeAll RangeKey = "ALL"
)

// DefaultMaxPoints is the point budget used when Resolver.MaxPoints is unset.
const DefaultMaxPoints = 500

// rangeDurations holds the lookback of every fixed-length range.
var rangeDurations = map[RangeKey]int64{
	Range1D: domain.DayMs,
	Range1W: 7 * domain.DayMs,
	Range1M: 30 * domain.DayMs,
	Range3M: 90 * domain.DayMs,
	Range6M: 180 * domain.DayMs,
	Range1Y: 365 * domain.DayMs,
}

// rangeCandidates lists resolutions from finest to coarsest.
// Resolve picks the first that fits the point budget.
var rangeCandidates = map[RangeKey][]domain.Resolution{
	Range1D:  {domain.ResolutionRaw, domain.ResolutionMinute, domain.ResolutionFiveMinute, domain.ResolutionHour},
	Range1W:  {domain.ResolutionHour, domain.ResolutionSixHour, domain.ResolutionDay},
	Range1M:  {domain.ResolutionDay, domain.ResolutionWeek},
	Range3M:  {domain.ResolutionDay, domain.ResolutionWeek},
	Range6M:  {domain.ResolutionDay, domain.ResolutionWeek},
	Range1Y:  {domain.ResolutionDay, domain.ResolutionWeek},
	RangeAll: {domain.ResolutionHour, domain.ResolutionDay, domain.ResolutionWeek},
}

// AllRanges lists the supported keys in ascending length.
var AllRanges = []RangeKey{Range1D, Range1W, Range1M, Range3M, Range6M, Range1Y, RangeAll}

// ParseRange validates a range key. Surrounding whitespace is ignored; keys are case-sensitive.
func ParseRange(s string) (RangeKey, error) {
	key := RangeKey(strings.TrimSpace(s))
	if _, ok := rangeCandidates[key]; !ok {
		return "", &InvalidRangeError{Key: s}
	}
	return key, nil
}

// Window is a resolved aggregation window [StartMs, EndMs) with its bucket resolution.
type Window struct {
	StartMs    int64
	EndMs      int64
	Resolution domain.Resolution
}

// Hints carries the event-store facts a range needs to resolve.
type Hints struct {
	HasHistory   bool  // stream has at least one recorded event
	FirstEventMs int64 // timestamp of the first recorded event (ALL range)
	EventCount   int   // events inside the window (raw resolution budget)
}

// Resolver maps range keys to windows under a point budget.
type Resolver struct {
	MaxPoints int
}

// NewResolver creates a resolver. maxPoints <= 0 selects DefaultMaxPoints.
func NewResolver(maxPoints int) Resolver {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return Resolver{MaxPoints: maxPoints}
}

func (r Resolver) budget() int {
	if r.MaxPoints <= 0 {
		return DefaultMaxPoints
	}
	return r.MaxPoints
}

// Bounds returns the window [start, end) for key. The end is nowMs+1 so that
// events stamped exactly at now are included.
// ALL starts at the first recorded event; with no history it collapses to [now, now+1).
func (r Resolver) Bounds(key RangeKey, nowMs int64, hints Hints) (int64, int64, error) {
	end := nowMs + 1

	if key == RangeAll {
		if !hints.HasHistory || hints.FirstEventMs > nowMs {
			return nowMs, end, nil
		}
		return hints.FirstEventMs, end, nil
	}

	d, ok := rangeDurations[key]
	if !ok {
		return 0, 0, &InvalidRangeError{Key: string(key)}
	}
	return end - d, end, nil
}

// Resolve returns the window and the finest candidate resolution whose point
// count fits the budget, falling back to the coarsest candidate.
func (r Resolver) Resolve(key RangeKey, nowMs int64, hints Hints) (Window, error) {
	start, end, err := r.Bounds(key, nowMs, hints)
	if err != nil {
		return Window{}, err
	}

	candidates := rangeCandidates[key]
	budget := r.budget()

	chosen := candidates[len(candidates)-1]
	for _, res := range candidates {
		if res == domain.ResolutionRaw {
			if hints.EventCount <= budget {
				chosen = res
				break
			}
			continue
		}
		if BucketCount(start, end, res) <= budget {
			chosen = res
			break
		}
	}

	return Window{StartMs: start, EndMs: end, Resolution: chosen}, nil
}

// BucketCount returns the number of aligned buckets of res that intersect [start, end).
// Raw resolution has no fixed bucket count and returns 0.
func BucketCount(start, end int64, res domain.Resolution) int {
	width := res.WidthMs()
	if width == 0 || end <= start {
		return 0
	}
	first := AlignDown(start, res)
	last := AlignDown(end-1, res)
	return int((last-first)/width) + 1
}

// weekOffsetMs shifts week alignment from the epoch (a Thursday) to Monday 00:00 UTC.
const weekOffsetMs = 4 * domain.DayMs

// AlignDown returns the start of the res bucket containing ts.
func AlignDown(ts int64, res domain.Resolution) int64 {
	width := res.WidthMs()
	if width == 0 {
		return ts
	}
	if res == domain.ResolutionWeek {
		return floorDiv(ts-weekOffsetMs, width)*width + weekOffsetMs
	}
	return floorDiv(ts, width) * width
}

// floorDiv rounds toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
