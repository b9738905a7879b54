package timeseries

import (
	"fmt"
	"strings"

	"goladium-analytics/internal/domain"
)

// GapPolicy selects which resolutions get synthesized empty buckets.
type GapPolicy int

const (
	// GapFillAlways synthesizes empty buckets for every fixed-width resolution.
	GapFillAlways GapPolicy = iota
	// GapFillSubDaily synthesizes empty buckets only below day width.
	// Day and week series omit buckets without events.
	GapFillSubDaily
)

// String returns the config name of the policy.
func (p GapPolicy) String() string {
	switch p {
	case GapFillSubDaily:
		return "subdaily"
	default:
		return "always"
	}
}

// ParseGapPolicy parses "always" or "subdaily".
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return GapFillAlways, nil
	case "subdaily", "sub_daily":
		return GapFillSubDaily, nil
	default:
		return GapFillAlways, fmt.Errorf("unknown gap policy %q", s)
	}
}

// Bucketizer groups a sorted event stream into candles.
// The zero value fills every gap.
type Bucketizer struct {
	Gaps GapPolicy
}

func (b Bucketizer) fills(res domain.Resolution) bool {
	if b.Gaps == GapFillSubDaily {
		return res.WidthMs() < domain.DayMs
	}
	return true
}

// Bucketize emits one candle per bucket of w in a single forward pass.
//
// Events must be non-decreasing by timestamp and lie inside [w.StartMs, w.EndMs).
// Fixed-width buckets are aligned to the resolution and clipped to the window.
// Raw resolution emits one candle per distinct timestamp.
//
// Empty input returns a Series with Empty set and no error.
func (b Bucketizer) Bucketize(events []domain.Event, w Window) (domain.Series, error) {
	if w.EndMs <= w.StartMs {
		return domain.Series{}, fmt.Errorf("%w: [%d, %d)", ErrInvalidWindow, w.StartMs, w.EndMs)
	}
	if !w.Resolution.IsValid() {
		return domain.Series{}, fmt.Errorf("%w: %q", ErrBadResolution, w.Resolution)
	}
	if len(events) == 0 {
		return domain.Series{Resolution: w.Resolution, Empty: true}, nil
	}

	var (
		candles []domain.Candle
		err     error
	)
	if w.Resolution == domain.ResolutionRaw {
		candles, err = bucketizeRaw(events, w)
	} else {
		candles, err = b.bucketizeFixed(events, w)
	}
	if err != nil {
		return domain.Series{}, err
	}

	return domain.Series{Resolution: w.Resolution, Candles: candles}, nil
}

func (b Bucketizer) bucketizeFixed(events []domain.Event, w Window) ([]domain.Candle, error) {
	res := w.Resolution
	width := res.WidthMs()
	fill := b.fills(res)

	var candles []domain.Candle
	if fill {
		candles = make([]domain.Candle, 0, BucketCount(w.StartMs, w.EndMs, res))
	}

	// Buckets before the first event hold the value the stream had entering the window.
	carry := events[0].ValueBefore()
	i, n := 0, len(events)

	for bs := AlignDown(w.StartMs, res); bs < w.EndMs; bs += width {
		if !fill {
			if i >= n {
				break
			}
			// Skip straight to the next populated bucket.
			if next := AlignDown(events[i].TimestampMs, res); next > bs {
				bs = next
			}
			if bs >= w.EndMs {
				break
			}
		}

		be := bs + width
		c := domain.Candle{
			BucketStartMs: max(bs, w.StartMs),
			BucketEndMs:   min(be, w.EndMs),
		}

		for i < n && events[i].TimestampMs < be {
			if err := checkEvent(events, i, w); err != nil {
				return nil, err
			}
			accumulate(&c, &events[i])
			i++
		}

		if c.Volume == 0 {
			if !fill {
				continue
			}
			c.Open, c.High, c.Low, c.Close = carry, carry, carry, carry
		}
		c.NetChange = c.Close - c.Open
		carry = c.Close
		candles = append(candles, c)
	}

	if i < n {
		return nil, checkTrailing(events, i, w)
	}
	return candles, nil
}

func bucketizeRaw(events []domain.Event, w Window) ([]domain.Candle, error) {
	var candles []domain.Candle
	i, n := 0, len(events)

	for i < n {
		if err := checkEvent(events, i, w); err != nil {
			return nil, err
		}
		ts := events[i].TimestampMs
		c := domain.Candle{BucketStartMs: ts}

		for i < n && events[i].TimestampMs == ts {
			if err := checkEvent(events, i, w); err != nil {
				return nil, err
			}
			accumulate(&c, &events[i])
			i++
		}
		c.NetChange = c.Close - c.Open
		candles = append(candles, c)
	}

	// Each raw candle runs until the next one starts.
	for k := range candles {
		if k+1 < len(candles) {
			candles[k].BucketEndMs = candles[k+1].BucketStartMs
		} else {
			candles[k].BucketEndMs = w.EndMs
		}
	}
	return candles, nil
}

// accumulate folds e into c. The first event sets open.
func accumulate(c *domain.Candle, e *domain.Event) {
	v := e.ValueAfter
	if c.Volume == 0 {
		c.Open, c.High, c.Low = v, v, v
		c.Breakdown = make(map[domain.EventType]int)
	}
	if v > c.High {
		c.High = v
	}
	if v < c.Low {
		c.Low = v
	}
	c.Close = v
	c.Volume++
	c.Breakdown[e.Type]++
}

// checkEvent validates ordering before window membership so that a
// backwards timestamp is always reported as unsorted input.
func checkEvent(events []domain.Event, i int, w Window) error {
	ts := events[i].TimestampMs
	if i > 0 && ts < events[i-1].TimestampMs {
		return &UnsortedInputError{Index: i, PrevMs: events[i-1].TimestampMs, GotMs: ts}
	}
	if ts < w.StartMs || ts >= w.EndMs {
		return fmt.Errorf("%w: event %d at %d not in [%d, %d)", ErrOutsideWindow, i, ts, w.StartMs, w.EndMs)
	}
	return nil
}

// checkTrailing reports why events[i:] were not consumed.
func checkTrailing(events []domain.Event, from int, w Window) error {
	for i := from; i < len(events); i++ {
		if err := checkEvent(events, i, w); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %d events past window end %d", ErrOutsideWindow, len(events)-from, w.EndMs)
}
