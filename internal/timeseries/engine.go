package timeseries

import (
	"goladium-analytics/internal/domain"
)

// Mode distinguishes a populated result from the "no activity" state.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeEmpty  Mode = "empty"
)

// Request describes one aggregation call.
type Request struct {
	Range        RangeKey
	NowMs        int64
	HasHistory   bool  // stream has recorded events at all
	FirstEventMs int64 // first recorded event, used by ALL
	Limit        int   // keep only the most recent Limit candles; 0 keeps all
}

// Result is the aggregated series for one request.
// Stats is nil in ModeEmpty.
type Result struct {
	Range         RangeKey
	Resolution    domain.Resolution
	Mode          Mode
	WindowStartMs int64
	WindowEndMs   int64
	Candles       []domain.Candle
	Stats         *domain.PeriodStats
}

// Engine runs range resolution, bucketing and summarizing.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	Resolver   Resolver
	Bucketizer Bucketizer
}

// NewEngine creates an engine with the given point budget and gap policy.
func NewEngine(maxPoints int, gaps GapPolicy) *Engine {
	return &Engine{
		Resolver:   NewResolver(maxPoints),
		Bucketizer: Bucketizer{Gaps: gaps},
	}
}

// Bounds returns the window a request covers, so callers can fetch exactly those events.
func (e *Engine) Bounds(req Request) (int64, int64, error) {
	return e.Resolver.Bounds(req.Range, req.NowMs, Hints{
		HasHistory:   req.HasHistory,
		FirstEventMs: req.FirstEventMs,
	})
}

// Aggregate turns events into a Result. Events outside the request window are
// ignored; the whole input must still be in chronological order.
func (e *Engine) Aggregate(req Request, events []domain.Event) (*Result, error) {
	start, end, err := e.Bounds(req)
	if err != nil {
		return nil, err
	}

	inWindow, err := filterWindow(events, start, end)
	if err != nil {
		return nil, err
	}

	w, err := e.Resolver.Resolve(req.Range, req.NowMs, Hints{
		HasHistory:   req.HasHistory,
		FirstEventMs: req.FirstEventMs,
		EventCount:   len(inWindow),
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Range:         req.Range,
		Resolution:    w.Resolution,
		WindowStartMs: w.StartMs,
		WindowEndMs:   w.EndMs,
	}

	if len(inWindow) == 0 {
		result.Mode = ModeEmpty
		return result, nil
	}

	series, err := e.Bucketizer.Bucketize(inWindow, w)
	if err != nil {
		return nil, err
	}

	stats, err := Summarize(series, inWindow)
	if err != nil {
		return nil, err
	}

	candles := series.Candles
	if req.Limit > 0 && len(candles) > req.Limit {
		candles = candles[len(candles)-req.Limit:]
	}

	result.Mode = ModeNormal
	result.Candles = candles
	result.Stats = &stats
	return result, nil
}

// filterWindow returns the sub-slice of events inside [start, end).
// Ordering is checked across the full input.
func filterWindow(events []domain.Event, start, end int64) ([]domain.Event, error) {
	lo, hi := len(events), len(events)
	for i := range events {
		ts := events[i].TimestampMs
		if i > 0 && ts < events[i-1].TimestampMs {
			return nil, &UnsortedInputError{Index: i, PrevMs: events[i-1].TimestampMs, GotMs: ts}
		}
		if ts >= start && lo == len(events) {
			lo = i
		}
		if ts >= end && hi == len(events) {
			hi = i
		}
	}
	if lo > hi {
		lo = hi
	}
	return events[lo:hi], nil
}
