package domain

// Resolution is the bucket width used to group events into candles.
type Resolution string

const (
	ResolutionRaw        Resolution = "raw"         // one candle per distinct timestamp
	ResolutionMinute     Resolution = "minute"      // 1 minute
	ResolutionFiveMinute Resolution = "five_minute" // 5 minutes
	ResolutionHour       Resolution = "hour"        // 1 hour
	ResolutionSixHour    Resolution = "six_hour"    // 6 hours
	ResolutionDay        Resolution = "day"         // 24 hours, UTC midnight aligned
	ResolutionWeek       Resolution = "week"        // 7 days, Monday 00:00 UTC aligned
)

// Bucket widths in milliseconds.
const (
	MinuteMs int64 = 60 * 1000
	HourMs         = 60 * MinuteMs
	DayMs          = 24 * HourMs
	WeekMs         = 7 * DayMs
)

// WidthMs returns the bucket width in milliseconds. Raw resolution has width 0.
func (r Resolution) WidthMs() int64 {
	switch r {
	case ResolutionMinute:
		return MinuteMs
	case ResolutionFiveMinute:
		return 5 * MinuteMs
	case ResolutionHour:
		return HourMs
	case ResolutionSixHour:
		return 6 * HourMs
	case ResolutionDay:
		return DayMs
	case ResolutionWeek:
		return WeekMs
	default:
		return 0
	}
}

// IsValid checks if the resolution is a known value.
func (r Resolution) IsValid() bool {
	return r == ResolutionRaw || r.WidthMs() > 0
}

// String returns the string representation of Resolution.
func (r Resolution) String() string {
	return string(r)
}

// Candle is one bucket's open/high/low/close/volume summary.
// Interval is [BucketStartMs, BucketEndMs).
type Candle struct {
	BucketStartMs int64
	BucketEndMs   int64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        int // number of events in bucket
	NetChange     float64
	Breakdown     map[EventType]int
}

// Series is an ordered sequence of candles with strictly increasing BucketStartMs.
type Series struct {
	Resolution Resolution
	Candles    []Candle
	// Empty is true when no events fed the series. A series of all-zero
	// candles is not empty.
	Empty bool
}

// PeriodStats summarizes a full Series.
type PeriodStats struct {
	CurrentValue  float64
	PeriodHigh    float64
	PeriodLow     float64
	PeriodChange  float64 // last.Close - first.Open
	PercentChange float64 // 0 when first.Open == 0
	TotalGained   float64 // sum of positive deltas
	TotalLost     float64 // sum of negative deltas, as a magnitude
	Range         float64 // PeriodHigh - PeriodLow
	EventCount    int
}
