package timeseries

import (
	"math"

	"github.com/shopspring/decimal"

	"goladium-analytics/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Summarize derives period statistics from a non-empty series and the events that built it.
//
// Totals are accumulated from event deltas, not candle closes, so intra-bucket
// swings that net to zero still count toward gains and losses.
// PercentChange is 0 when the first open is 0.
func Summarize(series domain.Series, events []domain.Event) (domain.PeriodStats, error) {
	if series.Empty || len(series.Candles) == 0 {
		return domain.PeriodStats{}, ErrEmptySeries
	}

	first := series.Candles[0]
	last := series.Candles[len(series.Candles)-1]

	high, low := first.High, first.Low
	for _, c := range series.Candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	gained, lost := decimal.Zero, decimal.Zero
	for i := range events {
		d := decimal.NewFromFloat(events[i].Delta)
		switch d.Sign() {
		case 1:
			gained = gained.Add(d)
		case -1:
			lost = lost.Sub(d)
		}
	}

	open := decimal.NewFromFloat(first.Open)
	change := decimal.NewFromFloat(last.Close).Sub(open)

	pct := 0.0
	if !open.IsZero() {
		pct = change.Div(open.Abs()).Mul(hundred).InexactFloat64()
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
	}

	return domain.PeriodStats{
		CurrentValue:  last.Close,
		PeriodHigh:    high,
		PeriodLow:     low,
		PeriodChange:  change.InexactFloat64(),
		PercentChange: pct,
		TotalGained:   gained.InexactFloat64(),
		TotalLost:     lost.InexactFloat64(),
		Range:         decimal.NewFromFloat(high).Sub(decimal.NewFromFloat(low)).InexactFloat64(),
		EventCount:    len(events),
	}, nil
}
