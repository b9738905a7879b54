package timeseries

import (
	"math"

	"goladium-analytics/internal/domain"
)

// DefaultChainTolerance absorbs float rounding in upstream running totals.
const DefaultChainTolerance = 1e-6

// VerifyChain checks value_after[i] == value_after[i-1] + delta[i] for a
// single stream's events in order. Returns *ChainBreakError for the first violation.
func VerifyChain(events []domain.Event, tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultChainTolerance
	}
	for i := 1; i < len(events); i++ {
		expected := events[i-1].ValueAfter + events[i].Delta
		if math.Abs(expected-events[i].ValueAfter) > tolerance {
			return &ChainBreakError{Index: i, Expected: expected, Got: events[i].ValueAfter}
		}
	}
	return nil
}
