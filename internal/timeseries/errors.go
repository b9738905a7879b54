package timeseries

import (
	"errors"
	"fmt"
)

// Sentinel errors; the typed errors below match them through errors.Is.
var (
	ErrInvalidRange  = errors.New("invalid range")
	ErrUnsortedInput = errors.New("events are not in chronological order")
	ErrOutsideWindow = errors.New("event outside aggregation window")
	ErrEmptySeries   = errors.New("cannot summarize empty series")
	ErrBrokenChain   = errors.New("value_after does not follow from delta")
	ErrBadResolution = errors.New("unknown resolution")
	ErrInvalidWindow = errors.New("window end must be after start")
)

// InvalidRangeError reports an unrecognized range key. Callers must default or reject.
type InvalidRangeError struct {
	Key string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %q", e.Key)
}

func (e *InvalidRangeError) Is(target error) bool {
	return target == ErrInvalidRange
}

// UnsortedInputError reports the first event whose timestamp goes backwards.
type UnsortedInputError struct {
	Index  int   // index of the offending event
	PrevMs int64 // timestamp of events[Index-1]
	GotMs  int64 // timestamp of events[Index]
}

func (e *UnsortedInputError) Error() string {
	return fmt.Sprintf("event %d at %d precedes previous event at %d", e.Index, e.GotMs, e.PrevMs)
}

func (e *UnsortedInputError) Is(target error) bool {
	return target == ErrUnsortedInput
}

// ChainBreakError reports the first event violating value_after[i] == value_after[i-1] + delta[i].
type ChainBreakError struct {
	Index    int
	Expected float64
	Got      float64
}

func (e *ChainBreakError) Error() string {
	return fmt.Sprintf("event %d: expected value_after %.6f, got %.6f", e.Index, e.Expected, e.Got)
}

func (e *ChainBreakError) Is(target error) bool {
	return target == ErrBrokenChain
}
