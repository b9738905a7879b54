package storage

import (
	"fmt"
	"sort"

	"goladium-analytics/internal/domain"
)

// CheckEvent rejects events that cannot be keyed or ordered.
// Returns an error wrapping ErrInvalidInput.
func CheckEvent(e *domain.Event) error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil event", ErrInvalidInput)
	case e.EventID == "":
		return fmt.Errorf("%w: missing event_id", ErrInvalidInput)
	case e.UserID == "":
		return fmt.Errorf("%w: missing user_id", ErrInvalidInput)
	case !e.Category.IsValid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, e.Category)
	case !e.Type.IsValid():
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, e.Type)
	case !e.Category.Allows(e.Type):
		return fmt.Errorf("%w: %s ledger does not record %s events", ErrInvalidInput, e.Category, e.Type)
	case e.EventNumber <= 0:
		return fmt.Errorf("%w: event_number must be positive", ErrInvalidInput)
	case e.TimestampMs < 0:
		return fmt.Errorf("%w: negative timestamp", ErrInvalidInput)
	}
	if err := domain.CheckDetail(e.Type, e.Detail); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// SortEvents orders events by (timestamp_ms, event_number) ASC in place.
func SortEvents(events []domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].TimestampMs != events[j].TimestampMs {
			return events[i].TimestampMs < events[j].TimestampMs
		}
		return events[i].EventNumber < events[j].EventNumber
	})
}
