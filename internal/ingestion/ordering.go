package ingestion

import (
	"errors"
	"fmt"
	"sort"

	"goladium-analytics/internal/domain"
)

// ErrInvalidOrdering is returned for an event stamped earlier than the event
// numbered before it in the same stream.
var ErrInvalidOrdering = errors.New("event timestamp precedes its predecessor")

// streamKey identifies one ledger stream.
type streamKey struct {
	UserID   string
	Category domain.Category
}

// SortByStream orders events by (user_id ASC, category ASC, event_number ASC).
// Event numbers, not timestamps, define the order inside a stream.
func SortByStream(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

// checkSuccessor reports whether e may follow prev in a stream. Stores read
// streams in timestamp order, so an event numbered after prev but stamped
// before it would be aggregated out of place.
func checkSuccessor(prev, e *domain.Event) error {
	if prev == nil || e.TimestampMs >= prev.TimestampMs {
		return nil
	}
	return fmt.Errorf("%w: event %d at %d, event %d at %d",
		ErrInvalidOrdering, e.EventNumber, e.TimestampMs, prev.EventNumber, prev.TimestampMs)
}

// groupByStream splits events sorted by SortByStream into per-stream runs,
// returned in key order.
func groupByStream(events []*domain.Event) ([]streamKey, map[streamKey][]*domain.Event) {
	groups := make(map[streamKey][]*domain.Event)
	var keys []streamKey
	for _, e := range events {
		k := streamKey{e.UserID, e.Category}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], e)
	}
	return keys, groups
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (user_id ASC, category ASC, event_number ASC)
func compareEvents(a, b *domain.Event) int {
	if a.UserID != b.UserID {
		if a.UserID < b.UserID {
			return -1
		}
		return 1
	}
	if a.Category != b.Category {
		if a.Category < b.Category {
			return -1
		}
		return 1
	}
	if a.EventNumber != b.EventNumber {
		if a.EventNumber < b.EventNumber {
			return -1
		}
		return 1
	}
	return 0
}
