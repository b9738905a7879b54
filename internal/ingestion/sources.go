package ingestion

import (
	"context"

	"goladium-analytics/internal/domain"
)

// Delivery is a group of events received together from one source.
type Delivery struct {
	Source string
	Events []*domain.Event

	// PositionMs is the latest event timestamp in the delivery. The runner
	// saves it as the source's resume cursor once the events are stored.
	PositionMs int64

	// Ack confirms the delivery to the source after it is stored. May be nil.
	Ack func(ctx context.Context) error
}

// Source provides ledger events from an external feed.
type Source interface {
	// Name is the stable cursor key of the source.
	Name() string

	// Subscribe returns a channel of deliveries. The channel is closed when the
	// context is cancelled or the source gives up.
	Subscribe(ctx context.Context) (<-chan Delivery, error)
}

// newDelivery builds a delivery and computes its position.
func newDelivery(source string, events []*domain.Event, ack func(ctx context.Context) error) Delivery {
	d := Delivery{Source: source, Events: events, Ack: ack}
	for _, e := range events {
		if e.TimestampMs > d.PositionMs {
			d.PositionMs = e.TimestampMs
		}
	}
	return d
}
