package ingestion

import (
	"bytes"
	"fmt"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/idhash"
	"goladium-analytics/internal/storage"
)

// LedgerMessage is the wire form of one ledger event, shared by the Kafka
// topic, the upstream WebSocket feed and the HTTP append endpoint.
type LedgerMessage struct {
	EventID     string          `json:"event_id,omitempty"`
	UserID      string          `json:"user_id" validate:"required,max=128"`
	Category    string          `json:"category" validate:"required,oneof=financial inventory"`
	EventNumber int64           `json:"event_number" validate:"gt=0"`
	TimestampMs int64           `json:"timestamp" validate:"gte=0"`
	Type        string          `json:"event_type" validate:"required"`
	Delta       float64         `json:"delta"`
	ValueAfter  float64         `json:"value_after"`
	Detail      json.RawMessage `json:"detail,omitempty"`
}

var validate = validator.New()

// ToEvent validates the message and converts it to a domain event.
// A missing event ID is derived from the stream key and event number.
func (m *LedgerMessage) ToEvent() (*domain.Event, error) {
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	typ := domain.EventType(m.Type)
	detail, err := domain.UnmarshalDetail(typ, m.Detail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	e := &domain.Event{
		EventID:     m.EventID,
		UserID:      m.UserID,
		Category:    domain.Category(m.Category),
		EventNumber: m.EventNumber,
		TimestampMs: m.TimestampMs,
		Type:        typ,
		Delta:       m.Delta,
		ValueAfter:  m.ValueAfter,
		Detail:      detail,
	}
	idhash.AssignEventID(e)

	if err := storage.CheckEvent(e); err != nil {
		return nil, err
	}
	return e, nil
}

// MessageFromEvent builds the wire form of e.
func MessageFromEvent(e *domain.Event) (LedgerMessage, error) {
	detail, err := domain.MarshalDetail(e.Detail)
	if err != nil {
		return LedgerMessage{}, fmt.Errorf("encode detail: %w", err)
	}
	return LedgerMessage{
		EventID:     e.EventID,
		UserID:      e.UserID,
		Category:    string(e.Category),
		EventNumber: e.EventNumber,
		TimestampMs: e.TimestampMs,
		Type:        string(e.Type),
		Delta:       e.Delta,
		ValueAfter:  e.ValueAfter,
		Detail:      detail,
	}, nil
}

// DecodeMessages parses a payload holding either one message or an array of messages.
func DecodeMessages(data []byte) ([]LedgerMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", storage.ErrInvalidInput)
	}

	if trimmed[0] == '[' {
		var msgs []LedgerMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("%w: decode message array: %v", storage.ErrInvalidInput, err)
		}
		return msgs, nil
	}

	var msg LedgerMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode message: %v", storage.ErrInvalidInput, err)
	}
	return []LedgerMessage{msg}, nil
}

// Rejection records a message that could not become an event.
type Rejection struct {
	Index int
	Err   error
}

// DecodeEvents decodes a payload and converts every valid message.
// Invalid messages are returned as rejections; the rest still convert.
func DecodeEvents(data []byte) ([]*domain.Event, []Rejection, error) {
	msgs, err := DecodeMessages(data)
	if err != nil {
		return nil, nil, err
	}

	events := make([]*domain.Event, 0, len(msgs))
	var rejected []Rejection
	for i := range msgs {
		e, err := msgs[i].ToEvent()
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Err: err})
			continue
		}
		events = append(events, e)
	}
	return events, rejected, nil
}
