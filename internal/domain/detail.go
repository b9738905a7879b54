package domain

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// DetailKind tags the EventDetail variants.
type DetailKind string

const (
	DetailKindWager      DetailKind = "wager"
	DetailKindItem       DetailKind = "item"
	DetailKindTrade      DetailKind = "trade"
	DetailKindQuest      DetailKind = "quest"
	DetailKindAdjustment DetailKind = "adjustment"
)

// ErrDetailMismatch is returned when a detail variant does not belong to the event type.
var ErrDetailMismatch = errors.New("event detail does not match event type")

// EventDetail is the type-specific payload of an Event.
// Each variant carries only the fields relevant to the event types it serves.
type EventDetail interface {
	Kind() DetailKind
}

// WagerDetail describes a bet or a win.
type WagerDetail struct {
	Game   string `json:"game,omitempty"`
	SlotID string `json:"slot_id,omitempty"`
}

// ItemDetail describes an item entering or leaving through shop, reward or drop.
type ItemDetail struct {
	ItemID   string `json:"item_id,omitempty"`
	ItemName string `json:"item_name,omitempty"`
	Source   string `json:"source,omitempty"`
}

// TradeDetail describes one side of a player-to-player trade.
type TradeDetail struct {
	TradeID      string `json:"trade_id,omitempty"`
	ItemID       string `json:"item_id,omitempty"`
	ItemName     string `json:"item_name,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
}

// QuestDetail describes a quest payout.
type QuestDetail struct {
	QuestID string `json:"quest_id,omitempty"`
	Source  string `json:"source,omitempty"`
}

// AdjustmentDetail describes a manual correction.
type AdjustmentDetail struct {
	AdminID string `json:"admin_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (WagerDetail) Kind() DetailKind      { return DetailKindWager }
func (ItemDetail) Kind() DetailKind       { return DetailKindItem }
func (TradeDetail) Kind() DetailKind      { return DetailKindTrade }
func (QuestDetail) Kind() DetailKind      { return DetailKindQuest }
func (AdjustmentDetail) Kind() DetailKind { return DetailKindAdjustment }

// DetailKindFor returns the detail variant an event type carries.
func DetailKindFor(t EventType) DetailKind {
	switch t {
	case EventTypeBet, EventTypeWin:
		return DetailKindWager
	case EventTypePurchase, EventTypeSale, EventTypeReward, EventTypeGamepassReward, EventTypeDrop:
		return DetailKindItem
	case EventTypeTradeIn, EventTypeTradeOut:
		return DetailKindTrade
	case EventTypeQuest:
		return DetailKindQuest
	case EventTypeAdminAdjust:
		return DetailKindAdjustment
	default:
		return ""
	}
}

// CheckDetail returns ErrDetailMismatch if d is set and is not the variant for t.
func CheckDetail(t EventType, d EventDetail) error {
	if d == nil {
		return nil
	}
	if d.Kind() != DetailKindFor(t) {
		return fmt.Errorf("%w: %s cannot carry %s detail", ErrDetailMismatch, t, d.Kind())
	}
	return nil
}

// MarshalDetail encodes a detail for storage. A nil detail encodes to nil.
func MarshalDetail(d EventDetail) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// UnmarshalDetail decodes a stored detail into the variant selected by t.
// Empty input yields a nil detail.
func UnmarshalDetail(t EventType, data []byte) (EventDetail, error) {
	if len(data) == 0 || string(data) == "null" || string(data) == "{}" {
		return nil, nil
	}

	switch DetailKindFor(t) {
	case DetailKindWager:
		var d WagerDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode wager detail: %w", err)
		}
		return d, nil
	case DetailKindItem:
		var d ItemDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode item detail: %w", err)
		}
		return d, nil
	case DetailKindTrade:
		var d TradeDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode trade detail: %w", err)
		}
		return d, nil
	case DetailKindQuest:
		var d QuestDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode quest detail: %w", err)
		}
		return d, nil
	case DetailKindAdjustment:
		var d AdjustmentDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode adjustment detail: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}
