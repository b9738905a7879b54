package domain

// Category identifies which ledger an event belongs to.
// Each (user_id, category) pair is an independent stream with its own running value.
type Category string

const (
	CategoryFinancial Category = "financial" // balance ledger
	CategoryInventory Category = "inventory" // inventory value ledger
)

// String returns the string representation of Category.
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is a valid value.
func (c Category) IsValid() bool {
	return c == CategoryFinancial || c == CategoryInventory
}

// EventType is the closed enumeration of ledger event kinds.
type EventType string

const (
	EventTypeBet            EventType = "bet"
	EventTypeWin            EventType = "win"
	EventTypePurchase       EventType = "purchase"
	EventTypeSale           EventType = "sale"
	EventTypeTradeIn        EventType = "trade_in"
	EventTypeTradeOut       EventType = "trade_out"
	EventTypeReward         EventType = "reward"
	EventTypeGamepassReward EventType = "gamepass_reward"
	EventTypeAdminAdjust    EventType = "admin_adjust"
	EventTypeDrop           EventType = "drop"
	EventTypeQuest          EventType = "quest"
)

// AllEventTypes lists every event type in declaration order.
var AllEventTypes = []EventType{
	EventTypeBet,
	EventTypeWin,
	EventTypePurchase,
	EventTypeSale,
	EventTypeTradeIn,
	EventTypeTradeOut,
	EventTypeReward,
	EventTypeGamepassReward,
	EventTypeAdminAdjust,
	EventTypeDrop,
	EventTypeQuest,
}

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is part of the enumeration.
func (t EventType) IsValid() bool {
	for _, v := range AllEventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// categoryTypes maps each ledger to the event types it may record.
var categoryTypes = map[Category]map[EventType]bool{
	CategoryFinancial: {
		EventTypeBet:         true,
		EventTypeWin:         true,
		EventTypePurchase:    true,
		EventTypeSale:        true,
		EventTypeReward:      true,
		EventTypeQuest:       true,
		EventTypeAdminAdjust: true,
	},
	CategoryInventory: {
		EventTypePurchase:       true,
		EventTypeSale:           true,
		EventTypeTradeIn:        true,
		EventTypeTradeOut:       true,
		EventTypeReward:         true,
		EventTypeGamepassReward: true,
		EventTypeAdminAdjust:    true,
		EventTypeDrop:           true,
	},
}

// Allows reports whether the category's ledger can record events of type t.
func (c Category) Allows(t EventType) bool {
	return categoryTypes[c][t]
}

// Event is one immutable balance-affecting or inventory-affecting fact.
// Corresponds to ledger_events table.
type Event struct {
	EventID     string      // deterministic ID, see idhash.ComputeEventID
	UserID      string      // owning account
	Category    Category    // ledger stream
	EventNumber int64       // per-stream sequence number, strictly increasing
	TimestampMs int64       // Unix timestamp in milliseconds
	Type        EventType   // event kind
	Delta       float64     // signed net change caused by this event
	ValueAfter  float64     // running total immediately after this event
	Detail      EventDetail // optional, variant must match Type
}

// ValueBefore reconstructs the running total before this event was applied.
func (e *Event) ValueBefore() float64 {
	return e.ValueAfter - e.Delta
}
