package domain

import (
	"errors"
	"testing"
)

func TestCheckDetail_MatchingVariant(t *testing.T) {
	if err := CheckDetail(EventTypeBet, WagerDetail{Game: "slot"}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := CheckDetail(EventTypeTradeOut, TradeDetail{TradeID: "t1"}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := CheckDetail(EventTypeDrop, nil); err != nil {
		t.Errorf("nil detail should always pass, got %v", err)
	}
}

func TestCheckDetail_Mismatch(t *testing.T) {
	err := CheckDetail(EventTypeWin, ItemDetail{ItemID: "common_chest"})
	if !errors.Is(err, ErrDetailMismatch) {
		t.Errorf("expected ErrDetailMismatch, got %v", err)
	}
}

func TestUnmarshalDetail_SelectsVariantByType(t *testing.T) {
	raw, err := MarshalDetail(TradeDetail{TradeID: "tr_1", ItemName: "Rare Chest", Counterparty: "user_2"})
	if err != nil {
		t.Fatalf("MarshalDetail failed: %v", err)
	}

	d, err := UnmarshalDetail(EventTypeTradeIn, raw)
	if err != nil {
		t.Fatalf("UnmarshalDetail failed: %v", err)
	}

	trade, ok := d.(TradeDetail)
	if !ok {
		t.Fatalf("expected TradeDetail, got %T", d)
	}
	if trade.TradeID != "tr_1" || trade.Counterparty != "user_2" {
		t.Errorf("unexpected trade detail: %+v", trade)
	}
}

func TestUnmarshalDetail_EmptyIsNil(t *testing.T) {
	for _, in := range []string{"", "null", "{}"} {
		d, err := UnmarshalDetail(EventTypeBet, []byte(in))
		if err != nil {
			t.Errorf("input %q: unexpected error %v", in, err)
		}
		if d != nil {
			t.Errorf("input %q: expected nil detail, got %+v", in, d)
		}
	}
}

func TestCategoryAllows(t *testing.T) {
	tests := []struct {
		category Category
		typ      EventType
		want     bool
	}{
		{CategoryFinancial, EventTypeBet, true},
		{CategoryFinancial, EventTypeDrop, false},
		{CategoryInventory, EventTypeTradeIn, true},
		{CategoryInventory, EventTypeWin, false},
		{CategoryInventory, EventTypeAdminAdjust, true},
	}

	for _, tt := range tests {
		if got := tt.category.Allows(tt.typ); got != tt.want {
			t.Errorf("%s.Allows(%s) = %v, want %v", tt.category, tt.typ, got, tt.want)
		}
	}
}

func TestEventValueBefore(t *testing.T) {
	e := Event{Delta: -20, ValueAfter: -6}
	if got := e.ValueBefore(); got != 14 {
		t.Errorf("expected 14, got %f", got)
	}
}
