package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/storage"
)

func testEvent(user string, n int64, ts int64, delta, after float64) *domain.Event {
	return &domain.Event{
		EventID:     fmt.Sprintf("%s-%d", user, n),
		UserID:      user,
		Category:    domain.CategoryFinancial,
		EventNumber: n,
		TimestampMs: ts,
		Type:        domain.EventTypeBet,
		Delta:       delta,
		ValueAfter:  after,
		Detail:      domain.WagerDetail{Game: "slot"},
	}
}

func TestEventStore_InsertAndGetByTimeRange(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	events := []*domain.Event{
		testEvent("u1", 1, 1000, 10, 10),
		testEvent("u1", 2, 2000, -3, 7),
		testEvent("u1", 3, 3000, 7, 14),
	}
	for _, e := range events {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// End is exclusive.
	result, err := store.GetByTimeRange(ctx, "u1", domain.CategoryFinancial, 1000, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(result))
	}
	if result[0].EventNumber != 1 || result[1].EventNumber != 2 {
		t.Errorf("Unexpected order: %d, %d", result[0].EventNumber, result[1].EventNumber)
	}
	if result[0].Detail != (domain.WagerDetail{Game: "slot"}) {
		t.Errorf("Detail not preserved: %+v", result[0].Detail)
	}
}

func TestEventStore_StreamsAreIsolated(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testEvent("u1", 1, 1000, 5, 5)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	inv := testEvent("u1", 1, 1000, 5, 5)
	inv.Category = domain.CategoryInventory
	inv.Type = domain.EventTypeDrop
	inv.Detail = domain.ItemDetail{ItemID: "chest"}
	if err := store.Insert(ctx, inv); err != nil {
		t.Fatalf("Same event number in another category should insert, got %v", err)
	}

	n, err := store.Count(ctx, "u1", domain.CategoryFinancial)
	if err != nil || n != 1 {
		t.Errorf("Expected 1 financial event, got %d (%v)", n, err)
	}
	n, err = store.Count(ctx, "u2", domain.CategoryFinancial)
	if err != nil || n != 0 {
		t.Errorf("Expected 0 events for unknown user, got %d (%v)", n, err)
	}
}

func TestEventStore_DuplicateKey(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := testEvent("u1", 1, 1000, 1, 1)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, e); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestEventStore_InsertBulkIsAtomic(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testEvent("u1", 2, 2000, 1, 2)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	batch := []*domain.Event{
		testEvent("u1", 1, 1000, 1, 1),
		testEvent("u1", 2, 2000, 1, 2),
		testEvent("u1", 3, 3000, 1, 3),
	}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	n, _ := store.Count(ctx, "u1", domain.CategoryFinancial)
	if n != 1 {
		t.Errorf("Failed batch must not insert anything, got %d events", n)
	}

	intra := []*domain.Event{testEvent("u2", 1, 1000, 1, 1), testEvent("u2", 1, 1000, 1, 1)}
	if err := store.InsertBulk(ctx, intra); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
}

func TestEventStore_InvalidInput(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	bad := []*domain.Event{
		nil,
		testEvent("", 1, 1000, 1, 1),
		testEvent("u1", 0, 1000, 1, 1),
		{EventID: "x", UserID: "u1", Category: "savings", EventNumber: 1, Type: domain.EventTypeBet},
		{EventID: "x", UserID: "u1", Category: domain.CategoryFinancial, EventNumber: 1, Type: domain.EventTypeDrop},
		{EventID: "x", UserID: "u1", Category: domain.CategoryFinancial, EventNumber: 1, Type: domain.EventTypeBet, Detail: domain.QuestDetail{}},
	}
	for i, e := range bad {
		if err := store.Insert(ctx, e); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestEventStore_GetRecent(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := store.Insert(ctx, testEvent("u1", i, i*1000, 1, float64(i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, "u1", domain.CategoryFinancial, 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].EventNumber != 4 || recent[1].EventNumber != 5 {
		t.Errorf("Expected events 4,5 in order, got %+v", recent)
	}

	if _, err := store.GetRecent(ctx, "u1", domain.CategoryFinancial, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero limit, got %v", err)
	}
}

func TestEventStore_FirstTimestampAndLast(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	if _, err := store.FirstTimestamp(ctx, "u1", domain.CategoryFinancial); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLast(ctx, "u1", domain.CategoryFinancial); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_ = store.Insert(ctx, testEvent("u1", 2, 5000, 1, 2))
	_ = store.Insert(ctx, testEvent("u1", 1, 4000, 1, 1))

	first, err := store.FirstTimestamp(ctx, "u1", domain.CategoryFinancial)
	if err != nil || first != 4000 {
		t.Errorf("Expected first timestamp 4000, got %d (%v)", first, err)
	}

	last, err := store.GetLast(ctx, "u1", domain.CategoryFinancial)
	if err != nil {
		t.Fatalf("GetLast failed: %v", err)
	}
	if last.EventNumber != 2 {
		t.Errorf("Expected last event number 2, got %d", last.EventNumber)
	}
}

func TestEventStore_ReturnsCopies(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := testEvent("u1", 1, 1000, 1, 1)
	_ = store.Insert(ctx, e)
	e.ValueAfter = 999

	got, _ := store.GetByTimeRange(ctx, "u1", domain.CategoryFinancial, 0, 2000)
	if got[0].ValueAfter != 1 {
		t.Errorf("Store must keep its own copy, got %f", got[0].ValueAfter)
	}
}

func TestCursorStore(t *testing.T) {
	store := NewCursorStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "ws:ledger"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, &storage.SourceCursor{Source: "ws:ledger", PositionMs: 42}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	c, err := store.Get(ctx, "ws:ledger")
	if err != nil || c.PositionMs != 42 {
		t.Errorf("Expected position 42, got %+v (%v)", c, err)
	}
	if err := store.Set(ctx, &storage.SourceCursor{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
