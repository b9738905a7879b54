package ingestion

import (
	"errors"
	"testing"

	"goladium-analytics/internal/domain"
)

func TestSortByStream(t *testing.T) {
	// Intentionally unordered events
	events := []*domain.Event{
		{UserID: "u2", Category: domain.CategoryFinancial, EventNumber: 1},
		{UserID: "u1", Category: domain.CategoryInventory, EventNumber: 2},
		{UserID: "u1", Category: domain.CategoryFinancial, EventNumber: 3},
		{UserID: "u1", Category: domain.CategoryFinancial, EventNumber: 1},
		{UserID: "u1", Category: domain.CategoryInventory, EventNumber: 1},
	}

	SortByStream(events)

	expected := []struct {
		user     string
		category domain.Category
		number   int64
	}{
		{"u1", domain.CategoryFinancial, 1},
		{"u1", domain.CategoryFinancial, 3},
		{"u1", domain.CategoryInventory, 1},
		{"u1", domain.CategoryInventory, 2},
		{"u2", domain.CategoryFinancial, 1},
	}

	for i, exp := range expected {
		e := events[i]
		if e.UserID != exp.user || e.Category != exp.category || e.EventNumber != exp.number {
			t.Errorf("Index %d: got (%s, %s, %d), want (%s, %s, %d)",
				i, e.UserID, e.Category, e.EventNumber, exp.user, exp.category, exp.number)
		}
	}
}

func TestSortByStream_Empty(t *testing.T) {
	var events []*domain.Event
	SortByStream(events) // Should not panic
}

func TestCheckSuccessor(t *testing.T) {
	prev := &domain.Event{EventNumber: 4, TimestampMs: 5000}

	tests := []struct {
		name string
		prev *domain.Event
		ts   int64
		ok   bool
	}{
		{"no predecessor", nil, 0, true},
		{"later", prev, 6000, true},
		{"same timestamp", prev, 5000, true},
		{"backdated", prev, 4999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSuccessor(tt.prev, &domain.Event{EventNumber: 5, TimestampMs: tt.ts})
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidOrdering) {
				t.Errorf("expected ErrInvalidOrdering, got %v", err)
			}
		})
	}
}

func TestGroupByStream(t *testing.T) {
	events := []*domain.Event{
		{UserID: "u1", Category: domain.CategoryFinancial, EventNumber: 1},
		{UserID: "u1", Category: domain.CategoryFinancial, EventNumber: 2},
		{UserID: "u1", Category: domain.CategoryInventory, EventNumber: 1},
	}

	keys, groups := groupByStream(events)
	if len(keys) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(keys))
	}
	if keys[0].Category != domain.CategoryFinancial || len(groups[keys[0]]) != 2 {
		t.Errorf("unexpected first group: %v %d", keys[0], len(groups[keys[0]]))
	}
	if len(groups[keys[1]]) != 1 {
		t.Errorf("unexpected second group size: %d", len(groups[keys[1]]))
	}
}
