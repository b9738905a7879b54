package storage

import "errors"

// Ledger events are append-only, so every backend reports the same three
// failure kinds. Callers match them with errors.Is.
var (
	// ErrNotFound means the stream or cursor has nothing stored yet.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means (user_id, category, event_number) is already
	// stored. Writers treat it as a redelivery.
	ErrDuplicateKey = errors.New("duplicate key: ledger events are never overwritten")

	// ErrInvalidInput means an event or cursor failed validation before
	// reaching the backend.
	ErrInvalidInput = errors.New("invalid input")
)
