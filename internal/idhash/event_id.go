package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"goladium-analytics/internal/domain"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(user_id|category|event_number)
// Returns the base58-encoded hash.
func ComputeEventID(userID string, category domain.Category, eventNumber int64) string {
	data := fmt.Sprintf("%s|%s|%d",
		userID,
		string(category),
		eventNumber,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// AssignEventID fills e.EventID when upstream did not supply one.
func AssignEventID(e *domain.Event) {
	if e.EventID == "" {
		e.EventID = ComputeEventID(e.UserID, e.Category, e.EventNumber)
	}
}
