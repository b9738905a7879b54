// Package reporting renders value history results for terminals and files.
package reporting

import (
	"time"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/history"
	"goladium-analytics/internal/timeseries"
)

// Report is one rendered value history query.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	UserID      string
	Category    domain.Category

	// Aggregation
	Result *timeseries.Result

	// Stream verification, optional
	Verification *history.StreamReport
}

// New builds a report for a finished query.
func New(q history.Query, result *timeseries.Result, generatedAt time.Time) *Report {
	return &Report{
		GeneratedAt: generatedAt.UTC(),
		UserID:      q.UserID,
		Category:    q.Category,
		Result:      result,
	}
}

// formatMs renders a Unix millisecond timestamp as RFC3339 UTC.
func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
