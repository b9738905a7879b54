package api

import (
	"github.com/shopspring/decimal"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/history"
	"goladium-analytics/internal/ingestion"
	"goladium-analytics/internal/timeseries"
)

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CandleDTO is one chart point.
type CandleDTO struct {
	Timestamp int64          `json:"timestamp"`
	BucketEnd int64          `json:"bucket_end"`
	Open      float64        `json:"open"`
	High      float64        `json:"high"`
	Low       float64        `json:"low"`
	Close     float64        `json:"close"`
	Volume    int            `json:"volume"`
	NetChange float64        `json:"net_change"`
	Breakdown map[string]int `json:"breakdown"`
}

// StatsDTO carries period statistics.
type StatsDTO struct {
	CurrentProfit float64 `json:"current_profit"`
	PeriodHigh    float64 `json:"period_high"`
	PeriodLow     float64 `json:"period_low"`
	PeriodChange  float64 `json:"period_change"`
	PercentChange float64 `json:"percent_change"`
	TotalWon      float64 `json:"total_won"`
	TotalLost     float64 `json:"total_lost"`
	Range         float64 `json:"range"`
	EventCount    int     `json:"event_count"`
}

// ValueHistoryResponse is the body of GET value-history.
type ValueHistoryResponse struct {
	Range       string      `json:"range"`
	Resolution  string      `json:"resolution"`
	Mode        string      `json:"mode"`
	WindowStart int64       `json:"window_start"`
	WindowEnd   int64       `json:"window_end"`
	Candles     []CandleDTO `json:"candles"`
	Stats       *StatsDTO   `json:"stats"`
}

// NewValueHistoryResponse converts a result into its wire form, rounding values to cents.
func NewValueHistoryResponse(r *timeseries.Result) ValueHistoryResponse {
	resp := ValueHistoryResponse{
		Range:       string(r.Range),
		Resolution:  r.Resolution.String(),
		Mode:        string(r.Mode),
		WindowStart: r.WindowStartMs,
		WindowEnd:   r.WindowEndMs,
		Candles:     make([]CandleDTO, 0, len(r.Candles)),
	}
	for _, c := range r.Candles {
		resp.Candles = append(resp.Candles, newCandleDTO(c))
	}
	if r.Stats != nil {
		resp.Stats = newStatsDTO(r.Stats)
	}
	return resp
}

func newCandleDTO(c domain.Candle) CandleDTO {
	breakdown := make(map[string]int, len(c.Breakdown))
	for t, n := range c.Breakdown {
		breakdown[string(t)] = n
	}
	return CandleDTO{
		Timestamp: c.BucketStartMs,
		BucketEnd: c.BucketEndMs,
		Open:      round2(c.Open),
		High:      round2(c.High),
		Low:       round2(c.Low),
		Close:     round2(c.Close),
		Volume:    c.Volume,
		NetChange: round2(c.NetChange),
		Breakdown: breakdown,
	}
}

func newStatsDTO(s *domain.PeriodStats) *StatsDTO {
	return &StatsDTO{
		CurrentProfit: round2(s.CurrentValue),
		PeriodHigh:    round2(s.PeriodHigh),
		PeriodLow:     round2(s.PeriodLow),
		PeriodChange:  round2(s.PeriodChange),
		PercentChange: round2(s.PercentChange),
		TotalWon:      round2(s.TotalGained),
		TotalLost:     round2(s.TotalLost),
		Range:         round2(s.Range),
		EventCount:    s.EventCount,
	}
}

// RecentStatsDTO summarizes the returned events.
type RecentStatsDTO struct {
	Current       float64 `json:"current"`
	Highest       float64 `json:"highest"`
	Lowest        float64 `json:"lowest"`
	Range         float64 `json:"range"`
	PercentChange float64 `json:"percent_change"`
}

// RecentEventsResponse is the body of GET events.
type RecentEventsResponse struct {
	UserID      string                    `json:"user_id"`
	Category    string                    `json:"category"`
	Events      []ingestion.LedgerMessage `json:"events"`
	TotalEvents int                       `json:"total_events"`
	Limit       int                       `json:"limit"`
	Stats       RecentStatsDTO            `json:"stats"`
}

func newRecentEventsResponse(userID string, category domain.Category, r *history.RecentResult) (RecentEventsResponse, error) {
	resp := RecentEventsResponse{
		UserID:      userID,
		Category:    string(category),
		Events:      make([]ingestion.LedgerMessage, 0, len(r.Events)),
		TotalEvents: r.TotalEvents,
		Limit:       r.Limit,
		Stats: RecentStatsDTO{
			Current:       round2(r.Stats.Current),
			Highest:       round2(r.Stats.Highest),
			Lowest:        round2(r.Stats.Lowest),
			Range:         round2(r.Stats.Range),
			PercentChange: round2(r.Stats.PercentChange),
		},
	}
	for i := range r.Events {
		msg, err := ingestion.MessageFromEvent(&r.Events[i])
		if err != nil {
			return RecentEventsResponse{}, err
		}
		resp.Events = append(resp.Events, msg)
	}
	return resp, nil
}

// RejectionDTO reports one event the append endpoint refused.
type RejectionDTO struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// AppendResponse is the body of POST events.
type AppendResponse struct {
	Stored      int            `json:"stored"`
	Duplicates  int            `json:"duplicates"`
	ChainBreaks int            `json:"chain_breaks"`
	Rejected    []RejectionDTO `json:"rejected"`
}
