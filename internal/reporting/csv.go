package reporting

import (
	"encoding/csv"
	"io"
	"strconv"

	"goladium-analytics/internal/domain"
)

// WriteCSV writes one row per candle.
func WriteCSV(w io.Writer, candles []domain.Candle) error {
	cw := csv.NewWriter(w)

	// Header
	if err := cw.Write([]string{
		"bucket_start_ms", "bucket_end_ms", "open", "high", "low", "close",
		"volume", "net_change",
	}); err != nil {
		return err
	}

	// Rows
	for _, c := range candles {
		if err := cw.Write([]string{
			strconv.FormatInt(c.BucketStartMs, 10),
			strconv.FormatInt(c.BucketEndMs, 10),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			strconv.Itoa(c.Volume),
			formatFloat(c.NetChange),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
