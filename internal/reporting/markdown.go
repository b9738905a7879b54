package reporting

import (
	"fmt"
	"sort"
	"strings"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/timeseries"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	res := r.Result

	// Header
	sb.WriteString(fmt.Sprintf("# Value History: %s (%s)\n\n", r.UserID, r.Category))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")))
	sb.WriteString(fmt.Sprintf("Range: %s | Resolution: %s | Mode: %s\n\n", res.Range, res.Resolution, res.Mode))
	sb.WriteString(fmt.Sprintf("Window: %s to %s\n\n", formatMs(res.WindowStartMs), formatMs(res.WindowEndMs)))

	if res.Mode == timeseries.ModeEmpty {
		sb.WriteString("No activity in this range.\n\n")
		writeVerification(&sb, r)
		return sb.String()
	}

	// Stats
	st := res.Stats
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Current | %.2f |\n", st.CurrentValue))
	sb.WriteString(fmt.Sprintf("| High | %.2f |\n", st.PeriodHigh))
	sb.WriteString(fmt.Sprintf("| Low | %.2f |\n", st.PeriodLow))
	sb.WriteString(fmt.Sprintf("| Change | %+.2f (%+.2f%%) |\n", st.PeriodChange, st.PercentChange))
	sb.WriteString(fmt.Sprintf("| Gained | %.2f |\n", st.TotalGained))
	sb.WriteString(fmt.Sprintf("| Lost | %.2f |\n", st.TotalLost))
	sb.WriteString(fmt.Sprintf("| Events | %d |\n", st.EventCount))
	sb.WriteString("\n")

	// Candles
	sb.WriteString("## Candles\n\n")
	sb.WriteString("| Start | Open | High | Low | Close | Events | Net | Types |\n")
	sb.WriteString("|-------|------|------|-----|-------|--------|-----|-------|\n")
	for _, c := range res.Candles {
		sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %.2f | %d | %+.2f | %s |\n",
			formatMs(c.BucketStartMs), c.Open, c.High, c.Low, c.Close, c.Volume, c.NetChange,
			breakdownString(c.Breakdown)))
	}
	sb.WriteString("\n")

	writeVerification(&sb, r)
	return sb.String()
}

func writeVerification(sb *strings.Builder, r *Report) {
	v := r.Verification
	if v == nil {
		return
	}
	sb.WriteString("## Stream Verification\n\n")
	if v.OK() {
		sb.WriteString(fmt.Sprintf("All %d events reconstruct cleanly.\n\n", v.TotalEvents))
		return
	}
	for _, b := range v.Breaks {
		sb.WriteString(fmt.Sprintf("- event %d: expected %.6f, got %.6f\n", b.EventNumber, b.Expected, b.Got))
	}
	for _, g := range v.Gaps {
		sb.WriteString(fmt.Sprintf("- missing event numbers %d..%d\n", g.After+1, g.Before-1))
	}
	for _, d := range v.Backdated {
		sb.WriteString(fmt.Sprintf("- event %d at %s precedes its predecessor at %s\n", d.EventNumber, formatMs(d.TimestampMs), formatMs(d.PrevMs)))
	}
	sb.WriteString("\n")
}

// breakdownString renders counts sorted by event type, e.g. "bet=3 win=1".
func breakdownString(m map[domain.EventType]int) string {
	keys := make([]domain.EventType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}
