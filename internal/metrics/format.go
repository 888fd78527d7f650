// Package metrics formats backend metric values for display. Every function
// accepts missing or non-numeric input and renders it as NotAvailable.
package metrics

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"refractoriq/internal/report"
)

// NotAvailable is shown for missing, null or non-numeric values.
const NotAvailable = "N/A"

// FormatNumber groups thousands; non-integers keep up to two decimals.
func FormatNumber(n report.Num) string {
	if !n.Valid {
		return NotAvailable
	}
	if n.Value == math.Trunc(n.Value) && math.Abs(n.Value) < 1<<53 {
		return humanize.Comma(int64(n.Value))
	}
	return humanize.Commaf(math.Round(n.Value*100) / 100)
}

// FormatLOC abbreviates line counts above 1000 as thousands with one decimal.
func FormatLOC(n report.Num) string {
	if !n.Valid {
		return NotAvailable
	}
	if n.Value > 1000 {
		return fmt.Sprintf("%.1fK", n.Value/1000)
	}
	return humanize.Comma(int64(math.Round(n.Value)))
}

// FormatDecimal renders a value with exactly two decimals, e.g. average complexity.
func FormatDecimal(n report.Num) string {
	if !n.Valid {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f", n.Value)
}

// FormatPercent renders a 0-100 percentage with one decimal.
func FormatPercent(pct float64) string {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return NotAvailable
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatSimilarity renders a 0-1 similarity ratio as a percentage.
func FormatSimilarity(n report.Num) string {
	if !n.Valid {
		return NotAvailable
	}
	return FormatPercent(n.Value * 100)
}

// FormatScore renders a search relevance score.
func FormatScore(n report.Num) string {
	if !n.Valid {
		return NotAvailable
	}
	return fmt.Sprintf("%.3f", n.Value)
}

// PercentWidth returns part as a percentage of total, clamped to [0, 100].
// It is 0 whenever either value is missing or total is not positive.
func PercentWidth(part, total report.Num) float64 {
	if !part.Valid || !total.Valid || total.Value <= 0 {
		return 0
	}
	pct := part.Value / total.Value * 100
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// Bar draws a fixed-width bar for a percentage.
func Bar(pct float64, cells int) string {
	if cells <= 0 {
		return ""
	}
	if math.IsNaN(pct) || pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(math.Round(pct / 100 * float64(cells)))
	return strings.Repeat("█", filled) + strings.Repeat("░", cells-filled)
}

// FormatAgo renders a timestamp relative to now, e.g. "3 hours ago".
func FormatAgo(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return humanize.Time(t)
}

// FormatBytes renders a byte count, e.g. "1.2 MB".
func FormatBytes(n uint64) string {
	return humanize.Bytes(n)
}
