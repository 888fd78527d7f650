package metrics

import "refractoriq/internal/report"

// Tier is a severity band shared by complexity and debt.
type Tier int

const (
	TierUnknown Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierVeryHigh
)

// Color names the display colour of a tier.
type Color string

const (
	Green  Color = "green"
	Yellow Color = "yellow"
	Orange Color = "orange"
	Red    Color = "red"
	Gray   Color = "gray"
)

var colorHex = map[Color]string{
	Green:  "#22C55E",
	Yellow: "#EAB308",
	Orange: "#F97316",
	Red:    "#EF4444",
	Gray:   "#6B7280",
}

// Hex returns the colour as #RRGGBB.
func (c Color) Hex() string {
	if h, ok := colorHex[c]; ok {
		return h
	}
	return colorHex[Gray]
}

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierVeryHigh:
		return "very high"
	}
	return "unknown"
}

// Color returns the tier's display colour.
func (t Tier) Color() Color {
	switch t {
	case TierLow:
		return Green
	case TierMedium:
		return Yellow
	case TierHigh:
		return Orange
	case TierVeryHigh:
		return Red
	}
	return Gray
}

// thresholds are inclusive upper bounds of low, medium and high.
func tierFor(n report.Num, low, medium, high float64) Tier {
	if !n.Valid {
		return TierUnknown
	}
	switch {
	case n.Value <= low:
		return TierLow
	case n.Value <= medium:
		return TierMedium
	case n.Value <= high:
		return TierHigh
	}
	return TierVeryHigh
}

// ComplexityTier bands cyclomatic complexity: ≤5, ≤10, ≤20, above.
func ComplexityTier(n report.Num) Tier {
	return tierFor(n, 5, 10, 20)
}

// DebtTier bands the debt score: ≤50, ≤100, ≤200, above.
func DebtTier(n report.Num) Tier {
	return tierFor(n, 50, 100, 200)
}

// DistributionRow is one bucket of the complexity distribution.
type DistributionRow struct {
	Label   string     `json:"label"`
	Range   string     `json:"range"`
	Count   report.Num `json:"count"`
	Percent float64    `json:"percent"`
	Tier    Tier       `json:"-"`
}

// Distribution returns the four complexity buckets with their share of the total.
func Distribution(d report.ComplexityDistribution) []DistributionRow {
	total := d.Total()
	rows := []DistributionRow{
		{Label: "Low", Range: "1-5", Count: d.Low, Tier: TierLow},
		{Label: "Medium", Range: "6-10", Count: d.Medium, Tier: TierMedium},
		{Label: "High", Range: "11-20", Count: d.High, Tier: TierHigh},
		{Label: "Very High", Range: "21+", Count: d.VeryHigh, Tier: TierVeryHigh},
	}
	for i := range rows {
		rows[i].Percent = PercentWidth(rows[i].Count, total)
	}
	return rows
}
