package metrics

import (
	"testing"

	"refractoriq/internal/report"
)

func TestComplexityTier(t *testing.T) {
	tests := []struct {
		in    report.Num
		want  Tier
		color Color
	}{
		{report.N(1), TierLow, Green},
		{report.N(5), TierLow, Green},
		{report.N(6), TierMedium, Yellow},
		{report.N(10), TierMedium, Yellow},
		{report.N(11), TierHigh, Orange},
		{report.N(20), TierHigh, Orange},
		{report.N(21), TierVeryHigh, Red},
		{report.Num{}, TierUnknown, Gray},
	}
	for _, tt := range tests {
		got := ComplexityTier(tt.in)
		if got != tt.want {
			t.Errorf("ComplexityTier(%v) = %v, want %v", tt.in.Value, got, tt.want)
		}
		if got.Color() != tt.color {
			t.Errorf("ComplexityTier(%v).Color() = %v, want %v", tt.in.Value, got.Color(), tt.color)
		}
	}
}

func TestDebtTier(t *testing.T) {
	tests := []struct {
		in   report.Num
		want Tier
	}{
		{report.N(0), TierLow},
		{report.N(50), TierLow},
		{report.N(50.5), TierMedium},
		{report.N(100), TierMedium},
		{report.N(200), TierHigh},
		{report.N(201), TierVeryHigh},
		{report.Num{}, TierUnknown},
	}
	for _, tt := range tests {
		if got := DebtTier(tt.in); got != tt.want {
			t.Errorf("DebtTier(%v) = %v, want %v", tt.in.Value, got, tt.want)
		}
	}
}

func TestTierString(t *testing.T) {
	if TierVeryHigh.String() != "very high" || TierUnknown.String() != "unknown" {
		t.Errorf("unexpected names %q %q", TierVeryHigh, TierUnknown)
	}
	if Color("purple").Hex() != Gray.Hex() {
		t.Error("unknown colour should fall back to gray")
	}
}

func TestDistribution(t *testing.T) {
	rows := Distribution(report.ComplexityDistribution{
		Low:      report.N(6),
		Medium:   report.N(2),
		High:     report.N(2),
		VeryHigh: report.Num{},
	})
	if len(rows) != 4 {
		t.Fatalf("len = %d", len(rows))
	}
	if rows[0].Percent != 60 || rows[1].Percent != 20 || rows[3].Percent != 0 {
		t.Errorf("percents = %v %v %v", rows[0].Percent, rows[1].Percent, rows[3].Percent)
	}
	if rows[3].Tier != TierVeryHigh || rows[3].Range != "21+" {
		t.Errorf("last row = %+v", rows[3])
	}
}
