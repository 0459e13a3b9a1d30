package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestBaselineMasonryInCharleston(t *testing.T) {
	t.Parallel()
	score := Baseline("Masonry in Charleston", "", "")
	require.Equal(t, 57, score)
	require.Equal(t, 61, WithValueBoost(score, ptr(600_000)))
}

func TestBaselineNoSignals(t *testing.T) {
	t.Parallel()
	require.Equal(t, 35, Baseline("", "", ""))
}

func TestBaselineDiminishingReturns(t *testing.T) {
	t.Parallel()
	// five masonry hits: 14 + min(4,3)*3
	score := Baseline("brick brick brick brick brick", "", "")
	require.Equal(t, 35+14+9, score)
}

func TestBaselineKeywords(t *testing.T) {
	t.Parallel()
	require.Equal(t, 63, Baseline("Masonry in Charleston", "", "masonry CHARLESTON"))
	require.Equal(t, 57, Baseline("Masonry in Charleston", "", "roofing"))
}

func TestBaselineNegativeSignals(t *testing.T) {
	t.Parallel()
	require.Equal(t, 25, Baseline("Janitorial services", "", ""))
	require.Equal(t, 1, Baseline(strings.Repeat("janitorial ", 6), "", ""))
}

func TestBaselineBounds(t *testing.T) {
	t.Parallel()
	heavy := "historic restoration masonry brick stucco structural foundation waterproofing facade " +
		"Charleston ADA abatement renovation repair construction bid"
	require.Equal(t, 99, Baseline(heavy, heavy, "historic masonry charleston"))
	require.Equal(t, 99, WithValueBoost(Baseline(heavy, "", ""), ptr(1_000_000)))
}

func TestWithValueBoost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		score int
		value *float64
		want  int
	}{
		{"absent value", 50, nil, 50},
		{"below tiers", 50, ptr(99_999), 50},
		{"mid tier", 50, ptr(100_000), 52},
		{"top tier", 50, ptr(500_000), 54},
		{"capped", 98, ptr(750_000), 99},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, WithValueBoost(tc.score, tc.value))
		})
	}
}
