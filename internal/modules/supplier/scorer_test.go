package supplier

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
)

func testStats() []dataset.SupplierStats {
	return []dataset.SupplierStats{
		{
			SupplierID: "SUP-GOOD", Orders: 500, OnTimeRate: 0.98,
			DefectRate: 0.01, Consistency: 0.9, AvgUnitPrice: 20,
			AvgLeadTimeDays: 2,
		},
		{
			SupplierID: "SUP-MID", Orders: 200, OnTimeRate: 0.80,
			DefectRate: 0.10, Consistency: 0.5, AvgUnitPrice: 45,
			AvgLeadTimeDays: 5,
		},
		{
			SupplierID: "SUP-BAD", Orders: 40, OnTimeRate: 0.55,
			DefectRate: 0.30, Consistency: 0.2, AvgUnitPrice: 80,
			AvgLeadTimeDays: 9,
		},
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{OnTime: 0.3, Defects: 0.3, Consistency: 0.3}

	_, err := New(cfg, zerolog.Nop())
	var invalid *domain.InvalidWeightsError
	require.ErrorAs(t, err, &invalid)
	assert.InDelta(t, 0.9, invalid.Sum, 1e-9)
}

func TestNewAcceptsWeightsWithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Volume += 5e-7 // Inside the 1e-6 tolerance

	_, err := New(cfg, zerolog.Nop())
	assert.NoError(t, err)
}

func TestLeaderboardOrdering(t *testing.T) {
	scores := newTestScorer(t).Leaderboard(testStats())
	require.Len(t, scores, 3)

	assert.Equal(t, "SUP-GOOD", scores[0].SupplierID)
	assert.Equal(t, "SUP-BAD", scores[2].SupplierID)
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1].Composite, scores[i].Composite)
	}

	// Best supplier tops every dimension, so its composite is 100.
	assert.InDelta(t, 100, scores[0].Composite, 1e-9)
	assert.Equal(t, "A", scores[0].Grade)
	assert.Empty(t, scores[0].Suggestions)

	// Worst supplier bottoms every dimension.
	assert.InDelta(t, 0, scores[2].Composite, 1e-9)
	assert.Equal(t, "F", scores[2].Grade)
}

func TestDimensionScoreRange(t *testing.T) {
	scores := newTestScorer(t).Leaderboard(testStats())
	for _, s := range scores {
		require.Len(t, s.Dimensions, 6)
		for _, d := range s.Dimensions {
			assert.GreaterOrEqual(t, d.Score, 0.0)
			assert.LessOrEqual(t, d.Score, 100.0)
		}
	}
}

func TestSuggestionsForWeakSuppliers(t *testing.T) {
	scores := newTestScorer(t).Leaderboard(testStats())

	weak := scores[2]
	require.Less(t, weak.Composite, 60.0)
	require.Len(t, weak.Suggestions, 2)

	// The two suggestions must be the supplier's lowest dimensions.
	byName := map[string]float64{}
	for _, d := range weak.Dimensions {
		byName[d.Name] = d.Score
	}
	suggested := map[string]bool{}
	var worstSuggested float64
	for _, name := range weak.Suggestions {
		suggested[name] = true
		if byName[name] > worstSuggested {
			worstSuggested = byName[name]
		}
	}
	for name, score := range byName {
		if !suggested[name] {
			assert.GreaterOrEqual(t, score, worstSuggested)
		}
	}
}

func TestLeaderboardSingleSupplierNeutral(t *testing.T) {
	scores := newTestScorer(t).Leaderboard(testStats()[:1])
	require.Len(t, scores, 1)

	// Degenerate population: every dimension scales to neutral 50.
	assert.InDelta(t, 50, scores[0].Composite, 1e-9)
	assert.Equal(t, "D", scores[0].Grade)
}

func TestGrade(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		composite float64
		want      string
	}{
		{92, "A"},
		{90, "A"},
		{89.99, "B"},
		{75, "B"},
		{60, "C"},
		{55, "D"},
		{40, "D"},
		{39.99, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Grade(tt.composite, th), "composite=%v", tt.composite)
	}
}

func TestLeaderboardEmpty(t *testing.T) {
	assert.Nil(t, newTestScorer(t).Leaderboard(nil))
}
