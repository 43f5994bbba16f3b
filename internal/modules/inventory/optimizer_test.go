package inventory

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
	chtest "github.com/chainsight/chainsight/internal/testing"
)

func TestEOQ(t *testing.T) {
	got, err := EOQ(10000, 50, 2)
	require.NoError(t, err)
	assert.InDelta(t, 707.11, got, 0.01)

	zero, err := EOQ(0, 50, 2)
	require.NoError(t, err)
	assert.Zero(t, zero)
}

func TestEOQInvalidInputs(t *testing.T) {
	tests := []struct {
		name      string
		demand    float64
		order     float64
		holding   float64
		wantField string
	}{
		{"zero holding cost", 1000, 50, 0, "holding_cost"},
		{"negative holding cost", 1000, 50, -1, "holding_cost"},
		{"negative demand", -1, 50, 2, "annual_demand"},
		{"negative order cost", 1000, -5, 2, "order_cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EOQ(tt.demand, tt.order, tt.holding)
			var invalid *domain.InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantField, invalid.Field)
		})
	}
}

func TestSafetyStock(t *testing.T) {
	// z(0.95) = 1.6449; ss = z * 10 * sqrt(4) = 32.90
	got, err := SafetyStock(0.95, 10, 4)
	require.NoError(t, err)
	assert.InDelta(t, 1.6449*10*2, got, 0.01)

	// Higher service level demands more stock.
	higher, err := SafetyStock(0.99, 10, 4)
	require.NoError(t, err)
	assert.Greater(t, higher, got)

	// Zero variability needs no buffer.
	none, err := SafetyStock(0.95, 0, 4)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestSafetyStockInvalidServiceLevel(t *testing.T) {
	for _, sl := range []float64{0, 1, -0.5, 1.5} {
		_, err := SafetyStock(sl, 10, 4)
		var invalid *domain.InvalidInputError
		require.ErrorAs(t, err, &invalid, "service level %v", sl)
		assert.Equal(t, "service_level", invalid.Field)
	}
}

func TestReorderPoint(t *testing.T) {
	got, err := ReorderPoint(20, 5, 33)
	require.NoError(t, err)
	assert.InDelta(t, 133, got, 1e-9)

	_, err = ReorderPoint(-1, 5, 33)
	var invalid *domain.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig() // Multiplier 1.5

	tests := []struct {
		name  string
		level float64
		want  Status
	}{
		{"below reorder point", 99, StatusUnderstock},
		{"at reorder point", 100, StatusBalanced},
		{"within band", 200, StatusBalanced},
		{"at overstock threshold", 100 + 1.5*80, StatusBalanced},
		{"above overstock threshold", 100 + 1.5*80 + 1, StatusOverstock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.level, 100, 80, cfg))
		})
	}
}

func TestAnalyzeAll(t *testing.T) {
	acc := dataset.New(chtest.GenerateOrders(600, 9))
	opt := New(DefaultConfig(), zerolog.Nop())

	policies, err := opt.AnalyzeAll(acc)
	require.NoError(t, err)
	require.NotEmpty(t, policies)

	for _, p := range policies {
		assert.GreaterOrEqual(t, p.Orders, minCategoryOrders)
		assert.Greater(t, p.AvgDailyDemand, 0.0)
		assert.InDelta(t, p.AvgDailyDemand*365, p.AnnualDemand, 1e-6)
		assert.Greater(t, p.EOQ, 0.0)
		assert.GreaterOrEqual(t, p.SafetyStock, 0.0)
		assert.GreaterOrEqual(t, p.ReorderPoint, p.SafetyStock)
		assert.Contains(t, []Status{StatusUnderstock, StatusOverstock, StatusBalanced}, p.Status)
		assert.False(t, math.IsNaN(p.DemandCV))
	}

	// Ordered by the closed category set, so category names are unique.
	seen := map[string]bool{}
	for _, p := range policies {
		assert.False(t, seen[p.Category])
		seen[p.Category] = true
	}
}

func TestRecommendations(t *testing.T) {
	opt := New(DefaultConfig(), zerolog.Nop())

	policies := []Policy{
		{
			Category: "Toys", Status: StatusUnderstock,
			CurrentLevel: 10, ReorderPoint: 100, EOQ: 50,
			AvgDailyDemand: 5, AnnualDemand: 1825,
		},
		{
			Category: "Garden", Status: StatusOverstock,
			CurrentLevel: 900, ReorderPoint: 100, EOQ: 50,
			AvgDailyDemand: 5, AnnualDemand: 1825, DemandCV: 90,
		},
	}

	recs := opt.Recommendations(policies)
	require.NotEmpty(t, recs)

	var priorities []string
	for _, r := range recs {
		assert.NotEmpty(t, r.Action)
		assert.NotEmpty(t, r.Reason)
		priorities = append(priorities, r.Priority)
	}
	assert.Contains(t, priorities, "High")
}
