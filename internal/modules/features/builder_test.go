package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/chainsight/internal/domain"
	chtest "github.com/chainsight/chainsight/internal/testing"
)

func TestColumnsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cols := cfg.Columns()

	// 4 lags + 3 windows * 4 aggs + 4 cyclical + 4 calendar
	assert.Len(t, cols, 4+12+8)
	assert.Equal(t, cols, cfg.Columns())
	assert.Equal(t, "lag_1", cols[0])
	assert.Equal(t, "roll_7_mean", cols[4])
	assert.Equal(t, "is_holiday_season", cols[len(cols)-1])
}

func TestMinHistory(t *testing.T) {
	assert.Equal(t, 30, DefaultConfig().MinHistory())
	assert.Equal(t, 7, Config{Lags: []int{1, 7}, Windows: []int{3}}.MinHistory())
}

func TestBuildDropsWarmupRows(t *testing.T) {
	dates, demand := chtest.GenerateDailyDemand(90, 1)

	m, err := Build(dates, demand, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 30, m.Dropped)
	assert.Len(t, m.Rows, 60)
	assert.Len(t, m.Targets, 60)
	assert.Equal(t, dates[30], m.Dates[0])
	for _, row := range m.Rows {
		assert.Len(t, row, len(m.Columns))
	}
}

func TestBuildInsufficientHistory(t *testing.T) {
	dates, demand := chtest.GenerateDailyDemand(20, 1)

	_, err := Build(dates, demand, DefaultConfig())
	require.Error(t, err)

	var insufficient *domain.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 31, insufficient.Required)
	assert.Equal(t, 20, insufficient.Available)
}

func TestLagAndRollingUseStrictlyPastRows(t *testing.T) {
	cfg := Config{Lags: []int{1, 2}, Windows: []int{3}}

	dates := make([]time.Time, 6)
	for i := range dates {
		dates[i] = chtest.FixtureStart.AddDate(0, 0, i)
	}
	demand := []float64{10, 20, 30, 40, 50, 60}

	m, err := Build(dates, demand, cfg)
	require.NoError(t, err)
	require.Len(t, m.Rows, 3)

	// First kept row targets demand[3]=40; its features only see 10,20,30.
	first := m.Rows[0]
	assert.InDelta(t, 30, first[0], 1e-9) // lag_1
	assert.InDelta(t, 20, first[1], 1e-9) // lag_2
	assert.InDelta(t, 20, first[2], 1e-9) // roll_3_mean over {10,20,30}
	assert.InDelta(t, 10, first[4], 1e-9) // roll_3_min
	assert.InDelta(t, 30, first[5], 1e-9) // roll_3_max
	assert.InDelta(t, 40, m.Targets[0], 1e-9)
}

func TestRowMatchesBuild(t *testing.T) {
	cfg := DefaultConfig()
	dates, demand := chtest.GenerateDailyDemand(60, 3)

	m, err := Build(dates, demand, cfg)
	require.NoError(t, err)

	// Row over the first 30 observations must reproduce Build's first row.
	row, err := Row(dates[30], demand[:30], cfg)
	require.NoError(t, err)
	assert.Equal(t, m.Rows[0], row)
}

func TestRowCalendarFeatures(t *testing.T) {
	cfg := Config{Lags: []int{1}, Windows: []int{2}}
	history := []float64{5, 7}

	saturday := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)
	row, err := Row(saturday, history, cfg)
	require.NoError(t, err)

	cols := cfg.Columns()
	byName := make(map[string]float64, len(cols))
	for i, c := range cols {
		byName[c] = row[i]
	}

	assert.InDelta(t, 11, byName["month"], 1e-9)
	assert.InDelta(t, 4, byName["quarter"], 1e-9)
	assert.InDelta(t, 1, byName["is_weekend"], 1e-9)
	assert.InDelta(t, 1, byName["is_holiday_season"], 1e-9)
}
