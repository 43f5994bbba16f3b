package forecast

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/boost"
	"github.com/chainsight/chainsight/internal/modules/features"
	chtest "github.com/chainsight/chainsight/internal/testing"
)

func testSeries(days int) []dataset.DailyPoint {
	dates, demand := chtest.GenerateDailyDemand(days, 11)
	series := make([]dataset.DailyPoint, days)
	for i := range series {
		series[i] = dataset.DailyPoint{Date: dates[i], Demand: demand[i]}
	}
	return series
}

func testHP() boost.Hyperparameters {
	hp := boost.DefaultHyperparameters()
	hp.Trees = 40
	hp.MaxDepth = 4
	hp.LearningRate = 0.1
	return hp
}

func trainTestModel(t *testing.T, days int) *Model {
	t.Helper()
	model, err := NewTrainer(zerolog.Nop()).Train(testSeries(days), features.DefaultConfig(), testHP())
	require.NoError(t, err)
	return model
}

func TestTrainProducesHoldoutMetrics(t *testing.T) {
	model := trainTestModel(t, 180)

	m := model.Metrics()
	assert.Greater(t, m.RMSE, 0.0)
	assert.Greater(t, m.MAE, 0.0)
	assert.GreaterOrEqual(t, m.RMSE, m.MAE)
	// Strong weekly seasonality in the fixture series should be learnable.
	assert.Greater(t, m.R2, 0.5)
}

func TestTrainInsufficientHistory(t *testing.T) {
	_, err := NewTrainer(zerolog.Nop()).Train(testSeries(15), features.DefaultConfig(), testHP())
	require.Error(t, err)

	var insufficient *domain.InsufficientHistoryError
	assert.ErrorAs(t, err, &insufficient)
}

func TestForecastHorizonAndOrdering(t *testing.T) {
	model := trainTestModel(t, 150)

	points, err := model.Forecast(30)
	require.NoError(t, err)
	require.Len(t, points, 30)

	last := chtest.FixtureStart.AddDate(0, 0, 149)
	assert.Equal(t, last.AddDate(0, 0, 1), points[0].Date)
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i].Date.After(points[i-1].Date), "dates must be strictly increasing")
	}
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.GreaterOrEqual(t, p.Lower, 0.0)
		assert.LessOrEqual(t, p.Lower, p.Value)
		assert.GreaterOrEqual(t, p.Upper, p.Value)
	}
}

func TestForecastIsDeterministic(t *testing.T) {
	model := trainTestModel(t, 150)

	a, err := model.Forecast(14)
	require.NoError(t, err)
	b, err := model.Forecast(14)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForecastInvalidHorizon(t *testing.T) {
	model := trainTestModel(t, 150)

	_, err := model.Forecast(0)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "horizon", invalid.Field)
}

func TestForecastUntrained(t *testing.T) {
	var model *Model
	_, err := model.Forecast(10)

	var untrained *domain.UntrainedModelError
	require.ErrorAs(t, err, &untrained)
	assert.Equal(t, "forecast", untrained.Model)
}

func TestPredictRejectsMismatchedColumns(t *testing.T) {
	model := trainTestModel(t, 150)

	_, err := model.Predict([]string{"lag_1", "bogus"}, [][]float64{{1, 2}})
	var mismatch *domain.FeatureMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, model.Columns(), mismatch.Expected)
}

func TestImportancesPreferLagFeatures(t *testing.T) {
	model := trainTestModel(t, 180)

	imps := model.Importances()
	require.NotEmpty(t, imps)

	var total float64
	for _, imp := range imps {
		total += imp.Importance
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}
