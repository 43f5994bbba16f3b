package boost

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallHP() Hyperparameters {
	hp := DefaultHyperparameters()
	hp.Trees = 50
	hp.MaxDepth = 3
	hp.LearningRate = 0.1
	hp.MinLeaf = 2
	return hp
}

func TestTrainRegressorLearnsStepFunction(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var x [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		v := rng.Float64() * 10
		target := 5.0
		if v > 5 {
			target = 20.0
		}
		x = append(x, []float64{v, rng.Float64()}) // Second feature is noise
		y = append(y, target+rng.NormFloat64()*0.1)
	}

	e, err := TrainRegressor(x, y, smallHP())
	require.NoError(t, err)

	assert.InDelta(t, 5.0, e.RawScore([]float64{2, 0.5}), 1.0)
	assert.InDelta(t, 20.0, e.RawScore([]float64{8, 0.5}), 1.0)
}

func TestTrainRegressorDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	var x [][]float64
	var y []float64
	for i := 0; i < 100; i++ {
		v := rng.Float64()
		x = append(x, []float64{v})
		y = append(y, 3*v+1)
	}

	a, err := TrainRegressor(x, y, smallHP())
	require.NoError(t, err)
	b, err := TrainRegressor(x, y, smallHP())
	require.NoError(t, err)

	probe := []float64{0.37}
	assert.Equal(t, a.RawScore(probe), b.RawScore(probe))
}

func TestTrainClassifierSeparatesClasses(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var x [][]float64
	var y []float64
	for i := 0; i < 300; i++ {
		v := rng.Float64() * 10
		label := 0.0
		if v > 6 {
			label = 1.0
		}
		x = append(x, []float64{v})
		y = append(y, label)
	}

	e, err := TrainClassifier(x, y, smallHP())
	require.NoError(t, err)

	low := e.PredictProba([]float64{1})
	high := e.PredictProba([]float64{9})
	assert.Less(t, low, 0.2)
	assert.Greater(t, high, 0.8)
}

func TestPredictProbaRange(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}}
	y := []float64{0, 0, 0, 0, 1, 1, 1, 1}

	hp := smallHP()
	hp.MinLeaf = 1
	e, err := TrainClassifier(x, y, hp)
	require.NoError(t, err)

	for v := -5.0; v <= 12; v++ {
		p := e.PredictProba([]float64{v})
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestImportancesRankInformativeFeature(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	var x [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		signal := rng.Float64()
		noise := rng.Float64()
		x = append(x, []float64{noise, signal})
		y = append(y, 10*signal)
	}

	e, err := TrainRegressor(x, y, smallHP())
	require.NoError(t, err)

	imps := e.Importances([]string{"noise", "signal"})
	require.NotEmpty(t, imps)
	assert.Equal(t, "signal", imps[0].Feature)

	var total float64
	for _, imp := range imps {
		total += imp.Importance
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestTrainValidation(t *testing.T) {
	valid := [][]float64{{1}, {2}, {3}, {4}}
	targets := []float64{1, 2, 3, 4}

	tests := []struct {
		name string
		x    [][]float64
		y    []float64
		hp   Hyperparameters
	}{
		{"empty set", nil, nil, DefaultHyperparameters()},
		{"length mismatch", valid, targets[:2], DefaultHyperparameters()},
		{"zero trees", valid, targets, Hyperparameters{Trees: 0, LearningRate: 0.1, Subsample: 1}},
		{"bad rate", valid, targets, Hyperparameters{Trees: 10, LearningRate: 0, Subsample: 1}},
		{"bad subsample", valid, targets, Hyperparameters{Trees: 10, LearningRate: 0.1, Subsample: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainRegressor(tt.x, tt.y, tt.hp)
			assert.Error(t, err)
			_, err = TrainClassifier(tt.x, tt.y, tt.hp)
			assert.Error(t, err)
		})
	}
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-9)
	assert.Greater(t, Sigmoid(10), 0.999)
	assert.Less(t, Sigmoid(-10), 0.001)
	assert.False(t, math.IsNaN(Sigmoid(-1000)))
}
