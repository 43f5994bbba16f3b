package boost

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Hyperparameters configure ensemble training. The defaults mirror the
// production settings for both models.
type Hyperparameters struct {
	Trees        int
	MaxDepth     int
	LearningRate float64
	Subsample    float64 // Fraction of rows sampled per tree, (0,1]
	MinLeaf      int
	Seed         int64
}

// DefaultHyperparameters returns the standard training configuration.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Trees:        200,
		MaxDepth:     6,
		LearningRate: 0.05,
		Subsample:    0.8,
		MinLeaf:      5,
		Seed:         42,
	}
}

func (hp Hyperparameters) validate(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("row/target length mismatch: %d vs %d", len(x), len(y))
	}
	if hp.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got %d", hp.Trees)
	}
	if hp.LearningRate <= 0 || hp.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0,1], got %v", hp.LearningRate)
	}
	if hp.Subsample <= 0 || hp.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0,1], got %v", hp.Subsample)
	}
	return nil
}

// FeatureImportance pairs a feature name with its share of the total
// squared-error reduction across all splits.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Ensemble is a trained sequence of regression trees over a fixed base
// score. Immutable after training; safe for concurrent prediction.
type Ensemble struct {
	base       float64
	rate       float64
	trees      []*node
	importance []float64
	nFeatures  int
}

// NumFeatures returns the width of the rows the ensemble was trained on.
func (e *Ensemble) NumFeatures() int {
	return e.nFeatures
}

// RawScore returns the boosted sum for one row: regression prediction
// for least-squares ensembles, log-odds for logistic ones.
func (e *Ensemble) RawScore(row []float64) float64 {
	score := e.base
	for _, t := range e.trees {
		score += e.rate * t.predict(row)
	}
	return score
}

// Importances returns named importance shares in descending order.
// Features that never split are omitted.
func (e *Ensemble) Importances(columns []string) []FeatureImportance {
	var total float64
	for _, v := range e.importance {
		total += v
	}
	if total == 0 {
		return nil
	}

	out := make([]FeatureImportance, 0, len(e.importance))
	for i, v := range e.importance {
		if v == 0 {
			continue
		}
		name := fmt.Sprintf("f%d", i)
		if i < len(columns) {
			name = columns[i]
		}
		out = append(out, FeatureImportance{Feature: name, Importance: v / total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// TrainRegressor fits a least-squares boosted ensemble: the base score is
// the target mean and every tree fits the current residuals.
func TrainRegressor(x [][]float64, y []float64, hp Hyperparameters) (*Ensemble, error) {
	if err := hp.validate(x, y); err != nil {
		return nil, fmt.Errorf("regressor training: %w", err)
	}

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	e := &Ensemble{
		base:       base,
		rate:       hp.LearningRate,
		importance: make([]float64, len(x[0])),
		nFeatures:  len(x[0]),
	}

	rng := rand.New(rand.NewSource(hp.Seed))
	preds := make([]float64, len(y))
	for i := range preds {
		preds[i] = base
	}
	residuals := make([]float64, len(y))

	for t := 0; t < hp.Trees; t++ {
		for i := range y {
			residuals[i] = y[i] - preds[i]
		}

		builder := &treeBuilder{
			x:          x,
			targets:    residuals,
			maxDepth:   hp.MaxDepth,
			minLeaf:    hp.MinLeaf,
			importance: e.importance,
			leafValue: func(indices []int) float64 {
				var sum float64
				for _, i := range indices {
					sum += residuals[i]
				}
				return sum / float64(len(indices))
			},
		}

		root := builder.build(subsample(rng, len(x), hp.Subsample), 0)
		e.trees = append(e.trees, root)

		for i := range preds {
			preds[i] += hp.LearningRate * root.predict(x[i])
		}
	}

	return e, nil
}

// TrainClassifier fits a logistic boosted ensemble for binary targets
// (y values 0 or 1). The base score is the log-odds of the positive
// rate; each tree fits gradient residuals with Newton-step leaf values.
func TrainClassifier(x [][]float64, y []float64, hp Hyperparameters) (*Ensemble, error) {
	if err := hp.validate(x, y); err != nil {
		return nil, fmt.Errorf("classifier training: %w", err)
	}

	var positives float64
	for _, v := range y {
		positives += v
	}
	p := clamp(positives/float64(len(y)), 1e-6, 1-1e-6)

	e := &Ensemble{
		base:       math.Log(p / (1 - p)),
		rate:       hp.LearningRate,
		importance: make([]float64, len(x[0])),
		nFeatures:  len(x[0]),
	}

	rng := rand.New(rand.NewSource(hp.Seed))
	scores := make([]float64, len(y))
	for i := range scores {
		scores[i] = e.base
	}
	residuals := make([]float64, len(y))
	hessians := make([]float64, len(y))

	for t := 0; t < hp.Trees; t++ {
		for i := range y {
			prob := Sigmoid(scores[i])
			residuals[i] = y[i] - prob
			hessians[i] = prob * (1 - prob)
		}

		builder := &treeBuilder{
			x:          x,
			targets:    residuals,
			maxDepth:   hp.MaxDepth,
			minLeaf:    hp.MinLeaf,
			importance: e.importance,
			leafValue: func(indices []int) float64 {
				var g, h float64
				for _, i := range indices {
					g += residuals[i]
					h += hessians[i]
				}
				if h < 1e-12 {
					return 0
				}
				return g / h
			},
		}

		root := builder.build(subsample(rng, len(x), hp.Subsample), 0)
		e.trees = append(e.trees, root)

		for i := range scores {
			scores[i] += hp.LearningRate * root.predict(x[i])
		}
	}

	return e, nil
}

// PredictProba returns the positive-class probability for one row of a
// logistic ensemble.
func (e *Ensemble) PredictProba(row []float64) float64 {
	return Sigmoid(e.RawScore(row))
}

// Sigmoid maps a log-odds score to a probability.
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func subsample(rng *rand.Rand, n int, fraction float64) []int {
	if fraction >= 1 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	k := int(math.Ceil(fraction * float64(n)))
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)
	picked := perm[:k]
	sort.Ints(picked)
	return picked
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
