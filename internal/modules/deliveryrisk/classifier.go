// Package deliveryrisk predicts late-delivery probability per order with
// a gradient-boosted binary classifier over point-in-time order features.
package deliveryrisk

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/boost"
)

// Risk band thresholds on late probability.
const (
	bandHigh   = 0.7
	bandMedium = 0.4
)

// Minimum records to train on.
const minTrainingRecords = 20

// Test-split fraction for evaluation.
const testFraction = 0.2

// featureColumns is the fixed, ordered feature set. Categorical fields
// are encoded as indices into the closed code sets (-1 for unknown codes
// at inference); interactions follow the numeric block.
var featureColumns = []string{
	"unit_price", "quantity", "revenue", "discount", "lead_time_days",
	"inventory_level", "order_month", "order_quarter", "order_dow",
	"category_idx", "region_idx", "shipping_mode_idx",
	"price_x_quantity", "discount_x_price", "leadtime_x_quantity",
}

// OrderContext describes a prospective order for what-if scoring. No
// historical context is needed; all features are point-in-time.
type OrderContext struct {
	OrderDate      time.Time `json:"order_date"`
	Category       string    `json:"category"`
	Region         string    `json:"region"`
	ShippingMode   string    `json:"shipping_mode"`
	Quantity       float64   `json:"quantity"`
	UnitPrice      float64   `json:"unit_price"`
	Discount       float64   `json:"discount"`
	InventoryLevel float64   `json:"inventory_level"`
	LeadTimeDays   float64   `json:"lead_time_days"`
}

func (c OrderContext) featureRow() []float64 {
	revenue := c.UnitPrice * c.Quantity * (1 - c.Discount)
	return []float64{
		c.UnitPrice,
		c.Quantity,
		revenue,
		c.Discount,
		c.LeadTimeDays,
		c.InventoryLevel,
		float64(c.OrderDate.Month()),
		float64((int(c.OrderDate.Month())-1)/3 + 1),
		float64(c.OrderDate.Weekday()),
		float64(domain.CategoryIndex(domain.Categories, c.Category)),
		float64(domain.CategoryIndex(domain.Regions, c.Region)),
		float64(domain.CategoryIndex(domain.ShippingModes, c.ShippingMode)),
		c.UnitPrice * c.Quantity,
		c.Discount * c.UnitPrice,
		c.LeadTimeDays * c.Quantity,
	}
}

func contextFor(r domain.OrderRecord) OrderContext {
	return OrderContext{
		OrderDate:      r.OrderDate,
		Category:       r.Category,
		Region:         r.Region,
		ShippingMode:   r.ShippingMode,
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
		Discount:       r.Discount,
		InventoryLevel: r.InventoryLevel,
		LeadTimeDays:   r.LeadTimeDays,
	}
}

// RiskPrediction is one scored order.
type RiskPrediction struct {
	OrderID     int64   `json:"order_id"`
	Probability float64 `json:"probability"`
	Late        bool    `json:"late"`
	Band        string  `json:"band"`
}

// WhatIfResult scores a hypothetical order, with the model's strongest
// features attached for explanation.
type WhatIfResult struct {
	Probability float64                   `json:"probability"`
	OnTime      float64                   `json:"on_time_probability"`
	Late        bool                      `json:"late"`
	Band        string                    `json:"band"`
	TopFactors  []boost.FeatureImportance `json:"top_factors"`
}

// Classifier is a trained delivery-risk model. Immutable after Train.
type Classifier struct {
	ensemble   *boost.Ensemble
	columns    []string
	evaluation Evaluation
}

// Trainer fits delivery-risk classifiers.
type Trainer struct {
	log zerolog.Logger
}

// NewTrainer creates a delivery-risk trainer.
func NewTrainer(log zerolog.Logger) *Trainer {
	return &Trainer{log: log.With().Str("component", "deliveryrisk").Logger()}
}

// Train fits a classifier on historical orders. Evaluation metrics come
// from a seeded random test split; the returned model is fitted on all
// records.
func (t *Trainer) Train(records []domain.OrderRecord, hp boost.Hyperparameters) (*Classifier, error) {
	if len(records) < minTrainingRecords {
		return nil, &domain.InsufficientHistoryError{
			Required:  minTrainingRecords,
			Available: len(records),
		}
	}

	x := make([][]float64, len(records))
	y := make([]float64, len(records))
	for i, r := range records {
		x[i] = contextFor(r).featureRow()
		if r.Late {
			y[i] = 1
		}
	}

	evaluation := t.evaluate(x, y, hp)

	ensemble, err := boost.TrainClassifier(x, y, hp)
	if err != nil {
		return nil, err
	}

	t.log.Info().
		Int("records", len(records)).
		Float64("accuracy", evaluation.Accuracy).
		Float64("f1", evaluation.F1).
		Msg("Trained delivery risk classifier")

	return &Classifier{
		ensemble:   ensemble,
		columns:    featureColumns,
		evaluation: evaluation,
	}, nil
}

func (t *Trainer) evaluate(x [][]float64, y []float64, hp boost.Hyperparameters) Evaluation {
	rng := rand.New(rand.NewSource(hp.Seed))
	perm := rng.Perm(len(x))

	testSize := int(float64(len(x)) * testFraction)
	if testSize < 1 {
		return Evaluation{}
	}

	var trainX, testX [][]float64
	var trainY, testY []float64
	for i, idx := range perm {
		if i < testSize {
			testX = append(testX, x[idx])
			testY = append(testY, y[idx])
		} else {
			trainX = append(trainX, x[idx])
			trainY = append(trainY, y[idx])
		}
	}

	side, err := boost.TrainClassifier(trainX, trainY, hp)
	if err != nil {
		t.log.Warn().Err(err).Msg("Evaluation split skipped")
		return Evaluation{}
	}

	probs := make([]float64, len(testX))
	for i, row := range testX {
		probs[i] = side.PredictProba(row)
	}
	return evaluate(testY, probs)
}

// PredictBatch scores records in input order.
func (c *Classifier) PredictBatch(records []domain.OrderRecord) ([]RiskPrediction, error) {
	if c == nil || c.ensemble == nil {
		return nil, &domain.UntrainedModelError{Model: "deliveryrisk"}
	}

	out := make([]RiskPrediction, len(records))
	for i, r := range records {
		p := c.ensemble.PredictProba(contextFor(r).featureRow())
		out[i] = RiskPrediction{
			OrderID:     r.OrderID,
			Probability: p,
			Late:        p >= 0.5,
			Band:        Band(p),
		}
	}
	return out, nil
}

// PredictOne scores a hypothetical order context.
func (c *Classifier) PredictOne(ctx OrderContext) (*WhatIfResult, error) {
	if c == nil || c.ensemble == nil {
		return nil, &domain.UntrainedModelError{Model: "deliveryrisk"}
	}

	row := ctx.featureRow()
	if len(row) != c.ensemble.NumFeatures() {
		return nil, &domain.FeatureMismatchError{Expected: c.columns, Got: featureColumns}
	}

	p := c.ensemble.PredictProba(row)
	factors := c.ensemble.Importances(c.columns)
	if len(factors) > 5 {
		factors = factors[:5]
	}

	return &WhatIfResult{
		Probability: p,
		OnTime:      1 - p,
		Late:        p >= 0.5,
		Band:        Band(p),
		TopFactors:  factors,
	}, nil
}

// Evaluation returns the held-out test metrics.
func (c *Classifier) Evaluation() Evaluation {
	return c.evaluation
}

// Columns returns the feature column ordering.
func (c *Classifier) Columns() []string {
	return c.columns
}

// Importances returns feature importances in descending order.
func (c *Classifier) Importances() []boost.FeatureImportance {
	return c.ensemble.Importances(c.columns)
}

// Band maps a late probability to a risk band.
func Band(p float64) string {
	switch {
	case p > bandHigh:
		return "High"
	case p > bandMedium:
		return "Medium"
	default:
		return "Low"
	}
}
