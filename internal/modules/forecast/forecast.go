// Package forecast trains a gradient-boosted demand model over engineered
// time-series features and produces recursive multi-step forecasts.
package forecast

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/boost"
	"github.com/chainsight/chainsight/internal/modules/features"
)

// Holdout fraction for the chronological evaluation split.
const holdoutFraction = 0.2

// Point is one forecast step.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// Model is a trained demand forecaster. Immutable after Train; safe for
// concurrent Forecast calls.
type Model struct {
	ensemble *boost.Ensemble
	cfg      features.Config
	columns  []string
	history  []float64 // Tail of true demand, feeds the recursive loop
	lastDate time.Time
	residual float64 // Holdout RMSE, drives the confidence band
	metrics  Metrics
}

// Trainer fits forecast models from daily demand series.
type Trainer struct {
	log zerolog.Logger
}

// NewTrainer creates a forecast trainer.
func NewTrainer(log zerolog.Logger) *Trainer {
	return &Trainer{log: log.With().Str("component", "forecast").Logger()}
}

// Train fits a model on a daily demand series. The series must be in
// ascending date order (as produced by the dataset accessor). Metrics
// come from a chronological tail holdout; the returned model is fitted
// on the full series.
func (t *Trainer) Train(series []dataset.DailyPoint, cfg features.Config, hp boost.Hyperparameters) (*Model, error) {
	dates := make([]time.Time, len(series))
	demand := make([]float64, len(series))
	for i, p := range series {
		dates[i] = p.Date
		demand[i] = p.Demand
	}

	matrix, err := features.Build(dates, demand, cfg)
	if err != nil {
		return nil, err
	}

	metrics, residual := t.evaluate(matrix, hp)

	ensemble, err := boost.TrainRegressor(matrix.Rows, matrix.Targets, hp)
	if err != nil {
		return nil, err
	}

	tail := cfg.MinHistory()
	history := make([]float64, tail)
	copy(history, demand[len(demand)-tail:])

	t.log.Info().
		Int("rows", len(matrix.Rows)).
		Int("dropped", matrix.Dropped).
		Float64("holdout_rmse", metrics.RMSE).
		Msg("Trained demand forecast model")

	return &Model{
		ensemble: ensemble,
		cfg:      cfg,
		columns:  matrix.Columns,
		history:  history,
		lastDate: dates[len(dates)-1],
		residual: residual,
		metrics:  metrics,
	}, nil
}

// evaluate fits a side model on the head of the matrix and scores it on
// the chronological tail. Too-small series skip evaluation.
func (t *Trainer) evaluate(m *features.Matrix, hp boost.Hyperparameters) (Metrics, float64) {
	holdout := int(float64(len(m.Rows)) * holdoutFraction)
	if holdout < 5 || len(m.Rows)-holdout < 10 {
		return Metrics{}, 0
	}

	split := len(m.Rows) - holdout
	side, err := boost.TrainRegressor(m.Rows[:split], m.Targets[:split], hp)
	if err != nil {
		t.log.Warn().Err(err).Msg("Holdout evaluation skipped")
		return Metrics{}, 0
	}

	preds := make([]float64, holdout)
	for i, row := range m.Rows[split:] {
		preds[i] = side.RawScore(row)
	}

	metrics := computeMetrics(m.Targets[split:], preds)
	return metrics, metrics.RMSE
}

// Forecast produces exactly horizon daily steps after the last training
// date. Each prediction is appended to the demand window and the feature
// row for the next step is rebuilt with the training-time builder, so
// multi-step forecasts compound recursively. Negative predictions clamp
// to zero.
func (m *Model) Forecast(horizon int) ([]Point, error) {
	if m == nil || m.ensemble == nil {
		return nil, &domain.UntrainedModelError{Model: "forecast"}
	}
	if horizon <= 0 {
		return nil, &domain.InvalidInputError{
			Field: "horizon", Value: float64(horizon), Reason: "must be positive",
		}
	}

	window := make([]float64, len(m.history))
	copy(window, m.history)

	band := 1.96 * m.residual
	points := make([]Point, 0, horizon)
	date := m.lastDate

	for step := 0; step < horizon; step++ {
		date = date.AddDate(0, 0, 1)

		row, err := features.Row(date, window, m.cfg)
		if err != nil {
			return nil, err
		}
		if len(row) != len(m.columns) {
			return nil, &domain.FeatureMismatchError{Expected: m.columns, Got: m.cfg.Columns()}
		}

		value := m.ensemble.RawScore(row)
		if value < 0 {
			value = 0
		}

		lower := value - band
		if lower < 0 {
			lower = 0
		}
		points = append(points, Point{
			Date:  date,
			Value: value,
			Lower: lower,
			Upper: value + band,
		})

		window = append(window, value)
	}

	return points, nil
}

// Predict scores pre-built feature rows. The column set must match the
// training columns exactly, in order.
func (m *Model) Predict(columns []string, rows [][]float64) ([]float64, error) {
	if m == nil || m.ensemble == nil {
		return nil, &domain.UntrainedModelError{Model: "forecast"}
	}
	if !equalColumns(columns, m.columns) {
		return nil, &domain.FeatureMismatchError{Expected: m.columns, Got: columns}
	}

	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = m.ensemble.RawScore(row)
	}
	return out, nil
}

// Columns returns the trained feature column ordering.
func (m *Model) Columns() []string {
	return m.columns
}

// Metrics returns the holdout evaluation metrics.
func (m *Model) Metrics() Metrics {
	return m.metrics
}

// Importances returns feature importances in descending order.
func (m *Model) Importances() []boost.FeatureImportance {
	return m.ensemble.Importances(m.columns)
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
