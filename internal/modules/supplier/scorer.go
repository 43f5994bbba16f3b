// Package supplier ranks suppliers with a multi-criteria weighted score
// over six performance dimensions and assigns letter grades.
package supplier

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
)

// Weight sums may deviate from 1.0 by at most this much.
const weightTolerance = 1e-6

// Dimension names in scoring order.
const (
	DimOnTime      = "on_time_rate"
	DimDefects     = "defect_rate"
	DimConsistency = "consistency"
	DimCost        = "cost_index"
	DimLeadTime    = "lead_time"
	DimVolume      = "order_volume"
)

// Weights assigns the relative importance of each dimension. They must
// sum to 1.0.
type Weights struct {
	OnTime      float64 `json:"on_time_rate"`
	Defects     float64 `json:"defect_rate"`
	Consistency float64 `json:"consistency"`
	Cost        float64 `json:"cost_index"`
	LeadTime    float64 `json:"lead_time"`
	Volume      float64 `json:"order_volume"`
}

// DefaultWeights returns the standard dimension weighting.
func DefaultWeights() Weights {
	return Weights{
		OnTime:      0.30,
		Defects:     0.20,
		Consistency: 0.15,
		Cost:        0.15,
		LeadTime:    0.10,
		Volume:      0.10,
	}
}

func (w Weights) sum() float64 {
	return w.OnTime + w.Defects + w.Consistency + w.Cost + w.LeadTime + w.Volume
}

// GradeThresholds are inclusive lower bounds for each letter grade;
// composites below D map to F.
type GradeThresholds struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// DefaultThresholds returns the standard grade boundaries.
func DefaultThresholds() GradeThresholds {
	return GradeThresholds{A: 90, B: 75, C: 60, D: 40}
}

// Config holds scorer configuration.
type Config struct {
	Weights            Weights
	Thresholds         GradeThresholds
	AttentionThreshold float64 // Composites below this get improvement suggestions
}

// DefaultConfig returns the standard scorer configuration.
func DefaultConfig() Config {
	return Config{
		Weights:            DefaultWeights(),
		Thresholds:         DefaultThresholds(),
		AttentionThreshold: 60,
	}
}

// Dimension is one scored axis of a supplier.
type Dimension struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"` // [0,100]
	Weight float64 `json:"weight"`
}

// Score is a supplier's full assessment.
type Score struct {
	SupplierID  string      `json:"supplier_id"`
	Dimensions  []Dimension `json:"dimensions"`
	Composite   float64     `json:"composite"` // [0,100]
	Grade       string      `json:"grade"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// Scorer computes supplier leaderboards.
type Scorer struct {
	cfg Config
	log zerolog.Logger
}

// New creates a scorer; the configured weights must sum to 1.0.
func New(cfg Config, log zerolog.Logger) (*Scorer, error) {
	if sum := cfg.Weights.sum(); math.Abs(sum-1.0) > weightTolerance {
		return nil, &domain.InvalidWeightsError{Sum: sum}
	}
	return &Scorer{
		cfg: cfg,
		log: log.With().Str("component", "supplier").Logger(),
	}, nil
}

// Leaderboard scores every supplier and returns them by descending
// composite. Suppliers below the attention threshold carry their two
// weakest dimensions as improvement suggestions.
func (s *Scorer) Leaderboard(stats []dataset.SupplierStats) []Score {
	if len(stats) == 0 {
		return nil
	}

	onTime := make([]float64, len(stats))
	defects := make([]float64, len(stats))
	consistency := make([]float64, len(stats))
	cost := make([]float64, len(stats))
	lead := make([]float64, len(stats))
	volume := make([]float64, len(stats))
	for i, st := range stats {
		onTime[i] = st.OnTimeRate
		defects[i] = st.DefectRate
		consistency[i] = st.Consistency
		cost[i] = st.AvgUnitPrice
		lead[i] = st.AvgLeadTimeDays
		volume[i] = float64(st.Orders)
	}

	// Higher raw value is better for on-time, consistency and volume;
	// defect rate, cost and lead time are inverse-scaled.
	onTimeScores := minMaxScale(onTime, false)
	defectScores := minMaxScale(defects, true)
	consistencyScores := minMaxScale(consistency, false)
	costScores := minMaxScale(cost, true)
	leadScores := minMaxScale(lead, true)
	volumeScores := minMaxScale(volume, false)

	w := s.cfg.Weights
	scores := make([]Score, len(stats))
	for i, st := range stats {
		dims := []Dimension{
			{Name: DimOnTime, Score: onTimeScores[i], Weight: w.OnTime},
			{Name: DimDefects, Score: defectScores[i], Weight: w.Defects},
			{Name: DimConsistency, Score: consistencyScores[i], Weight: w.Consistency},
			{Name: DimCost, Score: costScores[i], Weight: w.Cost},
			{Name: DimLeadTime, Score: leadScores[i], Weight: w.LeadTime},
			{Name: DimVolume, Score: volumeScores[i], Weight: w.Volume},
		}

		var composite float64
		for _, d := range dims {
			composite += d.Score * d.Weight
		}

		scores[i] = Score{
			SupplierID: st.SupplierID,
			Dimensions: dims,
			Composite:  composite,
			Grade:      Grade(composite, s.cfg.Thresholds),
		}
		if composite < s.cfg.AttentionThreshold {
			scores[i].Suggestions = weakestDimensions(dims, 2)
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Composite > scores[j].Composite
	})

	s.log.Debug().Int("suppliers", len(scores)).Msg("Computed supplier leaderboard")
	return scores
}

// Grade maps a composite score to a letter grade using inclusive lower
// bounds.
func Grade(composite float64, t GradeThresholds) string {
	switch {
	case composite >= t.A:
		return "A"
	case composite >= t.B:
		return "B"
	case composite >= t.C:
		return "C"
	case composite >= t.D:
		return "D"
	default:
		return "F"
	}
}

// minMaxScale normalizes values to [0,100]. Inverse flips the scale so
// lower raw values score higher. Degenerate populations (all equal)
// score a neutral 50.
func minMaxScale(values []float64, inverse bool) []float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(values))
	if max == min {
		for i := range out {
			out[i] = 50
		}
		return out
	}

	for i, v := range values {
		scaled := (v - min) / (max - min) * 100
		if inverse {
			scaled = 100 - scaled
		}
		out[i] = scaled
	}
	return out
}

func weakestDimensions(dims []Dimension, n int) []string {
	sorted := make([]Dimension, len(dims))
	copy(sorted, dims)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]string, 0, n)
	for _, d := range sorted[:n] {
		out = append(out, d.Name)
	}
	return out
}
