// Package features engineers model inputs from daily demand series: lag
// values, rolling-window statistics over strictly past rows, cyclical
// time encodings and calendar flags.
package features

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chainsight/chainsight/internal/domain"
)

// Config controls which features are generated. Column ordering is a
// pure function of the config, so a model trained with a config can
// rebuild identical rows at inference time.
type Config struct {
	Lags    []int // Lag offsets in days
	Windows []int // Rolling window lengths in days
}

// DefaultConfig mirrors the production training setup.
func DefaultConfig() Config {
	return Config{
		Lags:    []int{1, 7, 14, 28},
		Windows: []int{7, 14, 30},
	}
}

// MinHistory returns the number of past rows a single feature row needs.
func (c Config) MinHistory() int {
	min := 1
	for _, l := range c.Lags {
		if l > min {
			min = l
		}
	}
	for _, w := range c.Windows {
		if w > min {
			min = w
		}
	}
	return min
}

var rollingAggs = []string{"mean", "std", "min", "max"}

// Columns returns the deterministic feature column ordering: lags, then
// rolling stats per window, then cyclical encodings, then calendar flags.
func (c Config) Columns() []string {
	cols := make([]string, 0, len(c.Lags)+len(c.Windows)*len(rollingAggs)+8)
	for _, l := range c.Lags {
		cols = append(cols, fmt.Sprintf("lag_%d", l))
	}
	for _, w := range c.Windows {
		for _, agg := range rollingAggs {
			cols = append(cols, fmt.Sprintf("roll_%d_%s", w, agg))
		}
	}
	cols = append(cols,
		"dow_sin", "dow_cos", "month_sin", "month_cos",
		"month", "quarter", "is_weekend", "is_holiday_season",
	)
	return cols
}

// Matrix is an engineered training set. Rows[i] predicts Targets[i] on
// Dates[i]; warm-up rows without full history are dropped.
type Matrix struct {
	Columns []string
	Rows    [][]float64
	Targets []float64
	Dates   []time.Time
	Dropped int // Warm-up rows removed from the head of the series
}

// Build engineers the full feature matrix for a daily demand series.
// dates and demand must be parallel slices in ascending date order.
func Build(dates []time.Time, demand []float64, cfg Config) (*Matrix, error) {
	if len(dates) != len(demand) {
		return nil, fmt.Errorf("dates and demand length mismatch: %d vs %d", len(dates), len(demand))
	}

	warmup := cfg.MinHistory()
	if len(demand) <= warmup {
		return nil, &domain.InsufficientHistoryError{
			Required:  warmup + 1,
			Available: len(demand),
		}
	}

	m := &Matrix{
		Columns: cfg.Columns(),
		Dropped: warmup,
	}
	for i := warmup; i < len(demand); i++ {
		row := buildRow(dates[i], demand[:i], cfg)
		m.Rows = append(m.Rows, row)
		m.Targets = append(m.Targets, demand[i])
		m.Dates = append(m.Dates, dates[i])
	}
	return m, nil
}

// Row engineers a single feature row for a prospective date, treating the
// whole demand slice as past observations. Used by the recursive
// forecaster, which appends each prediction to the history and calls Row
// again for the next step.
func Row(date time.Time, demand []float64, cfg Config) ([]float64, error) {
	if len(demand) < cfg.MinHistory() {
		return nil, &domain.InsufficientHistoryError{
			Required:  cfg.MinHistory(),
			Available: len(demand),
		}
	}
	return buildRow(date, demand, cfg), nil
}

// buildRow assumes past holds at least MinHistory values. Lags index from
// the end of past; rolling windows cover the trailing w values, so the
// current day's (unknown) demand never leaks into its own features.
func buildRow(date time.Time, past []float64, cfg Config) []float64 {
	n := len(past)
	row := make([]float64, 0, len(cfg.Lags)+len(cfg.Windows)*len(rollingAggs)+8)

	for _, l := range cfg.Lags {
		row = append(row, past[n-l])
	}

	for _, w := range cfg.Windows {
		window := past[n-w:]
		row = append(row,
			stat.Mean(window, nil),
			windowStd(window),
			minOf(window),
			maxOf(window),
		)
	}

	dow := float64(date.Weekday())
	month := float64(date.Month())
	row = append(row,
		math.Sin(2*math.Pi*dow/7),
		math.Cos(2*math.Pi*dow/7),
		math.Sin(2*math.Pi*month/12),
		math.Cos(2*math.Pi*month/12),
		month,
		float64((int(date.Month())-1)/3+1),
		boolFeature(date.Weekday() == time.Saturday || date.Weekday() == time.Sunday),
		boolFeature(date.Month() == time.November || date.Month() == time.December),
	)
	return row
}

func windowStd(window []float64) float64 {
	if len(window) < 2 {
		return 0
	}
	return stat.StdDev(window, nil)
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
