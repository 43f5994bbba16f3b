package forecast

import "math"

// Metrics summarizes holdout forecast accuracy.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
	MAPE float64 `json:"mape"` // Percentage; zero-demand days excluded
}

func computeMetrics(actual, predicted []float64) Metrics {
	n := float64(len(actual))
	if n == 0 {
		return Metrics{}
	}

	var mean float64
	for _, a := range actual {
		mean += a
	}
	mean /= n

	var absSum, sqSum, sst, mapeSum float64
	mapeCount := 0
	for i, a := range actual {
		diff := a - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		sst += (a - mean) * (a - mean)
		if a != 0 {
			mapeSum += math.Abs(diff / a)
			mapeCount++
		}
	}

	m := Metrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
	}
	if sst > 0 {
		m.R2 = 1 - sqSum/sst
	}
	if mapeCount > 0 {
		m.MAPE = 100 * mapeSum / float64(mapeCount)
	}
	return m
}
