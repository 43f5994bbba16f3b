package deliveryrisk

import "sort"

// ROCPoint is one point of the receiver operating characteristic curve.
type ROCPoint struct {
	Threshold float64 `json:"threshold"`
	TPR       float64 `json:"tpr"`
	FPR       float64 `json:"fpr"`
}

// Evaluation holds held-out classifier quality metrics.
type Evaluation struct {
	Accuracy       float64    `json:"accuracy"`
	Precision      float64    `json:"precision"`
	Recall         float64    `json:"recall"`
	F1             float64    `json:"f1"`
	AUC            float64    `json:"auc"`
	TruePositives  int        `json:"true_positives"`
	TrueNegatives  int        `json:"true_negatives"`
	FalsePositives int        `json:"false_positives"`
	FalseNegatives int        `json:"false_negatives"`
	ROC            []ROCPoint `json:"roc"`
}

// evaluate computes confusion metrics at the 0.5 threshold plus the full
// ROC sweep over observed probabilities.
func evaluate(actual, probs []float64) Evaluation {
	var e Evaluation
	if len(actual) == 0 {
		return e
	}

	for i, a := range actual {
		predicted := probs[i] >= 0.5
		switch {
		case a == 1 && predicted:
			e.TruePositives++
		case a == 0 && !predicted:
			e.TrueNegatives++
		case a == 0 && predicted:
			e.FalsePositives++
		default:
			e.FalseNegatives++
		}
	}

	total := float64(len(actual))
	e.Accuracy = float64(e.TruePositives+e.TrueNegatives) / total
	if e.TruePositives+e.FalsePositives > 0 {
		e.Precision = float64(e.TruePositives) / float64(e.TruePositives+e.FalsePositives)
	}
	if e.TruePositives+e.FalseNegatives > 0 {
		e.Recall = float64(e.TruePositives) / float64(e.TruePositives+e.FalseNegatives)
	}
	if e.Precision+e.Recall > 0 {
		e.F1 = 2 * e.Precision * e.Recall / (e.Precision + e.Recall)
	}

	e.ROC, e.AUC = rocCurve(actual, probs)
	return e
}

func rocCurve(actual, probs []float64) ([]ROCPoint, float64) {
	var positives, negatives float64
	for _, a := range actual {
		if a == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return nil, 0
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return probs[order[i]] > probs[order[j]] })

	points := []ROCPoint{{Threshold: 1, TPR: 0, FPR: 0}}
	var tp, fp, auc, prevFPR, prevTPR float64
	for _, idx := range order {
		if actual[idx] == 1 {
			tp++
		} else {
			fp++
		}
		tpr := tp / positives
		fpr := fp / negatives
		auc += (fpr - prevFPR) * (tpr + prevTPR) / 2 // Trapezoid
		prevFPR, prevTPR = fpr, tpr
		points = append(points, ROCPoint{Threshold: probs[idx], TPR: tpr, FPR: fpr})
	}

	return points, auc
}
