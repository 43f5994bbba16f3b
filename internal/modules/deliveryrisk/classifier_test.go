package deliveryrisk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/boost"
	chtest "github.com/chainsight/chainsight/internal/testing"
)

// riskyOrders builds a set where lateness is driven by lead time: short
// scheduled lead times ship on time, long ones run late.
func riskyOrders(n int) []domain.OrderRecord {
	records := make([]domain.OrderRecord, 0, n)
	for i := 0; i < n; i++ {
		lead := float64(1 + i%10)
		late := lead >= 6
		records = append(records, chtest.OrderFor(int64(i+1), func(r *domain.OrderRecord) {
			r.LeadTimeDays = lead
			r.Late = late
			r.Quantity = float64(5 + i%20)
			r.UnitPrice = float64(10 + i%50)
			if late {
				r.DeliveryDate = r.OrderDate.AddDate(0, 0, int(lead)+4)
			} else {
				r.DeliveryDate = r.OrderDate.AddDate(0, 0, int(lead))
			}
		}))
	}
	return records
}

func testHP() boost.Hyperparameters {
	hp := boost.DefaultHyperparameters()
	hp.Trees = 60
	hp.MaxDepth = 3
	hp.LearningRate = 0.1
	hp.MinLeaf = 2
	return hp
}

func TestTrainAndPredictBatch(t *testing.T) {
	records := riskyOrders(200)
	clf, err := NewTrainer(zerolog.Nop()).Train(records, testHP())
	require.NoError(t, err)

	preds, err := clf.PredictBatch(records)
	require.NoError(t, err)
	require.Len(t, preds, len(records))

	correct := 0
	for i, p := range preds {
		assert.Equal(t, records[i].OrderID, p.OrderID)
		assert.GreaterOrEqual(t, p.Probability, 0.0)
		assert.LessOrEqual(t, p.Probability, 1.0)
		if p.Late == records[i].Late {
			correct++
		}
	}
	// Lead time fully determines the label, so accuracy should be high.
	assert.Greater(t, float64(correct)/float64(len(preds)), 0.9)
}

func TestTrainTooFewRecords(t *testing.T) {
	_, err := NewTrainer(zerolog.Nop()).Train(riskyOrders(5), testHP())

	var insufficient *domain.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, minTrainingRecords, insufficient.Required)
}

func TestPredictOneWhatIf(t *testing.T) {
	clf, err := NewTrainer(zerolog.Nop()).Train(riskyOrders(200), testHP())
	require.NoError(t, err)

	fast, err := clf.PredictOne(OrderContext{
		OrderDate:    chtest.FixtureStart,
		Category:     "Computers",
		Region:       "Europe",
		ShippingMode: "Same Day",
		Quantity:     10,
		UnitPrice:    25,
		LeadTimeDays: 1,
	})
	require.NoError(t, err)

	slow, err := clf.PredictOne(OrderContext{
		OrderDate:    chtest.FixtureStart,
		Category:     "Computers",
		Region:       "Europe",
		ShippingMode: "Standard Class",
		Quantity:     10,
		UnitPrice:    25,
		LeadTimeDays: 10,
	})
	require.NoError(t, err)

	assert.Less(t, fast.Probability, slow.Probability)
	assert.InDelta(t, 1.0, fast.Probability+fast.OnTime, 1e-9)
	assert.NotEmpty(t, slow.TopFactors)
	assert.LessOrEqual(t, len(slow.TopFactors), 5)
}

func TestPredictOneToleratesUnknownCodes(t *testing.T) {
	clf, err := NewTrainer(zerolog.Nop()).Train(riskyOrders(100), testHP())
	require.NoError(t, err)

	// Unknown categoricals encode as -1 instead of failing.
	res, err := clf.PredictOne(OrderContext{
		OrderDate:    chtest.FixtureStart,
		Category:     "Unknown Category",
		Region:       "Atlantis",
		ShippingMode: "Drone",
		Quantity:     5,
		UnitPrice:    10,
		LeadTimeDays: 3,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Probability, 0.0)
	assert.LessOrEqual(t, res.Probability, 1.0)
}

func TestUntrainedClassifier(t *testing.T) {
	var clf *Classifier

	_, err := clf.PredictBatch(nil)
	var untrained *domain.UntrainedModelError
	require.ErrorAs(t, err, &untrained)

	_, err = clf.PredictOne(OrderContext{})
	require.ErrorAs(t, err, &untrained)
}

func TestEvaluationMetrics(t *testing.T) {
	clf, err := NewTrainer(zerolog.Nop()).Train(riskyOrders(300), testHP())
	require.NoError(t, err)

	e := clf.Evaluation()
	total := e.TruePositives + e.TrueNegatives + e.FalsePositives + e.FalseNegatives
	assert.Equal(t, 60, total) // 20% of 300
	assert.Greater(t, e.Accuracy, 0.85)
	assert.Greater(t, e.AUC, 0.9)
	assert.NotEmpty(t, e.ROC)
}

func TestBand(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0.9, "High"},
		{0.71, "High"},
		{0.7, "Medium"},
		{0.41, "Medium"},
		{0.4, "Low"},
		{0.1, "Low"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Band(tt.p), "p=%v", tt.p)
	}
}
