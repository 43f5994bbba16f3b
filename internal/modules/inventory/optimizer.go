// Package inventory computes deterministic reorder policies: economic
// order quantity, statistical safety stock, reorder points and stock
// level classification per product category.
package inventory

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
)

// Categories with fewer orders than this are skipped by AnalyzeAll.
const minCategoryOrders = 10

// Status classifies a stock level against the reorder policy.
type Status string

const (
	StatusUnderstock Status = "understock"
	StatusOverstock  Status = "overstock"
	StatusBalanced   Status = "balanced"
)

// Config holds the optimizer's policy parameters.
type Config struct {
	ServiceLevel        float64 // Safety-stock service level, (0,1)
	OverstockMultiplier float64 // Overstock threshold as a multiple of EOQ
	OrderingCost        float64 // Fixed cost per purchase order
	HoldingCostRate     float64 // Annual holding cost as a fraction of unit price
}

// DefaultConfig returns the standard policy parameters.
func DefaultConfig() Config {
	return Config{
		ServiceLevel:        0.95,
		OverstockMultiplier: 1.5,
		OrderingCost:        50,
		HoldingCostRate:     0.20,
	}
}

// EOQ returns the economic order quantity sqrt(2*D*S/H) for annual
// demand D, per-order cost S and per-unit annual holding cost H.
func EOQ(annualDemand, orderCost, holdingCost float64) (float64, error) {
	if holdingCost <= 0 {
		return 0, &domain.InvalidInputError{
			Field: "holding_cost", Value: holdingCost, Reason: "must be positive",
		}
	}
	if annualDemand < 0 {
		return 0, &domain.InvalidInputError{
			Field: "annual_demand", Value: annualDemand, Reason: "must be non-negative",
		}
	}
	if orderCost < 0 {
		return 0, &domain.InvalidInputError{
			Field: "order_cost", Value: orderCost, Reason: "must be non-negative",
		}
	}
	return math.Sqrt(2 * annualDemand * orderCost / holdingCost), nil
}

// SafetyStock returns z(serviceLevel) * demandStd * sqrt(leadTime), with
// z taken from the inverse standard normal CDF.
func SafetyStock(serviceLevel, demandStd, leadTime float64) (float64, error) {
	if serviceLevel <= 0 || serviceLevel >= 1 {
		return 0, &domain.InvalidInputError{
			Field: "service_level", Value: serviceLevel, Reason: "must be in (0,1)",
		}
	}
	if demandStd < 0 {
		return 0, &domain.InvalidInputError{
			Field: "demand_std", Value: demandStd, Reason: "must be non-negative",
		}
	}
	if leadTime < 0 {
		return 0, &domain.InvalidInputError{
			Field: "lead_time", Value: leadTime, Reason: "must be non-negative",
		}
	}

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(serviceLevel)
	return z * demandStd * math.Sqrt(leadTime), nil
}

// ReorderPoint returns avgDailyDemand * leadTime + safetyStock.
func ReorderPoint(avgDailyDemand, leadTime, safetyStock float64) (float64, error) {
	if avgDailyDemand < 0 {
		return 0, &domain.InvalidInputError{
			Field: "avg_daily_demand", Value: avgDailyDemand, Reason: "must be non-negative",
		}
	}
	if leadTime < 0 {
		return 0, &domain.InvalidInputError{
			Field: "lead_time", Value: leadTime, Reason: "must be non-negative",
		}
	}
	return avgDailyDemand*leadTime + safetyStock, nil
}

// Classify places a stock level against the policy: below the reorder
// point is understock, above reorderPoint + multiplier*EOQ is overstock,
// anything between is balanced.
func Classify(level, reorderPoint, eoq float64, cfg Config) Status {
	switch {
	case level < reorderPoint:
		return StatusUnderstock
	case level > reorderPoint+cfg.OverstockMultiplier*eoq:
		return StatusOverstock
	default:
		return StatusBalanced
	}
}

// Policy is the computed reorder policy for one category.
type Policy struct {
	Category        string  `json:"category"`
	Orders          int     `json:"orders"`
	AvgDailyDemand  float64 `json:"avg_daily_demand"`
	DemandStd       float64 `json:"demand_std"`
	DemandCV        float64 `json:"demand_cv"` // Percentage
	AnnualDemand    float64 `json:"annual_demand"`
	AvgUnitPrice    float64 `json:"avg_unit_price"`
	AvgLeadTimeDays float64 `json:"avg_lead_time_days"` // Scheduled
	LateRate        float64 `json:"late_rate"`
	EOQ             float64 `json:"eoq"`
	SafetyStock     float64 `json:"safety_stock"`
	ReorderPoint    float64 `json:"reorder_point"`
	CurrentLevel    float64 `json:"current_level"`
	Status          Status  `json:"status"`
}

// Recommendation is one actionable inventory adjustment.
type Recommendation struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
}

// Optimizer analyzes order history into per-category reorder policies.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

// New creates an inventory optimizer.
func New(cfg Config, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "inventory").Logger(),
	}
}

// Config returns the optimizer's policy parameters.
func (o *Optimizer) Config() Config {
	return o.cfg
}

// AnalyzeAll computes a reorder policy per category with enough history.
// Results are ordered by category name.
func (o *Optimizer) AnalyzeAll(acc *dataset.Accessor) ([]Policy, error) {
	var policies []Policy

	for _, cat := range domain.Categories {
		sub := acc.Filter(dataset.FilterSpec{Category: cat})
		if sub.Len() < minCategoryOrders {
			continue
		}

		policy, err := o.analyzeCategory(cat, sub)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
		policies = append(policies, policy)
	}

	o.log.Info().Int("categories", len(policies)).Msg("Computed inventory policies")
	return policies, nil
}

func (o *Optimizer) analyzeCategory(cat string, sub *dataset.Accessor) (Policy, error) {
	daily := sub.DailySeries("")
	demands := make([]float64, len(daily))
	for i, d := range daily {
		demands[i] = d.Demand
	}

	avgDaily := stat.Mean(demands, nil)
	std := 0.0
	if len(demands) > 1 {
		std = stat.StdDev(demands, nil)
	}
	annual := avgDaily * 365

	records := sub.Records()
	var priceSum, leadSum, invSum, late float64
	for _, r := range records {
		priceSum += r.UnitPrice
		leadSum += r.LeadTimeDays
		invSum += r.InventoryLevel
		if r.Late {
			late++
		}
	}
	n := float64(len(records))
	avgPrice := priceSum / n
	avgLead := leadSum / n

	eoq, err := EOQ(annual, o.cfg.OrderingCost, avgPrice*o.cfg.HoldingCostRate)
	if err != nil {
		return Policy{}, err
	}
	ss, err := SafetyStock(o.cfg.ServiceLevel, std, avgLead)
	if err != nil {
		return Policy{}, err
	}
	rop, err := ReorderPoint(avgDaily, avgLead, ss)
	if err != nil {
		return Policy{}, err
	}

	level := invSum / n
	cv := 0.0
	if avgDaily > 0 {
		cv = std / avgDaily * 100
	}

	return Policy{
		Category:        cat,
		Orders:          len(records),
		AvgDailyDemand:  avgDaily,
		DemandStd:       std,
		DemandCV:        cv,
		AnnualDemand:    annual,
		AvgUnitPrice:    avgPrice,
		AvgLeadTimeDays: avgLead,
		LateRate:        late / n,
		EOQ:             eoq,
		SafetyStock:     ss,
		ReorderPoint:    rop,
		CurrentLevel:    level,
		Status:          Classify(level, rop, eoq, o.cfg),
	}, nil
}

// Recommendations derives prioritized actions from computed policies.
func (o *Optimizer) Recommendations(policies []Policy) []Recommendation {
	var recs []Recommendation
	for _, p := range policies {
		switch p.Status {
		case StatusUnderstock:
			recs = append(recs, Recommendation{
				Category: p.Category,
				Priority: "High",
				Action:   fmt.Sprintf("Reorder %.0f units now", p.EOQ),
				Reason: fmt.Sprintf("Stock level %.0f is below the reorder point %.0f.",
					p.CurrentLevel, p.ReorderPoint),
			})
		case StatusOverstock:
			recs = append(recs, Recommendation{
				Category: p.Category,
				Priority: "Medium",
				Action:   "Pause replenishment until stock normalizes",
				Reason: fmt.Sprintf("Stock level %.0f exceeds the overstock threshold %.0f.",
					p.CurrentLevel, p.ReorderPoint+o.cfg.OverstockMultiplier*p.EOQ),
			})
		}

		if p.DemandCV > 80 {
			recs = append(recs, Recommendation{
				Category: p.Category,
				Priority: "High",
				Action:   fmt.Sprintf("Hold %.0f units of safety stock", p.SafetyStock),
				Reason:   fmt.Sprintf("Demand variability is high (CV %.0f%%).", p.DemandCV),
			})
		}
		if p.EOQ > 0 && p.AvgDailyDemand > 0 {
			cycleDays := 365 / (p.AnnualDemand / p.EOQ)
			recs = append(recs, Recommendation{
				Category: p.Category,
				Priority: "Low",
				Action:   fmt.Sprintf("Order %.0f units every %.0f days", p.EOQ, cycleDays),
				Reason:   "EOQ-based ordering minimizes combined ordering and holding cost.",
			})
		}
	}
	return recs
}
