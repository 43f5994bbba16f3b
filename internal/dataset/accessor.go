package dataset

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chainsight/chainsight/internal/domain"
)

// Deliveries overrunning the scheduled lead time by more than this many
// days count as failed fulfillments for the defect-rate aggregate.
const severeDelayDays = 3.0

// KPIReport holds dataset-wide headline metrics.
type KPIReport struct {
	TotalOrders     int       `json:"total_orders"`
	TotalQuantity   float64   `json:"total_quantity"`
	TotalRevenue    float64   `json:"total_revenue"`
	OnTimeRate      float64   `json:"on_time_rate"`
	AvgLeadTimeDays float64   `json:"avg_lead_time_days"`
	AvgDiscount     float64   `json:"avg_discount"`
	FirstOrderDate  time.Time `json:"first_order_date"`
	LastOrderDate   time.Time `json:"last_order_date"`
}

// DailyPoint is one calendar day of aggregated demand.
type DailyPoint struct {
	Date         time.Time `json:"date"`
	Demand       float64   `json:"demand"`
	Revenue      float64   `json:"revenue"`
	Orders       int       `json:"orders"`
	AvgUnitPrice float64   `json:"avg_unit_price"`
	AvgDiscount  float64   `json:"avg_discount"`
}

// CategoryStats aggregates orders for one product category.
type CategoryStats struct {
	Category        string  `json:"category"`
	Orders          int     `json:"orders"`
	TotalQuantity   float64 `json:"total_quantity"`
	Revenue         float64 `json:"revenue"`
	AvgUnitPrice    float64 `json:"avg_unit_price"`
	LateRate        float64 `json:"late_rate"`
	AvgLeadTimeDays float64 `json:"avg_lead_time_days"`
}

// SupplierStats aggregates orders for one supplier. The fields map onto
/// the six scoring dimensions: OnTimeRate, DefectRate (severe-delay share),
// Consistency (inverse delay spread), AvgUnitPrice (cost index),
// AvgLeadTimeDays and Orders (volume).
type SupplierStats struct {
	SupplierID      string  `json:"supplier_id"`
	Orders          int     `json:"orders"`
	TotalQuantity   float64 `json:"total_quantity"`
	Revenue         float64 `json:"revenue"`
	OnTimeRate      float64 `json:"on_time_rate"`
	DefectRate      float64 `json:"defect_rate"`
	Consistency     float64 `json:"consistency"`
	AvgUnitPrice    float64 `json:"avg_unit_price"`
	AvgLeadTimeDays float64 `json:"avg_lead_time_days"`
}

// RegionStats aggregates orders for one region.
type RegionStats struct {
	Region          string  `json:"region"`
	Orders          int     `json:"orders"`
	TotalQuantity   float64 `json:"total_quantity"`
	Revenue         float64 `json:"revenue"`
	OnTimeRate      float64 `json:"on_time_rate"`
	AvgLeadTimeDays float64 `json:"avg_lead_time_days"`
	AvgDiscount     float64 `json:"avg_discount"`
}

// ProductRank is one leaderboard entry from TopProducts.
type ProductRank struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
}

// FilterSpec selects a record subset. Zero values mean "no constraint".
type FilterSpec struct {
	From         time.Time
	To           time.Time
	Category     string
	Region       string
	ShippingMode string
}

// Accessor provides read-only aggregate views over a loaded record set.
// It never mutates the records it was constructed with.
type Accessor struct {
	records []domain.OrderRecord
}

// New copies and date-sorts the records into a new accessor.
func New(records []domain.OrderRecord) *Accessor {
	sorted := make([]domain.OrderRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderDate.Equal(sorted[j].OrderDate) {
			return sorted[i].OrderID < sorted[j].OrderID
		}
		return sorted[i].OrderDate.Before(sorted[j].OrderDate)
	})
	return &Accessor{records: sorted}
}

// Records returns the sorted record slice. Callers must not modify it.
func (a *Accessor) Records() []domain.OrderRecord {
	return a.records
}

// Len returns the number of records.
func (a *Accessor) Len() int {
	return len(a.records)
}

// Fingerprint identifies the loaded dataset for cache keying. Two
// accessors over the same records produce the same fingerprint.
func (a *Accessor) Fingerprint() string {
	if len(a.records) == 0 {
		return "empty"
	}
	var qty float64
	for _, r := range a.records {
		qty += r.Quantity
	}
	first := a.records[0]
	last := a.records[len(a.records)-1]
	return fmt.Sprintf("%d:%s:%s:%.2f",
		len(a.records),
		first.OrderDate.Format(dateLayout),
		last.OrderDate.Format(dateLayout),
		qty)
}

// KPIs computes dataset-wide headline metrics.
func (a *Accessor) KPIs() KPIReport {
	report := KPIReport{TotalOrders: len(a.records)}
	if len(a.records) == 0 {
		return report
	}

	var onTime, leadSum, discountSum float64
	for _, r := range a.records {
		report.TotalQuantity += r.Quantity
		report.TotalRevenue += r.Revenue()
		if !r.Late {
			onTime++
		}
		leadSum += r.ActualLeadTimeDays()
		discountSum += r.Discount
	}

	n := float64(len(a.records))
	report.OnTimeRate = onTime / n
	report.AvgLeadTimeDays = leadSum / n
	report.AvgDiscount = discountSum / n
	report.FirstOrderDate = a.records[0].OrderDate
	report.LastOrderDate = a.records[len(a.records)-1].OrderDate
	return report
}

// DailySeries aggregates demand per calendar day in ascending date order.
// An empty category aggregates across all categories. Days with no orders
// are absent from the result.
func (a *Accessor) DailySeries(category string) []DailyPoint {
	type bucket struct {
		demand, revenue, priceSum, discountSum float64
		orders                                 int
	}
	buckets := make(map[string]*bucket)

	for _, r := range a.records {
		if category != "" && r.Category != category {
			continue
		}
		key := r.OrderDate.Format(dateLayout)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.demand += r.Quantity
		b.revenue += r.Revenue()
		b.priceSum += r.UnitPrice
		b.discountSum += r.Discount
		b.orders++
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	series := make([]DailyPoint, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		date, _ := time.Parse(dateLayout, k)
		n := float64(b.orders)
		series = append(series, DailyPoint{
			Date:         date,
			Demand:       b.demand,
			Revenue:      b.revenue,
			Orders:       b.orders,
			AvgUnitPrice: b.priceSum / n,
			AvgDiscount:  b.discountSum / n,
		})
	}
	return series
}

// CategoryAggregates returns per-category stats sorted by revenue descending.
func (a *Accessor) CategoryAggregates() []CategoryStats {
	type bucket struct {
		orders                 int
		qty, revenue, priceSum float64
		lateCount, leadSum     float64
	}
	buckets := make(map[string]*bucket)

	for _, r := range a.records {
		b, ok := buckets[r.Category]
		if !ok {
			b = &bucket{}
			buckets[r.Category] = b
		}
		b.orders++
		b.qty += r.Quantity
		b.revenue += r.Revenue()
		b.priceSum += r.UnitPrice
		if r.Late {
			b.lateCount++
		}
		b.leadSum += r.ActualLeadTimeDays()
	}

	out := make([]CategoryStats, 0, len(buckets))
	for cat, b := range buckets {
		n := float64(b.orders)
		out = append(out, CategoryStats{
			Category:        cat,
			Orders:          b.orders,
			TotalQuantity:   b.qty,
			Revenue:         b.revenue,
			AvgUnitPrice:    b.priceSum / n,
			LateRate:        b.lateCount / n,
			AvgLeadTimeDays: b.leadSum / n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out
}

// SupplierAggregates returns per-supplier stats sorted by supplier id.
func (a *Accessor) SupplierAggregates() []SupplierStats {
	grouped := make(map[string][]domain.OrderRecord)
	for _, r := range a.records {
		grouped[r.SupplierID] = append(grouped[r.SupplierID], r)
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]SupplierStats, 0, len(ids))
	for _, id := range ids {
		recs := grouped[id]
		n := float64(len(recs))

		var onTime, severe, qty, revenue, priceSum, leadSum float64
		delays := make([]float64, 0, len(recs))
		for _, r := range recs {
			if !r.Late {
				onTime++
			}
			if r.DelayDays() > severeDelayDays {
				severe++
			}
			qty += r.Quantity
			revenue += r.Revenue()
			priceSum += r.UnitPrice
			leadSum += r.ActualLeadTimeDays()
			delays = append(delays, r.DelayDays())
		}

		delayStd := 0.0
		if len(delays) > 1 {
			delayStd = stat.StdDev(delays, nil)
		}

		out = append(out, SupplierStats{
			SupplierID:      id,
			Orders:          len(recs),
			TotalQuantity:   qty,
			Revenue:         revenue,
			OnTimeRate:      onTime / n,
			DefectRate:      severe / n,
			Consistency:     1 / (1 + delayStd),
			AvgUnitPrice:    priceSum / n,
			AvgLeadTimeDays: leadSum / n,
		})
	}
	return out
}

// RegionAggregates returns per-region stats sorted by revenue descending.
func (a *Accessor) RegionAggregates() []RegionStats {
	type bucket struct {
		orders                                 int
		qty, revenue, onTime, leadSum, discSum float64
	}
	buckets := make(map[string]*bucket)

	for _, r := range a.records {
		b, ok := buckets[r.Region]
		if !ok {
			b = &bucket{}
			buckets[r.Region] = b
		}
		b.orders++
		b.qty += r.Quantity
		b.revenue += r.Revenue()
		if !r.Late {
			b.onTime++
		}
		b.leadSum += r.ActualLeadTimeDays()
		b.discSum += r.Discount
	}

	out := make([]RegionStats, 0, len(buckets))
	for region, b := range buckets {
		n := float64(b.orders)
		out = append(out, RegionStats{
			Region:          region,
			Orders:          b.orders,
			TotalQuantity:   b.qty,
			Revenue:         b.revenue,
			OnTimeRate:      b.onTime / n,
			AvgLeadTimeDays: b.leadSum / n,
			AvgDiscount:     b.discSum / n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out
}

// TopProducts ranks categories by the given metric ("revenue", "quantity"
// or "orders") and returns the top n. Unknown metrics rank by revenue.
func (a *Accessor) TopProducts(metric string, n int) []ProductRank {
	stats := a.CategoryAggregates()

	ranks := make([]ProductRank, 0, len(stats))
	for _, s := range stats {
		var v float64
		switch metric {
		case "quantity":
			v = s.TotalQuantity
		case "orders":
			v = float64(s.Orders)
		default:
			v = s.Revenue
		}
		ranks = append(ranks, ProductRank{Category: s.Category, Value: v})
	}

	sort.Slice(ranks, func(i, j int) bool { return ranks[i].Value > ranks[j].Value })
	if n > 0 && n < len(ranks) {
		ranks = ranks[:n]
	}
	return ranks
}

// Filter returns a new accessor over the matching subset.
func (a *Accessor) Filter(spec FilterSpec) *Accessor {
	var matched []domain.OrderRecord
	for _, r := range a.records {
		if !spec.From.IsZero() && r.OrderDate.Before(spec.From) {
			continue
		}
		if !spec.To.IsZero() && r.OrderDate.After(spec.To) {
			continue
		}
		if spec.Category != "" && r.Category != spec.Category {
			continue
		}
		if spec.Region != "" && r.Region != spec.Region {
			continue
		}
		if spec.ShippingMode != "" && r.ShippingMode != spec.ShippingMode {
			continue
		}
		matched = append(matched, r)
	}
	return &Accessor{records: matched}
}
