// Package testing provides shared fixtures for unit tests.
package testing

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/chainsight/chainsight/internal/domain"
)

// FixtureStart is the first order date every generator uses.
var FixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Suppliers used by the generated fixtures.
var FixtureSuppliers = []string{"SUP-001", "SUP-002", "SUP-003", "SUP-004", "SUP-005"}

// GenerateOrders produces n synthetic orders with a seeded RNG so tests
// are reproducible. Demand follows a weekly cycle plus noise; lateness
// correlates with long lead times and slow shipping modes.
func GenerateOrders(n int, seed int64) []domain.OrderRecord {
	rng := rand.New(rand.NewSource(seed))
	records := make([]domain.OrderRecord, 0, n)

	for i := 0; i < n; i++ {
		orderDate := FixtureStart.AddDate(0, 0, i/4) // ~4 orders per day
		category := domain.Categories[rng.Intn(len(domain.Categories))]
		region := domain.Regions[rng.Intn(len(domain.Regions))]
		mode := domain.ShippingModes[rng.Intn(len(domain.ShippingModes))]
		supplier := FixtureSuppliers[rng.Intn(len(FixtureSuppliers))]

		// Weekly demand cycle with noise.
		dow := float64(orderDate.Weekday())
		demand := 20 + 8*math.Sin(2*math.Pi*dow/7) + rng.Float64()*10

		scheduled := float64(2 + rng.Intn(8))
		delay := rng.NormFloat64() * 1.5
		if mode == "Standard Class" {
			delay += 0.8
		}
		actual := scheduled + delay
		if actual < 0.5 {
			actual = 0.5
		}

		delivery := orderDate.Add(time.Duration(actual*24) * time.Hour)

		records = append(records, domain.OrderRecord{
			OrderID:        int64(i + 1),
			OrderDate:      orderDate,
			DeliveryDate:   delivery,
			Category:       category,
			Region:         region,
			ShippingMode:   mode,
			SupplierID:     supplier,
			Quantity:       math.Round(demand),
			UnitPrice:      10 + rng.Float64()*90,
			Discount:       math.Round(rng.Float64()*30) / 100,
			InventoryLevel: 50 + rng.Float64()*450,
			LeadTimeDays:   scheduled,
			Late:           delay > 0.5,
		})
	}
	return records
}

// GenerateDailyDemand produces a demand series of days length with weekly
// seasonality and a mild trend, suitable for forecasting tests.
func GenerateDailyDemand(days int, seed int64) ([]time.Time, []float64) {
	rng := rand.New(rand.NewSource(seed))
	dates := make([]time.Time, days)
	values := make([]float64, days)
	for i := 0; i < days; i++ {
		d := FixtureStart.AddDate(0, 0, i)
		dates[i] = d
		dow := float64(d.Weekday())
		values[i] = 100 +
			0.1*float64(i) + // Trend
			15*math.Sin(2*math.Pi*dow/7) + // Weekly cycle
			rng.NormFloat64()*5
		if values[i] < 0 {
			values[i] = 0
		}
	}
	return dates, values
}

// OrderFor builds a single valid order with overridable mutators applied
// on top of sane defaults.
func OrderFor(id int64, mutate ...func(*domain.OrderRecord)) domain.OrderRecord {
	rec := domain.OrderRecord{
		OrderID:        id,
		OrderDate:      FixtureStart,
		DeliveryDate:   FixtureStart.AddDate(0, 0, 4),
		Category:       "Computers",
		Region:         "Europe",
		ShippingMode:   "Standard Class",
		SupplierID:     fmt.Sprintf("SUP-%03d", id%5+1),
		Quantity:       10,
		UnitPrice:      25,
		Discount:       0.1,
		InventoryLevel: 120,
		LeadTimeDays:   4,
		Late:           false,
	}
	for _, m := range mutate {
		m(&rec)
	}
	return rec
}
