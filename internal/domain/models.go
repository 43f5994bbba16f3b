package domain

import "time"

// Categorical code sets for the order schema. These are closed sets: the
// dataset collaborator guarantees every record uses one of these values, and
// the classifiers encode categoricals as indices into them.
var (
	Categories = []string{
		"Accessories", "Apparel", "Computers", "Consumer Electronics",
		"Fitness", "Garden", "Health and Beauty", "Outdoors",
		"Pet Supplies", "Sporting Goods", "Toys", "Video Games",
	}

	Regions = []string{"Africa", "Europe", "LATAM", "Pacific Asia", "USCA"}

	ShippingModes = []string{"Standard Class", "Second Class", "First Class", "Same Day"}
)

// OrderRecord is a single historical order/shipment row. Records are
// immutable after load; every analytics module reads them through the
// dataset accessor.
type OrderRecord struct {
	OrderID        int64     `json:"order_id"`
	OrderDate      time.Time `json:"order_date"`
	DeliveryDate   time.Time `json:"delivery_date"`
	Category       string    `json:"category"`
	Region         string    `json:"region"`
	ShippingMode   string    `json:"shipping_mode"`
	SupplierID     string    `json:"supplier_id"`
	Quantity       float64   `json:"quantity"`
	UnitPrice      float64   `json:"unit_price"`
	Discount       float64   `json:"discount"`        // Fraction in [0,1]
	InventoryLevel float64   `json:"inventory_level"` // Units on hand at order time
	LeadTimeDays   float64   `json:"lead_time_days"`  // Scheduled supplier lead time
	Late           bool      `json:"late"`
}

// Revenue returns the order's revenue after discount.
func (r OrderRecord) Revenue() float64 {
	return r.UnitPrice * r.Quantity * (1 - r.Discount)
}

// ActualLeadTimeDays returns the realized lead time in days.
func (r OrderRecord) ActualLeadTimeDays() float64 {
	return r.DeliveryDate.Sub(r.OrderDate).Hours() / 24
}

// DelayDays returns how many days the delivery overran the scheduled lead
// time. Negative values mean early delivery.
func (r OrderRecord) DelayDays() float64 {
	return r.ActualLeadTimeDays() - r.LeadTimeDays
}

// Validate checks the record against the schema contract.
func (r OrderRecord) Validate() error {
	if r.OrderDate.IsZero() {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "order_date", Reason: "missing"}
	}
	if r.DeliveryDate.IsZero() {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "delivery_date", Reason: "missing"}
	}
	if r.DeliveryDate.Before(r.OrderDate) {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "delivery_date", Reason: "before order date"}
	}
	if CategoryIndex(Categories, r.Category) < 0 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "category", Reason: "unknown code " + r.Category}
	}
	if CategoryIndex(Regions, r.Region) < 0 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "region", Reason: "unknown code " + r.Region}
	}
	if CategoryIndex(ShippingModes, r.ShippingMode) < 0 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "shipping_mode", Reason: "unknown code " + r.ShippingMode}
	}
	if r.SupplierID == "" {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "supplier_id", Reason: "empty"}
	}
	if r.Quantity < 0 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "quantity", Reason: "negative"}
	}
	if r.UnitPrice < 0 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "unit_price", Reason: "negative"}
	}
	if r.Discount < 0 || r.Discount > 1 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "discount", Reason: "outside [0,1]"}
	}
	if r.InventoryLevel < 0 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "inventory_level", Reason: "negative"}
	}
	if r.LeadTimeDays < 0 {
		return &MalformedRecordError{OrderID: r.OrderID, Field: "lead_time_days", Reason: "negative"}
	}
	return nil
}

// CategoryIndex returns the index of a value within a closed code set, or
// -1 for unknown values. Unknown codes are tolerated at inference time
// (encoded as -1) but rejected at dataset load.
func CategoryIndex(set []string, value string) int {
	for i, v := range set {
		if v == value {
			return i
		}
	}
	return -1
}
