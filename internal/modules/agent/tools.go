// Package agent binds the analytics modules into schema-validated tools
// behind a bounded reason-act-observe loop with a rule-based fallback.
package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/deliveryrisk"
	"github.com/chainsight/chainsight/internal/modules/forecast"
	"github.com/chainsight/chainsight/internal/modules/inventory"
	"github.com/chainsight/chainsight/internal/modules/supplier"
)

// ToolKind enumerates the closed tool set.
type ToolKind string

const (
	ToolQueryData           ToolKind = "query_data"
	ToolForecastDemand      ToolKind = "forecast_demand"
	ToolAnalyzeSupplier     ToolKind = "analyze_supplier"
	ToolCheckInventory      ToolKind = "check_inventory"
	ToolPredictDeliveryRisk ToolKind = "predict_delivery_risk"
	ToolTopProducts         ToolKind = "top_products"
	ToolCompareRegions      ToolKind = "compare_regions"
)

// ArgSpec declares one tool argument for validation and for the planner's
// function schema.
type ArgSpec struct {
	Name        string
	Type        string // "string", "integer" or "number"
	Description string
	Required    bool
	Enum        []string
	Min         *float64
	Max         *float64
}

// ToolSpec describes one callable tool.
type ToolSpec struct {
	Kind        ToolKind
	Description string
	Args        []ArgSpec
}

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// DataQuery filters the dataset for the query_data tool.
type DataQuery struct {
	Category     string `json:"category,omitempty"`
	Region       string `json:"region,omitempty"`
	ShippingMode string `json:"shipping_mode,omitempty"`
	Period       string `json:"period,omitempty"` // last_month, last_quarter, last_year, all
}

// DataSummary is the query_data tool result.
type DataSummary struct {
	Filters     DataQuery         `json:"filters"`
	KPIs        dataset.KPIReport `json:"kpis"`
	TopCategory string            `json:"top_category,omitempty"`
}

// ForecastSummary is the forecast_demand tool result.
type ForecastSummary struct {
	Category    string           `json:"category"`
	HorizonDays int              `json:"horizon_days"`
	AvgDaily    float64          `json:"avg_daily_demand"`
	Total       float64          `json:"total_demand"`
	Peak        float64          `json:"peak_demand"`
	PeakDate    time.Time        `json:"peak_date"`
	Metrics     forecast.Metrics `json:"metrics"`
	Points      []forecast.Point `json:"points"`
}

// SupplierReport is the analyze_supplier tool result.
type SupplierReport struct {
	Score supplier.Score        `json:"score"`
	Stats dataset.SupplierStats `json:"stats"`
}

// InventoryReport is the check_inventory tool result.
type InventoryReport struct {
	Policies        []inventory.Policy         `json:"policies"`
	Recommendations []inventory.Recommendation `json:"recommendations"`
}

// RiskReport is the predict_delivery_risk tool result.
type RiskReport struct {
	Context deliveryrisk.OrderContext `json:"context"`
	Result  deliveryrisk.WhatIfResult `json:"result"`
}

// TopProductsReport is the top_products tool result.
type TopProductsReport struct {
	Metric string                `json:"metric"`
	Ranks  []dataset.ProductRank `json:"ranks"`
}

// RegionReport is the compare_regions tool result.
type RegionReport struct {
	Regions []dataset.RegionStats `json:"regions"`
}

// Backend is the engine surface the tools call into.
type Backend interface {
	QueryData(ctx context.Context, q DataQuery) (*DataSummary, error)
	ForecastDemand(ctx context.Context, category string, horizonDays int) (*ForecastSummary, error)
	AnalyzeSupplier(ctx context.Context, supplierID string) (*SupplierReport, error)
	CheckInventory(ctx context.Context, category string) (*InventoryReport, error)
	PredictDeliveryRisk(ctx context.Context, oc deliveryrisk.OrderContext) (*RiskReport, error)
	TopProducts(ctx context.Context, metric string, n int) (*TopProductsReport, error)
	CompareRegions(ctx context.Context) (*RegionReport, error)
}

type registeredTool struct {
	spec    ToolSpec
	handler Handler
}

// Registry holds the closed tool set and validates invocations against
// each tool's argument schema.
type Registry struct {
	tools map[ToolKind]registeredTool
	order []ToolKind
	log   zerolog.Logger
}

// NewRegistry builds the full seven-tool registry over a backend.
func NewRegistry(b Backend, log zerolog.Logger) *Registry {
	r := &Registry{
		tools: make(map[ToolKind]registeredTool),
		log:   log.With().Str("component", "agent-registry").Logger(),
	}

	periodEnum := []string{"last_month", "last_quarter", "last_year", "all"}
	metricEnum := []string{"revenue", "quantity", "orders"}
	one := 1.0
	horizonMax := 365.0
	topMax := 50.0

	r.register(ToolSpec{
		Kind: ToolQueryData,
		Description: "Query the order history. Filters by category, region, " +
			"shipping mode or time period and returns summary statistics.",
		Args: []ArgSpec{
			{Name: "category", Type: "string", Description: "Product category to filter by", Enum: domain.Categories},
			{Name: "region", Type: "string", Description: "Market region to filter by", Enum: domain.Regions},
			{Name: "shipping_mode", Type: "string", Description: "Shipping mode to filter by", Enum: domain.ShippingModes},
			{Name: "period", Type: "string", Description: "Time period to include", Enum: periodEnum},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return b.QueryData(ctx, DataQuery{
			Category:     stringArg(args, "category"),
			Region:       stringArg(args, "region"),
			ShippingMode: stringArg(args, "shipping_mode"),
			Period:       stringArg(args, "period"),
		})
	})

	r.register(ToolSpec{
		Kind:        ToolForecastDemand,
		Description: "Forecast daily demand for a product category over the next N days.",
		Args: []ArgSpec{
			{Name: "category", Type: "string", Description: "Product category to forecast; omit for all categories", Enum: domain.Categories},
			{Name: "horizon_days", Type: "integer", Description: "Days to forecast (default 30)", Min: &one, Max: &horizonMax},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return b.ForecastDemand(ctx, stringArg(args, "category"), intArg(args, "horizon_days", 30))
	})

	r.register(ToolSpec{
		Kind:        ToolAnalyzeSupplier,
		Description: "Score one supplier across six performance dimensions with grade and suggestions.",
		Args: []ArgSpec{
			{Name: "supplier_id", Type: "string", Description: "Supplier identifier", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return b.AnalyzeSupplier(ctx, stringArg(args, "supplier_id"))
	})

	r.register(ToolSpec{
		Kind:        ToolCheckInventory,
		Description: "Inventory reorder policy per category: EOQ, safety stock, reorder point, stock status.",
		Args: []ArgSpec{
			{Name: "category", Type: "string", Description: "Product category; omit for all categories", Enum: domain.Categories},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return b.CheckInventory(ctx, stringArg(args, "category"))
	})

	r.register(ToolSpec{
		Kind:        ToolPredictDeliveryRisk,
		Description: "Predict late-delivery probability for a hypothetical order.",
		Args: []ArgSpec{
			{Name: "category", Type: "string", Description: "Product category", Enum: domain.Categories},
			{Name: "region", Type: "string", Description: "Market region", Enum: domain.Regions},
			{Name: "shipping_mode", Type: "string", Description: "Shipping mode", Enum: domain.ShippingModes},
			{Name: "quantity", Type: "number", Description: "Order quantity", Min: &one},
			{Name: "lead_time_days", Type: "number", Description: "Scheduled lead time in days", Min: &one},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return b.PredictDeliveryRisk(ctx, deliveryrisk.OrderContext{
			OrderDate:    time.Now().UTC(),
			Category:     stringArg(args, "category"),
			Region:       stringArg(args, "region"),
			ShippingMode: stringArg(args, "shipping_mode"),
			Quantity:     floatArg(args, "quantity", 10),
			LeadTimeDays: floatArg(args, "lead_time_days", 4),
		})
	})

	r.register(ToolSpec{
		Kind:        ToolTopProducts,
		Description: "Rank product categories by revenue, quantity or order count.",
		Args: []ArgSpec{
			{Name: "metric", Type: "string", Description: "Metric to rank by", Enum: metricEnum},
			{Name: "top_n", Type: "integer", Description: "Entries to return (default 10)", Min: &one, Max: &topMax},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		metric := stringArg(args, "metric")
		if metric == "" {
			metric = "revenue"
		}
		return b.TopProducts(ctx, metric, intArg(args, "top_n", 10))
	})

	r.register(ToolSpec{
		Kind:        ToolCompareRegions,
		Description: "Compare order volume, revenue and delivery performance across all market regions.",
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return b.CompareRegions(ctx)
	})

	return r
}

func (r *Registry) register(spec ToolSpec, h Handler) {
	r.tools[spec.Kind] = registeredTool{spec: spec, handler: h}
	r.order = append(r.order, spec.Kind)
}

// Specs returns the tool specs in registration order.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, k := range r.order {
		specs = append(specs, r.tools[k].spec)
	}
	return specs
}

// Invoke validates arguments against the tool's schema and executes it.
// Validation failures return ToolArgumentError so the loop can report
// them back as observations.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := r.tools[ToolKind(name)]
	if !ok {
		return nil, &domain.ToolArgumentError{Tool: name, Argument: "tool", Reason: "unknown tool"}
	}
	if args == nil {
		args = map[string]any{}
	}

	if err := validateArgs(tool.spec, args); err != nil {
		return nil, err
	}

	r.log.Debug().Str("tool", name).Msg("Invoking tool")
	return tool.handler(ctx, args)
}

func validateArgs(spec ToolSpec, args map[string]any) error {
	known := make(map[string]ArgSpec, len(spec.Args))
	for _, a := range spec.Args {
		known[a.Name] = a
	}

	for name := range args {
		if _, ok := known[name]; !ok {
			return &domain.ToolArgumentError{
				Tool: string(spec.Kind), Argument: name, Reason: "unexpected argument",
			}
		}
	}

	for _, a := range spec.Args {
		raw, present := args[a.Name]
		if !present {
			if a.Required {
				return &domain.ToolArgumentError{
					Tool: string(spec.Kind), Argument: a.Name, Reason: "required argument missing",
				}
			}
			continue
		}
		if err := validateValue(spec.Kind, a, raw); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(kind ToolKind, a ArgSpec, raw any) error {
	fail := func(reason string) error {
		return &domain.ToolArgumentError{Tool: string(kind), Argument: a.Name, Reason: reason}
	}

	switch a.Type {
	case "string":
		s, ok := raw.(string)
		if !ok {
			return fail("expected a string")
		}
		if len(a.Enum) > 0 {
			for _, e := range a.Enum {
				if e == s {
					return nil
				}
			}
			return fail(fmt.Sprintf("value %q not in allowed set", s))
		}
		return nil

	case "integer":
		f, ok := numeric(raw)
		if !ok || f != math.Trunc(f) {
			return fail("expected an integer")
		}
		return checkRange(fail, a, f)

	case "number":
		f, ok := numeric(raw)
		if !ok {
			return fail("expected a number")
		}
		return checkRange(fail, a, f)

	default:
		return fail("unsupported argument type " + a.Type)
	}
}

func checkRange(fail func(string) error, a ArgSpec, f float64) error {
	if a.Min != nil && f < *a.Min {
		return fail(fmt.Sprintf("value %v below minimum %v", f, *a.Min))
	}
	if a.Max != nil && f > *a.Max {
		return fail(fmt.Sprintf("value %v above maximum %v", f, *a.Max))
	}
	return nil
}

// numeric accepts the types JSON decoding produces for numbers.
func numeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringArg(args map[string]any, name string) string {
	if s, ok := args[name].(string); ok {
		return s
	}
	return ""
}

func intArg(args map[string]any, name string, def int) int {
	if f, ok := numeric(args[name]); ok {
		return int(f)
	}
	return def
}

func floatArg(args map[string]any, name string, def float64) float64 {
	if f, ok := numeric(args[name]); ok {
		return f
	}
	return def
}
