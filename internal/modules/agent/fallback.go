package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/domain"
)

// GenericFailureAnswer is returned when no path can produce a useful
// response.
const GenericFailureAnswer = "I was unable to process your request. Please try rephrasing your question."

var supplierIDPattern = regexp.MustCompile(`(?i)\bsup[-_][a-z0-9]+\b`)

// Fallback answers user messages without a planner: keyword intent
// matching picks at most one tool, executes it, and formats a templated
// answer. Every tool category is answerable offline.
type Fallback struct {
	registry *Registry
	log      zerolog.Logger
}

// NewFallback creates the rule-based dispatcher.
func NewFallback(registry *Registry, log zerolog.Logger) *Fallback {
	return &Fallback{
		registry: registry,
		log:      log.With().Str("component", "agent-fallback").Logger(),
	}
}

// Respond routes a message to the best-matching tool and renders its
// result. It always returns a non-empty answer.
func (f *Fallback) Respond(ctx context.Context, message string) (string, []ToolInvocation) {
	msg := strings.ToLower(message)

	kind, args, direct := f.route(msg)
	if direct != "" {
		return direct, nil
	}

	result, err := f.registry.Invoke(ctx, string(kind), args)
	inv := ToolInvocation{Tool: string(kind), Args: args}
	if err != nil {
		inv.Observation = err.Error()
		inv.Failed = true
		f.log.Warn().Err(err).Str("tool", string(kind)).Msg("Fallback tool failed")
		return GenericFailureAnswer, []ToolInvocation{inv}
	}

	answer := f.render(kind, result)
	if answer == "" {
		answer = GenericFailureAnswer
	}
	inv.Observation = "ok"
	return answer, []ToolInvocation{inv}
}

// route picks a tool and default arguments for a message. A non-empty
// third return short-circuits with a direct answer.
func (f *Fallback) route(msg string) (ToolKind, map[string]any, string) {
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(msg, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("forecast", "predict demand", "future demand", "demand outlook"):
		args := map[string]any{"horizon_days": 30}
		if cat := matchCode(msg, domain.Categories); cat != "" {
			args["category"] = cat
		}
		return ToolForecastDemand, args, ""

	case contains("supplier", "vendor"):
		id := supplierIDPattern.FindString(msg)
		if id == "" {
			return "", nil, "Please name a supplier id (for example SUP-001) and I will score its performance across delivery, defects, consistency, cost, lead time and volume."
		}
		return ToolAnalyzeSupplier, map[string]any{"supplier_id": strings.ToUpper(id)}, ""

	case contains("inventory", "stock", "reorder", "eoq", "safety"):
		args := map[string]any{}
		if cat := matchCode(msg, domain.Categories); cat != "" {
			args["category"] = cat
		}
		return ToolCheckInventory, args, ""

	case contains("late", "delay", "delivery risk", "delivery", "on time", "on-time"):
		args := map[string]any{}
		if cat := matchCode(msg, domain.Categories); cat != "" {
			args["category"] = cat
		}
		if region := matchCode(msg, domain.Regions); region != "" {
			args["region"] = region
		}
		if mode := matchCode(msg, domain.ShippingModes); mode != "" {
			args["shipping_mode"] = mode
		}
		return ToolPredictDeliveryRisk, args, ""

	case contains("top", "best", "worst", "ranking", "rank"):
		metric := "revenue"
		if contains("quantity", "units", "volume") {
			metric = "quantity"
		} else if contains("order count", "most orders") {
			metric = "orders"
		}
		return ToolTopProducts, map[string]any{"metric": metric, "top_n": 10}, ""

	case contains("region", "compare", "market", "geograph"):
		return ToolCompareRegions, map[string]any{}, ""

	case contains("revenue", "sales", "order", "how many", "total", "kpi", "summary", "overview", "data"):
		args := map[string]any{}
		if cat := matchCode(msg, domain.Categories); cat != "" {
			args["category"] = cat
		}
		if region := matchCode(msg, domain.Regions); region != "" {
			args["region"] = region
		}
		if strings.Contains(msg, "year") {
			args["period"] = "last_year"
		} else if strings.Contains(msg, "quarter") {
			args["period"] = "last_quarter"
		} else if strings.Contains(msg, "month") {
			args["period"] = "last_month"
		}
		return ToolQueryData, args, ""

	default:
		return "", nil, helpText
	}
}

func (f *Fallback) render(kind ToolKind, result any) string {
	switch r := result.(type) {
	case *DataSummary:
		return renderData(r)
	case *ForecastSummary:
		return renderForecast(r)
	case *SupplierReport:
		return renderSupplier(r)
	case *InventoryReport:
		return renderInventory(r)
	case *RiskReport:
		return renderRisk(r)
	case *TopProductsReport:
		return renderTopProducts(r)
	case *RegionReport:
		return renderRegions(r)
	default:
		f.log.Warn().Str("tool", string(kind)).Msg("Unrenderable tool result")
		return ""
	}
}

func renderData(d *DataSummary) string {
	var b strings.Builder
	b.WriteString("**Supply Chain Summary**\n\n")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Total Orders | %d |\n", d.KPIs.TotalOrders)
	fmt.Fprintf(&b, "| Total Revenue | $%.2f |\n", d.KPIs.TotalRevenue)
	fmt.Fprintf(&b, "| Total Quantity | %.0f units |\n", d.KPIs.TotalQuantity)
	fmt.Fprintf(&b, "| On-Time Rate | %.1f%% |\n", d.KPIs.OnTimeRate*100)
	fmt.Fprintf(&b, "| Avg Lead Time | %.1f days |\n", d.KPIs.AvgLeadTimeDays)
	fmt.Fprintf(&b, "| Avg Discount | %.1f%% |\n", d.KPIs.AvgDiscount*100)
	if d.TopCategory != "" {
		fmt.Fprintf(&b, "| Top Category | %s |\n", d.TopCategory)
	}
	if !d.KPIs.FirstOrderDate.IsZero() {
		fmt.Fprintf(&b, "| Date Range | %s to %s |\n",
			d.KPIs.FirstOrderDate.Format("2006-01-02"),
			d.KPIs.LastOrderDate.Format("2006-01-02"))
	}
	return b.String()
}

func renderForecast(fc *ForecastSummary) string {
	category := fc.Category
	if category == "" {
		category = "All Categories"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Demand Forecast: %s** (%d days)\n\n", category, fc.HorizonDays)
	fmt.Fprintf(&b, "- Average daily demand: %.0f units\n", fc.AvgDaily)
	fmt.Fprintf(&b, "- Total predicted demand: %.0f units\n", fc.Total)
	fmt.Fprintf(&b, "- Peak demand: %.0f units on %s\n", fc.Peak, fc.PeakDate.Format("2006-01-02"))
	if fc.Metrics.RMSE > 0 {
		fmt.Fprintf(&b, "\nModel accuracy: MAE %.1f, RMSE %.1f, R² %.3f\n",
			fc.Metrics.MAE, fc.Metrics.RMSE, fc.Metrics.R2)
	}
	return b.String()
}

func renderSupplier(r *SupplierReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Supplier Analysis: %s**\n\n", r.Score.SupplierID)
	fmt.Fprintf(&b, "Composite score %.1f, grade %s\n\n", r.Score.Composite, r.Score.Grade)
	b.WriteString("| Dimension | Score |\n|-----------|-------|\n")
	for _, d := range r.Score.Dimensions {
		fmt.Fprintf(&b, "| %s | %.1f |\n", d.Name, d.Score)
	}
	fmt.Fprintf(&b, "\nOrders: %d, on-time rate %.1f%%, avg lead time %.1f days\n",
		r.Stats.Orders, r.Stats.OnTimeRate*100, r.Stats.AvgLeadTimeDays)
	if len(r.Score.Suggestions) > 0 {
		fmt.Fprintf(&b, "\nImprovement focus: %s\n", strings.Join(r.Score.Suggestions, ", "))
	}
	return b.String()
}

func renderInventory(r *InventoryReport) string {
	if len(r.Policies) == 0 {
		return "No categories have enough order history for an inventory policy yet."
	}
	var b strings.Builder
	b.WriteString("**Inventory Policy**\n\n")
	b.WriteString("| Category | EOQ | Safety Stock | Reorder Point | Status |\n")
	b.WriteString("|----------|-----|--------------|---------------|--------|\n")
	for _, p := range r.Policies {
		fmt.Fprintf(&b, "| %s | %.0f | %.0f | %.0f | %s |\n",
			p.Category, p.EOQ, p.SafetyStock, p.ReorderPoint, p.Status)
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", rec.Priority, rec.Category, rec.Action)
		}
	}
	return b.String()
}

func renderRisk(r *RiskReport) string {
	var b strings.Builder
	b.WriteString("**Delivery Risk Prediction**\n\n")
	fmt.Fprintf(&b, "- Late probability: %.1f%%\n", r.Result.Probability*100)
	fmt.Fprintf(&b, "- Risk band: %s\n", r.Result.Band)
	fmt.Fprintf(&b, "- On-time probability: %.1f%%\n", r.Result.OnTime*100)
	switch r.Result.Band {
	case "High":
		b.WriteString("\nRecommendation: consider Same Day or First Class shipping.\n")
	case "Low":
		b.WriteString("\nRecommendation: standard delivery should be acceptable.\n")
	default:
		b.WriteString("\nRecommendation: monitor closely; use faster shipping if the timeline is critical.\n")
	}
	return b.String()
}

func renderTopProducts(r *TopProductsReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Top Categories by %s**\n\n", r.Metric)
	b.WriteString("| Rank | Category | Value |\n|------|----------|-------|\n")
	for i, rank := range r.Ranks {
		fmt.Fprintf(&b, "| %d | %s | %.2f |\n", i+1, rank.Category, rank.Value)
	}
	return b.String()
}

func renderRegions(r *RegionReport) string {
	var b strings.Builder
	b.WriteString("**Region Comparison**\n\n")
	b.WriteString("| Region | Orders | Revenue | On-Time | Avg Lead Time |\n")
	b.WriteString("|--------|--------|---------|---------|---------------|\n")
	for _, reg := range r.Regions {
		fmt.Fprintf(&b, "| %s | %d | $%.2f | %.1f%% | %.1f days |\n",
			reg.Region, reg.Orders, reg.Revenue, reg.OnTimeRate*100, reg.AvgLeadTimeDays)
	}
	return b.String()
}

// matchCode finds the first closed-set code mentioned in a message.
func matchCode(msg string, set []string) string {
	for _, code := range set {
		if strings.Contains(msg, strings.ToLower(code)) {
			return code
		}
	}
	return ""
}

const helpText = `**Supply Chain Intelligence Agent**

I can help you with:

- **Data analysis**: "What is the total revenue for Computers?"
- **Demand forecasting**: "Forecast demand for Sporting Goods"
- **Supplier analysis**: "Analyze supplier SUP-001"
- **Inventory health**: "Check inventory for Toys"
- **Delivery risk**: "What is the delivery risk for Same Day shipping?"
- **Category rankings**: "Show top categories by revenue"
- **Regional comparison**: "Compare performance across regions"`
