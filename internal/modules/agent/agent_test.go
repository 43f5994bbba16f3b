package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/deliveryrisk"
	"github.com/chainsight/chainsight/internal/modules/forecast"
	"github.com/chainsight/chainsight/internal/modules/inventory"
	"github.com/chainsight/chainsight/internal/modules/supplier"
)

// stubBackend returns canned results and records calls.
type stubBackend struct {
	calls []string
}

func (s *stubBackend) QueryData(_ context.Context, q DataQuery) (*DataSummary, error) {
	s.calls = append(s.calls, "query_data")
	return &DataSummary{
		Filters:     q,
		KPIs:        dataset.KPIReport{TotalOrders: 100, TotalRevenue: 5000, OnTimeRate: 0.9},
		TopCategory: "Computers",
	}, nil
}

func (s *stubBackend) ForecastDemand(_ context.Context, category string, horizon int) (*ForecastSummary, error) {
	s.calls = append(s.calls, "forecast_demand")
	return &ForecastSummary{
		Category: category, HorizonDays: horizon,
		AvgDaily: 42, Total: float64(42 * horizon), Peak: 60,
		PeakDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Metrics:  forecast.Metrics{MAE: 3, RMSE: 4, R2: 0.8},
	}, nil
}

func (s *stubBackend) AnalyzeSupplier(_ context.Context, id string) (*SupplierReport, error) {
	s.calls = append(s.calls, "analyze_supplier")
	if id == "SUP-MISSING" {
		return nil, fmt.Errorf("supplier %s not found", id)
	}
	return &SupplierReport{
		Score: supplier.Score{
			SupplierID: id, Composite: 82, Grade: "B",
			Dimensions: []supplier.Dimension{
				{Name: supplier.DimOnTime, Score: 92, Weight: 0.30},
				{Name: supplier.DimDefects, Score: 70, Weight: 0.20},
			},
			Suggestions: []string{supplier.DimDefects},
		},
		Stats: dataset.SupplierStats{SupplierID: id, Orders: 50, OnTimeRate: 0.92},
	}, nil
}

func (s *stubBackend) CheckInventory(_ context.Context, category string) (*InventoryReport, error) {
	s.calls = append(s.calls, "check_inventory")
	return &InventoryReport{
		Policies: []inventory.Policy{{
			Category: "Toys", EOQ: 120, SafetyStock: 30,
			ReorderPoint: 90, Status: inventory.StatusBalanced,
		}},
	}, nil
}

func (s *stubBackend) PredictDeliveryRisk(_ context.Context, oc deliveryrisk.OrderContext) (*RiskReport, error) {
	s.calls = append(s.calls, "predict_delivery_risk")
	return &RiskReport{
		Context: oc,
		Result:  deliveryrisk.WhatIfResult{Probability: 0.3, OnTime: 0.7, Band: "Low"},
	}, nil
}

func (s *stubBackend) TopProducts(_ context.Context, metric string, n int) (*TopProductsReport, error) {
	s.calls = append(s.calls, "top_products")
	return &TopProductsReport{
		Metric: metric,
		Ranks:  []dataset.ProductRank{{Category: "Computers", Value: 9000}},
	}, nil
}

func (s *stubBackend) CompareRegions(_ context.Context) (*RegionReport, error) {
	s.calls = append(s.calls, "compare_regions")
	return &RegionReport{
		Regions: []dataset.RegionStats{{Region: "Europe", Orders: 40, Revenue: 2000, OnTimeRate: 0.88}},
	}, nil
}

// scriptedPlanner replays a fixed sequence of responses.
type scriptedPlanner struct {
	responses []*PlannerResponse
	errs      []error
	step      int
}

func (p *scriptedPlanner) Plan(context.Context, []Message, []ToolSpec) (*PlannerResponse, error) {
	i := p.step
	p.step++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &PlannerResponse{Content: "done"}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *stubBackend) {
	t.Helper()
	b := &stubBackend{}
	return NewRegistry(b, zerolog.Nop()), b
}

func TestRegistrySpecsCoverAllTools(t *testing.T) {
	r, _ := newTestRegistry(t)
	specs := r.Specs()
	require.Len(t, specs, 7)

	kinds := map[ToolKind]bool{}
	for _, s := range specs {
		kinds[s.Kind] = true
	}
	for _, k := range []ToolKind{
		ToolQueryData, ToolForecastDemand, ToolAnalyzeSupplier,
		ToolCheckInventory, ToolPredictDeliveryRisk, ToolTopProducts,
		ToolCompareRegions,
	} {
		assert.True(t, kinds[k], "missing %s", k)
	}
}

func TestInvokeValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantArg string
	}{
		{"unknown tool", "launch_rockets", nil, "tool"},
		{"missing required", "analyze_supplier", map[string]any{}, "supplier_id"},
		{"enum violation", "query_data", map[string]any{"category": "Spaceships"}, "category"},
		{"unexpected argument", "compare_regions", map[string]any{"bogus": 1}, "bogus"},
		{"below minimum", "forecast_demand", map[string]any{"horizon_days": float64(0)}, "horizon_days"},
		{"not an integer", "forecast_demand", map[string]any{"horizon_days": 1.5}, "horizon_days"},
		{"wrong type", "analyze_supplier", map[string]any{"supplier_id": 42}, "supplier_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(ctx, tt.tool, tt.args)
			var argErr *domain.ToolArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.wantArg, argErr.Argument)
		})
	}
}

func TestInvokeRoutesToBackend(t *testing.T) {
	r, b := newTestRegistry(t)

	result, err := r.Invoke(context.Background(), "forecast_demand", map[string]any{
		"category":     "Toys",
		"horizon_days": float64(14),
	})
	require.NoError(t, err)

	summary, ok := result.(*ForecastSummary)
	require.True(t, ok)
	assert.Equal(t, "Toys", summary.Category)
	assert.Equal(t, 14, summary.HorizonDays)
	assert.Equal(t, []string{"forecast_demand"}, b.calls)
}

func TestConversationRingBuffer(t *testing.T) {
	conv := NewConversation()
	assert.NotEmpty(t, conv.ID())

	for i := 0; i < 25; i++ {
		conv.mu.Lock()
		conv.append(Turn{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)})
		conv.mu.Unlock()
	}

	turns := conv.Turns()
	require.Len(t, turns, memoryCapacity)
	// FIFO eviction keeps the newest ten.
	assert.Equal(t, "msg-15", turns[0].Content)
	assert.Equal(t, "msg-24", turns[len(turns)-1].Content)
}

func TestFallbackAnswersEveryToolCategory(t *testing.T) {
	r, _ := newTestRegistry(t)
	f := NewFallback(r, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name     string
		message  string
		wantTool string
	}{
		{"data query", "what is the total revenue this year?", "query_data"},
		{"forecast", "forecast demand for toys next month", "forecast_demand"},
		{"supplier", "analyze supplier SUP-002", "analyze_supplier"},
		{"inventory", "check inventory for computers", "check_inventory"},
		{"risk", "what is the delivery risk for same day shipping?", "predict_delivery_risk"},
		{"top products", "show the best categories", "top_products"},
		{"regions", "compare performance across regions", "compare_regions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, invs := f.Respond(ctx, tt.message)
			assert.NotEmpty(t, answer)
			require.Len(t, invs, 1)
			assert.Equal(t, tt.wantTool, invs[0].Tool)
			assert.False(t, invs[0].Failed)
		})
	}
}

func TestFallbackHelpForUnrecognized(t *testing.T) {
	r, _ := newTestRegistry(t)
	f := NewFallback(r, zerolog.Nop())

	answer, invs := f.Respond(context.Background(), "xyzzy plugh")
	assert.Contains(t, answer, "Supply Chain Intelligence Agent")
	assert.Empty(t, invs)
}

func TestFallbackSupplierWithoutID(t *testing.T) {
	r, _ := newTestRegistry(t)
	f := NewFallback(r, zerolog.Nop())

	answer, invs := f.Respond(context.Background(), "how are our suppliers doing?")
	assert.NotEmpty(t, answer)
	assert.Empty(t, invs)
}

func TestChatWithoutPlannerUsesFallback(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := New(r, nil, zerolog.Nop())
	conv := NewConversation()

	answer, err := a.Chat(context.Background(), conv, "compare regions")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)

	turns := conv.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.NotEmpty(t, turns[1].Invocations)
}

func TestChatPlannerToolCallThenAnswer(t *testing.T) {
	r, b := newTestRegistry(t)
	planner := &scriptedPlanner{
		responses: []*PlannerResponse{
			{ToolCalls: []ToolCall{{ID: "1", Name: "compare_regions", Args: map[string]any{}}}},
			{Content: "Europe leads with $2000 revenue."},
		},
	}
	a := New(r, planner, zerolog.Nop())
	conv := NewConversation()

	answer, err := a.Chat(context.Background(), conv, "compare regions")
	require.NoError(t, err)
	assert.Equal(t, "Europe leads with $2000 revenue.", answer)
	assert.Equal(t, []string{"compare_regions"}, b.calls)

	turns := conv.Turns()
	require.Len(t, turns, 2)
	require.Len(t, turns[1].Invocations, 1)
	assert.Equal(t, "compare_regions", turns[1].Invocations[0].Tool)
	assert.False(t, turns[1].Invocations[0].Failed)
}

func TestChatBadToolArgumentsBecomeObservation(t *testing.T) {
	r, _ := newTestRegistry(t)
	planner := &scriptedPlanner{
		responses: []*PlannerResponse{
			{ToolCalls: []ToolCall{{ID: "1", Name: "analyze_supplier", Args: map[string]any{}}}},
			{Content: "I need a supplier id to analyze."},
		},
	}
	a := New(r, planner, zerolog.Nop())
	conv := NewConversation()

	answer, err := a.Chat(context.Background(), conv, "analyze our supplier")
	require.NoError(t, err)
	assert.Equal(t, "I need a supplier id to analyze.", answer)

	invs := conv.Turns()[1].Invocations
	require.Len(t, invs, 1)
	assert.True(t, invs[0].Failed)
	assert.Contains(t, invs[0].Observation, "required argument missing")
}

func TestChatPlannerUnavailableFallsBack(t *testing.T) {
	r, _ := newTestRegistry(t)
	planner := &scriptedPlanner{
		errs: []error{&domain.PlannerUnavailableError{Cause: fmt.Errorf("connection refused")}},
	}
	a := New(r, planner, zerolog.Nop())
	conv := NewConversation()

	answer, err := a.Chat(context.Background(), conv, "compare regions")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Contains(t, answer, "Region Comparison")
}

func TestChatRoundCeilingFallsBack(t *testing.T) {
	r, _ := newTestRegistry(t)

	// Planner that always asks for another tool call.
	var responses []*PlannerResponse
	for i := 0; i < maxRounds+2; i++ {
		responses = append(responses, &PlannerResponse{
			ToolCalls: []ToolCall{{ID: fmt.Sprint(i), Name: "compare_regions", Args: map[string]any{}}},
		})
	}
	planner := &scriptedPlanner{responses: responses}
	a := New(r, planner, zerolog.Nop())
	conv := NewConversation()

	answer, err := a.Chat(context.Background(), conv, "compare regions")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Equal(t, maxRounds, planner.step)
}

func TestChatEmitsEvents(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := New(r, nil, zerolog.Nop())
	conv := NewConversation()

	var stages []string
	_, err := a.ChatWithEvents(context.Background(), conv, "compare regions", func(stage, detail string) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)
	assert.Contains(t, stages, "planning")
	assert.Contains(t, stages, "answer")
}
