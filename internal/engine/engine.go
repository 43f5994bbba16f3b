// Package engine wires the dataset, trained models and analytics
// modules behind one surface. It implements the agent tool backend and
// serves the HTTP handlers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/config"
	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/agent"
	"github.com/chainsight/chainsight/internal/modules/analytics"
	"github.com/chainsight/chainsight/internal/modules/boost"
	"github.com/chainsight/chainsight/internal/modules/deliveryrisk"
	"github.com/chainsight/chainsight/internal/modules/features"
	"github.com/chainsight/chainsight/internal/modules/forecast"
	"github.com/chainsight/chainsight/internal/modules/inventory"
	"github.com/chainsight/chainsight/internal/modules/supplier"
)

// Cache keys for persisted aggregate results.
const (
	cacheKeySuppliers = "supplier_leaderboard"
	cacheKeyInventory = "inventory_policies"
)

// forecastAllKey is the map key for the all-categories demand model.
const forecastAllKey = ""

var _ agent.Backend = (*Engine)(nil)

// Engine holds the loaded dataset and trained models. Reads take the
// read lock; Reload swaps everything under the write lock, so requests
// in flight keep the snapshot they started with.
type Engine struct {
	cfg   *config.Config
	repo  *dataset.Repository
	cache *analytics.Cache
	log   zerolog.Logger

	optimizer *inventory.Optimizer
	scorer    *supplier.Scorer

	// Serializes retrains; readers are unaffected.
	trainMu sync.Mutex

	mu         sync.RWMutex
	acc        *dataset.Accessor
	classifier *deliveryrisk.Classifier
	forecasts  map[string]*forecast.Model
}

// New creates an engine. Call Reload before serving.
func New(cfg *config.Config, repo *dataset.Repository, cache *analytics.Cache, log zerolog.Logger) (*Engine, error) {
	invCfg := inventory.DefaultConfig()
	invCfg.ServiceLevel = cfg.ServiceLevel
	invCfg.OverstockMultiplier = cfg.OverstockMultiplier

	scorer, err := supplier.New(supplier.DefaultConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to build supplier scorer: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		repo:      repo,
		cache:     cache,
		log:       log.With().Str("component", "engine").Logger(),
		optimizer: inventory.New(invCfg, log),
		scorer:    scorer,
		forecasts: make(map[string]*forecast.Model),
	}, nil
}

// Reload reads the dataset from storage, retrains the delivery-risk
// classifier and discards forecast models so they retrain lazily on the
// fresh data. Safe to call while serving.
func (e *Engine) Reload(ctx context.Context) error {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	records, err := e.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	acc := dataset.New(records)

	var classifier *deliveryrisk.Classifier
	classifier, err = deliveryrisk.NewTrainer(e.log).Train(records, boost.DefaultHyperparameters())
	if err != nil {
		var insufficient *domain.InsufficientHistoryError
		if !errors.As(err, &insufficient) {
			return fmt.Errorf("failed to train delivery-risk classifier: %w", err)
		}
		e.log.Warn().Err(err).Msg("Too little history for the delivery-risk classifier")
		classifier = nil
	}

	e.mu.Lock()
	e.acc = acc
	e.classifier = classifier
	e.forecasts = make(map[string]*forecast.Model)
	e.mu.Unlock()

	e.log.Info().
		Int("records", acc.Len()).
		Bool("classifier", classifier != nil).
		Msg("Engine reloaded")
	return nil
}

// TrainAll reloads the dataset and eagerly trains the all-categories
// demand model. Per-category models still train on first use.
func (e *Engine) TrainAll(ctx context.Context) error {
	if err := e.Reload(ctx); err != nil {
		return err
	}
	if _, err := e.forecastModel(forecastAllKey); err != nil {
		var insufficient *domain.InsufficientHistoryError
		if errors.As(err, &insufficient) {
			e.log.Warn().Err(err).Msg("Too little history for the demand model")
			return nil
		}
		return err
	}
	return nil
}

// accessor returns the current dataset snapshot.
func (e *Engine) accessor() (*dataset.Accessor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.acc == nil {
		return nil, fmt.Errorf("engine has no dataset loaded")
	}
	return e.acc, nil
}

// forecastModel returns the demand model for a category, training it on
// first use. The write lock is held during training, so concurrent
// requests for the same category train it once.
func (e *Engine) forecastModel(category string) (*forecast.Model, error) {
	e.mu.RLock()
	m, ok := e.forecasts[category]
	acc := e.acc
	e.mu.RUnlock()
	if ok {
		return m, nil
	}
	if acc == nil {
		return nil, fmt.Errorf("engine has no dataset loaded")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.forecasts[category]; ok {
		return m, nil
	}

	series := e.acc.DailySeries(category)
	model, err := forecast.NewTrainer(e.log).Train(series, features.DefaultConfig(), boost.DefaultHyperparameters())
	if err != nil {
		return nil, err
	}
	e.forecasts[category] = model

	label := category
	if label == "" {
		label = "all"
	}
	e.log.Info().
		Str("category", label).
		Float64("rmse", model.Metrics().RMSE).
		Msg("Demand model trained")
	return model, nil
}

// QueryData filters the dataset and summarizes it.
func (e *Engine) QueryData(ctx context.Context, q agent.DataQuery) (*agent.DataSummary, error) {
	acc, err := e.accessor()
	if err != nil {
		return nil, err
	}

	spec := dataset.FilterSpec{
		Category:     q.Category,
		Region:       q.Region,
		ShippingMode: q.ShippingMode,
	}
	if q.Period != "" && q.Period != "all" {
		last := acc.KPIs().LastOrderDate
		switch q.Period {
		case "last_month":
			spec.From = last.AddDate(0, -1, 0)
		case "last_quarter":
			spec.From = last.AddDate(0, -3, 0)
		case "last_year":
			spec.From = last.AddDate(-1, 0, 0)
		default:
			return nil, fmt.Errorf("unknown period %q", q.Period)
		}
	}

	sub := acc.Filter(spec)
	summary := &agent.DataSummary{Filters: q, KPIs: sub.KPIs()}
	if ranks := sub.TopProducts("revenue", 1); len(ranks) > 0 {
		summary.TopCategory = ranks[0].Category
	}
	return summary, nil
}

// ForecastDemand predicts daily demand over the horizon, training the
// category's model on first use.
func (e *Engine) ForecastDemand(ctx context.Context, category string, horizonDays int) (*agent.ForecastSummary, error) {
	model, err := e.forecastModel(category)
	if err != nil {
		return nil, err
	}

	points, err := model.Forecast(horizonDays)
	if err != nil {
		return nil, err
	}

	summary := &agent.ForecastSummary{
		Category:    category,
		HorizonDays: horizonDays,
		Metrics:     model.Metrics(),
		Points:      points,
	}
	for _, p := range points {
		summary.Total += p.Value
		if p.Value > summary.Peak {
			summary.Peak = p.Value
			summary.PeakDate = p.Date
		}
	}
	if len(points) > 0 {
		summary.AvgDaily = summary.Total / float64(len(points))
	}
	return summary, nil
}

// SupplierLeaderboard scores every supplier, cached against the dataset
// fingerprint.
func (e *Engine) SupplierLeaderboard(ctx context.Context) ([]supplier.Score, []dataset.SupplierStats, error) {
	acc, err := e.accessor()
	if err != nil {
		return nil, nil, err
	}

	stats := acc.SupplierAggregates()

	var scores []supplier.Score
	fingerprint := acc.Fingerprint()
	hit, err := e.cache.Get(ctx, cacheKeySuppliers, fingerprint, &scores)
	if err != nil {
		e.log.Warn().Err(err).Msg("Supplier cache read failed")
	}
	if !hit {
		scores = e.scorer.Leaderboard(stats)
		if err := e.cache.Put(ctx, cacheKeySuppliers, fingerprint, scores); err != nil {
			e.log.Warn().Err(err).Msg("Supplier cache write failed")
		}
	}
	return scores, stats, nil
}

// AnalyzeSupplier scores one supplier against the full leaderboard.
func (e *Engine) AnalyzeSupplier(ctx context.Context, supplierID string) (*agent.SupplierReport, error) {
	scores, stats, err := e.SupplierLeaderboard(ctx)
	if err != nil {
		return nil, err
	}

	report := &agent.SupplierReport{}
	for _, s := range scores {
		if s.SupplierID == supplierID {
			report.Score = s
			break
		}
	}
	if report.Score.SupplierID == "" {
		return nil, &domain.NotFoundError{Entity: "supplier", ID: supplierID}
	}
	for _, s := range stats {
		if s.SupplierID == supplierID {
			report.Stats = s
			break
		}
	}
	return report, nil
}

// InventoryPolicies computes per-category reorder policies, cached
// against the dataset fingerprint.
func (e *Engine) InventoryPolicies(ctx context.Context) ([]inventory.Policy, error) {
	acc, err := e.accessor()
	if err != nil {
		return nil, err
	}

	var policies []inventory.Policy
	fingerprint := acc.Fingerprint()
	hit, err := e.cache.Get(ctx, cacheKeyInventory, fingerprint, &policies)
	if err != nil {
		e.log.Warn().Err(err).Msg("Inventory cache read failed")
	}
	if !hit {
		policies, err = e.optimizer.AnalyzeAll(acc)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Put(ctx, cacheKeyInventory, fingerprint, policies); err != nil {
			e.log.Warn().Err(err).Msg("Inventory cache write failed")
		}
	}
	return policies, nil
}

// CheckInventory returns reorder policies and recommendations, narrowed
// to one category when requested.
func (e *Engine) CheckInventory(ctx context.Context, category string) (*agent.InventoryReport, error) {
	policies, err := e.InventoryPolicies(ctx)
	if err != nil {
		return nil, err
	}

	if category != "" {
		filtered := policies[:0:0]
		for _, p := range policies {
			if p.Category == category {
				filtered = append(filtered, p)
			}
		}
		policies = filtered
	}

	return &agent.InventoryReport{
		Policies:        policies,
		Recommendations: e.optimizer.Recommendations(policies),
	}, nil
}

// PredictDeliveryRisk scores a hypothetical order. Unset price,
// discount and inventory fields default to the category's averages.
func (e *Engine) PredictDeliveryRisk(ctx context.Context, oc deliveryrisk.OrderContext) (*agent.RiskReport, error) {
	acc, err := e.accessor()
	if err != nil {
		return nil, err
	}

	if oc.UnitPrice == 0 || oc.InventoryLevel == 0 {
		e.fillContextDefaults(acc, &oc)
	}

	e.mu.RLock()
	classifier := e.classifier
	e.mu.RUnlock()

	result, err := classifier.PredictOne(oc)
	if err != nil {
		return nil, err
	}
	return &agent.RiskReport{Context: oc, Result: *result}, nil
}

func (e *Engine) fillContextDefaults(acc *dataset.Accessor, oc *deliveryrisk.OrderContext) {
	sub := acc
	if oc.Category != "" {
		sub = acc.Filter(dataset.FilterSpec{Category: oc.Category})
	}
	if sub.Len() == 0 {
		sub = acc
	}

	var price, inv, discount float64
	records := sub.Records()
	for _, r := range records {
		price += r.UnitPrice
		inv += r.InventoryLevel
		discount += r.Discount
	}
	n := float64(len(records))
	if n == 0 {
		return
	}
	if oc.UnitPrice == 0 {
		oc.UnitPrice = price / n
	}
	if oc.InventoryLevel == 0 {
		oc.InventoryLevel = inv / n
	}
	if oc.Discount == 0 {
		oc.Discount = discount / n
	}
}

// TopProducts ranks categories by the given metric.
func (e *Engine) TopProducts(ctx context.Context, metric string, n int) (*agent.TopProductsReport, error) {
	acc, err := e.accessor()
	if err != nil {
		return nil, err
	}
	return &agent.TopProductsReport{Metric: metric, Ranks: acc.TopProducts(metric, n)}, nil
}

// CompareRegions aggregates performance per market region.
func (e *Engine) CompareRegions(ctx context.Context) (*agent.RegionReport, error) {
	acc, err := e.accessor()
	if err != nil {
		return nil, err
	}
	return &agent.RegionReport{Regions: acc.RegionAggregates()}, nil
}

// KPIs returns dataset-wide headline figures.
func (e *Engine) KPIs() (dataset.KPIReport, error) {
	acc, err := e.accessor()
	if err != nil {
		return dataset.KPIReport{}, err
	}
	return acc.KPIs(), nil
}

// RiskEvaluation returns the classifier's held-out evaluation.
func (e *Engine) RiskEvaluation() (deliveryrisk.Evaluation, error) {
	e.mu.RLock()
	classifier := e.classifier
	e.mu.RUnlock()
	if classifier == nil {
		return deliveryrisk.Evaluation{}, &domain.UntrainedModelError{Model: "deliveryrisk"}
	}
	return classifier.Evaluation(), nil
}
