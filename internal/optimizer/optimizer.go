// Package optimizer grid-sweeps each parametric strategy family across
// symbols, scores candidates by a fixed fitness formula, and persists the
// top performers (spec.md §4.8).
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dezgo/tradintel/internal/backtester"
	"github.com/dezgo/tradintel/internal/metrics"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ParamGrid declares the sweep range for one parameter of a strategy
// family, adapted from the teacher's Parameter (min/max/step), dropping
// the continuous/discrete distinction the teacher's Bayesian/random
// methods needed — this package only ever grid-sweeps.
type ParamGrid struct {
	Name string
	Min  float64
	Max  float64
	Step float64
}

// FamilyGrid is one strategy family's full sweep definition.
type FamilyGrid struct {
	Kind   strategy.Kind
	Params []ParamGrid
}

// DefaultGrids returns the sweep ranges for the three seeded parametric
// families (spec.md §4.3).
func DefaultGrids() []FamilyGrid {
	return []FamilyGrid{
		{Kind: strategy.KindMeanReversion, Params: []ParamGrid{
			{Name: "lookback", Min: 10, Max: 60, Step: 10},
			{Name: "band", Min: 1.0, Max: 3.0, Step: 0.5},
			{Name: "confirm_bars", Min: 1, Max: 3, Step: 1},
		}},
		{Kind: strategy.KindBreakout, Params: []ParamGrid{
			{Name: "lookback", Min: 10, Max: 60, Step: 10},
			{Name: "confirm_bars", Min: 1, Max: 2, Step: 1},
		}},
		{Kind: strategy.KindTrendFollow, Params: []ParamGrid{
			{Name: "fast", Min: 5, Max: 20, Step: 5},
			{Name: "slow", Min: 20, Max: 60, Step: 10},
			{Name: "confirm_bars", Min: 1, Max: 3, Step: 1},
		}},
	}
}

// combinations enumerates the Cartesian product of a family's grid,
// adapted from the teacher's recursive cartesianProduct.
func combinations(params []ParamGrid) []strategy.Params {
	if len(params) == 0 {
		return []strategy.Params{{}}
	}
	return cartesian(params, 0, strategy.Params{})
}

func cartesian(params []ParamGrid, idx int, current strategy.Params) []strategy.Params {
	if idx == len(params) {
		out := make(strategy.Params, len(current))
		for k, v := range current {
			out[k] = v
		}
		return []strategy.Params{out}
	}
	p := params[idx]
	step := p.Step
	if step <= 0 {
		step = 1
	}
	var out []strategy.Params
	for v := p.Min; v <= p.Max+1e-9; v += step {
		current[p.Name] = v
		out = append(out, cartesian(params, idx+1, current)...)
	}
	return out
}

// ResultStore is the subset of *store.Store the optimizer writes to.
type ResultStore interface {
	SaveOptimizationResult(ctx context.Context, r model.OptimizationResult) error
	GetOptimizationResultByID(ctx context.Context, id int64) (model.OptimizationResult, error)
	SaveBacktest(ctx context.Context, b store.SavedBacktest) (int64, error)
}

// Promote turns a persisted grid-search candidate into a saved_backtests
// row, as POST /optimizer/promote/<id> does (spec.md §4.8, §6), mirroring
// internal/evolver's Promote for the genome path.
func (o *Optimizer) Promote(ctx context.Context, id int64) (int64, error) {
	result, err := o.store.GetOptimizationResultByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("optimizer: promote: %w", err)
	}
	name := fmt.Sprintf("%s • %s • %s [Score %d]", result.Strategy, result.Symbol, result.Timeframe, int(result.Score))
	params := make(map[string]any, len(result.Params)+1)
	for k, v := range result.Params {
		params[k] = v
	}
	params["name"] = name
	return o.store.SaveBacktest(ctx, store.SavedBacktest{
		Strategy:  result.Strategy,
		Symbol:    result.Symbol,
		Timeframe: result.Timeframe,
		Params:    params,
		Metrics:   result.Metrics,
	})
}

// Fitness implements spec.md §4.8's exact scoring formula.
func Fitness(m model.BacktestMetrics) float64 {
	if m.TradeCount == 0 {
		return 0
	}
	return 100 - m.MaxDrawdownPct + m.Sharpe*10 + m.TotalReturnPct*0.1
}

// Config parameterizes one optimizer sweep.
type Config struct {
	Symbols        []string
	Timeframe      model.Timeframe
	Grids          []FamilyGrid
	WindowDays     int // default 365
	InitialCapital float64
	TopN           int // default 5
}

// Optimizer runs grid sweeps on a continuous interval, persisting the
// top-N candidates per (strategy, symbol) to the store.
type Optimizer struct {
	data   backtester.DataProvider
	store  ResultStore
	logger *zap.Logger
}

// New builds an Optimizer.
func New(data backtester.DataProvider, store ResultStore, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{data: data, store: store, logger: logger}
}

// RunOnce performs one full sweep: every family × every symbol, scoring
// each parameter combination and persisting the top N per (strategy,
// symbol) pair.
func (o *Optimizer) RunOnce(ctx context.Context, cfg Config, nowTs int64) error {
	grids := cfg.Grids
	if grids == nil {
		grids = DefaultGrids()
	}
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 365
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	initialCapital := cfg.InitialCapital
	if initialCapital <= 0 {
		initialCapital = 10000
	}
	startTs := nowTs - int64(windowDays)*24*3600

	for _, family := range grids {
		for _, symbol := range cfg.Symbols {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := o.sweepFamily(ctx, family, symbol, cfg.Timeframe, startTs, nowTs, initialCapital, topN); err != nil {
				o.logger.Error("sweep failed", zap.String("kind", string(family.Kind)), zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}
	metrics.IncOptimizerCycle()
	return nil
}

type scoredCandidate struct {
	params  strategy.Params
	metrics model.BacktestMetrics
	score   float64
}

func (o *Optimizer) sweepFamily(ctx context.Context, family FamilyGrid, symbol string, tf model.Timeframe, startTs, endTs int64, initialCapital float64, topN int) error {
	combos := combinations(family.Params)
	var results []scoredCandidate

	for _, params := range combos {
		evaluator, err := strategy.NewParametric(family.Kind, params)
		if err != nil {
			return fmt.Errorf("optimizer: build %s: %w", family.Kind, err)
		}
		metrics, err := backtester.Run(ctx, evaluator, o.data, backtester.Config{
			Symbol: symbol, Timeframe: tf, StartTs: startTs, EndTs: endTs,
			InitialCapital: decimal.NewFromFloat(initialCapital),
		})
		if err != nil {
			o.logger.Warn("backtest failed during sweep; recording zero fitness", zap.String("kind", string(family.Kind)), zap.Error(err))
			results = append(results, scoredCandidate{params: params})
			continue
		}
		results = append(results, scoredCandidate{params: params, metrics: metrics, score: Fitness(metrics)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > topN {
		results = results[:topN]
	}

	for _, r := range results {
		if err := o.store.SaveOptimizationResult(ctx, model.OptimizationResult{
			Strategy: string(family.Kind), Symbol: symbol, Timeframe: tf,
			Params: r.params, Score: r.score, Metrics: r.metrics,
		}); err != nil {
			return fmt.Errorf("optimizer: save result: %w", err)
		}
	}
	return nil
}

// RunForever loops RunOnce on intervalHours, backing off 1h on error,
// until ctx is cancelled (spec.md §4.8: "runs continuously on interval_hours").
func (o *Optimizer) RunForever(ctx context.Context, cfg Config, intervalHours int, clockNow func() int64) {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	interval := time.Duration(intervalHours) * time.Hour
	for {
		if err := o.RunOnce(ctx, cfg, clockNow()); err != nil {
			o.logger.Error("optimizer run failed; backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Hour):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
