// Package worker implements the bot state machine: one Worker pairs a
// strategy evaluator with one symbol/timeframe and turns its target
// exposure into orders with no-leverage sizing, per-bar idempotency,
// cooldown, and pause gating (spec.md §4.2).
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dezgo/tradintel/internal/metrics"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MinNotional is the smallest order value a worker will place; deltas
// below this are skipped to avoid dust trades (spec.md §4.2 step 5).
var MinNotional = decimal.NewFromInt(100)

// CooldownSeconds is the minimum gap between two trades from the same
// worker (spec.md §4.2 step 6).
const CooldownSeconds int64 = 300

// makerImprovementBps is the limit-price improvement over the mark a
// worker requests: buy at price*(1-5bps), sell at price*(1+5bps).
var makerImprovementBps = decimal.NewFromFloat(0.0005)

// Clock abstracts wall-clock time so tests can control "now" without
// sleeping; production code uses RealClock.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Evaluator is the subset of strategy.Evaluator a worker depends on.
type Evaluator interface {
	OnBar(bars []model.Bar) (float64, error)
}

// DataProvider supplies the recent bar history for a symbol/timeframe,
// matching the vendor `history` contract spec.md §1 treats as external.
type DataProvider interface {
	History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error)
}

// ExecClient places the limit order a worker's Step decides on.
type ExecClient interface {
	LimitOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, timeoutSeconds int) (model.Fill, error)
}

// TradeRecorder persists a fill to the append-only trade log.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, botName, symbol string, side model.Side, qty, price, fee decimal.Decimal, isMaker bool, equity decimal.Decimal) error
}

// SettingsReader exposes the subset of global settings Step consults.
type SettingsReader interface {
	TradingPaused(ctx context.Context) bool
}

// Config is the fixed identity and dependency set a Worker is built from.
type Config struct {
	Name           string
	Symbol         string
	Timeframe      model.Timeframe
	Strategy       Evaluator
	Data           DataProvider
	Exec           ExecClient
	Store          TradeRecorder
	Settings       SettingsReader
	Clock          Clock
	HistoryLimit   int // defaults to 200 if zero
	LimitTimeoutS  int // order poll timeout passed to ExecClient, defaults to 10s if zero
	Logger         *zap.Logger
}

// Worker is the smallest independently-scheduled trading unit: one
// strategy evaluator bound to one symbol and timeframe, with its own
// capital, position, and decision log.
type Worker struct {
	mu sync.Mutex

	name      string
	symbol    string
	timeframe model.Timeframe

	strategy Evaluator
	data     DataProvider
	exec     ExecClient
	store    TradeRecorder
	settings SettingsReader
	clock    Clock

	historyLimit  int
	limitTimeoutS int
	logger        *zap.Logger

	// accounting (spec.md §3 Worker)
	allocation         decimal.Decimal
	startingAllocation decimal.Decimal
	cash               decimal.Decimal
	posQty             decimal.Decimal
	avgPrice           decimal.Decimal
	equity             decimal.Decimal
	cumPnL             decimal.Decimal
	trades             int
	score              float64

	// scheduling
	lastBarTs   int64
	lastTradeTs int64

	decisions *DecisionLog
}

// New constructs a Worker with starting capital `allocation`, both the
// current and baseline allocation set to it (spec.md §3: starting_allocation
// is fixed at construction).
func New(cfg Config, allocation decimal.Decimal) *Worker {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 200
	}
	limitTimeoutS := cfg.LimitTimeoutS
	if limitTimeoutS <= 0 {
		limitTimeoutS = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:               cfg.Name,
		symbol:             cfg.Symbol,
		timeframe:          cfg.Timeframe,
		strategy:           cfg.Strategy,
		data:               cfg.Data,
		exec:               cfg.Exec,
		store:              cfg.Store,
		settings:           cfg.Settings,
		clock:              clock,
		historyLimit:       historyLimit,
		limitTimeoutS:      limitTimeoutS,
		logger:             logger.With(zap.String("worker", cfg.Name)),
		allocation:         allocation,
		startingAllocation: allocation,
		cash:               allocation,
		posQty:             decimal.Zero,
		avgPrice:           decimal.Zero,
		equity:             allocation,
		decisions:          newDecisionLog(100),
	}
}

// Name, Symbol, Timeframe, Score, Equity, Allocation, StartingAllocation,
// Trades, PosQty are read-only accessors a manager or API
// handler uses without reaching into worker internals.
func (w *Worker) Name() string              { return w.name }
func (w *Worker) Symbol() string            { return w.symbol }
func (w *Worker) Timeframe() model.Timeframe { return w.timeframe }

func (w *Worker) Score() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.score
}

func (w *Worker) Equity() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.equity
}

func (w *Worker) Allocation() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.allocation
}

func (w *Worker) StartingAllocation() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startingAllocation
}

func (w *Worker) Trades() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trades
}

func (w *Worker) PosQty() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.posQty
}

// SetAllocation overwrites the worker's current capital budget; used by
// the allocator's reweighting pass. It never touches startingAllocation.
func (w *Worker) SetAllocation(alloc decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allocation = alloc
}

// SetStrategy swaps the evaluator a worker feeds bars to, used by
// POST /api/worker/strategy (spec.md §6) to reassign a running worker to a
// different parametric kind, saved grid result, or evolved genome without
// rebuilding its accounting state.
func (w *Worker) SetStrategy(e Evaluator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.strategy = e
}

// Snapshot captures the worker's accounting for persistence, tagged with
// the strategy kind and params a caller knows but the worker itself
// does not track (spec.md §4.6 "upsertBot").
func (w *Worker) Snapshot(strategyKind string, params map[string]float64) store.BotSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return store.BotSnapshot{
		Name: w.name, Symbol: w.symbol, Timeframe: w.timeframe,
		StrategyKind: strategyKind, Params: params,
		Allocation: w.allocation, StartingAllocation: w.startingAllocation,
		Cash: w.cash, PosQty: w.posQty, AvgPrice: w.avgPrice, Equity: w.equity,
		CumPnL: w.cumPnL, Trades: w.trades, Score: w.score,
		LastBarTs: w.lastBarTs, LastTradeTs: w.lastTradeTs,
	}
}

// Hydrate restores a worker's accounting from a persisted snapshot,
// overwriting the starting capital New assigned. Called once at
// portfolio build time, before the worker has stepped (spec.md §4.6
// "loadBots" rehydrates a restarted process's book).
func (w *Worker) Hydrate(snap store.BotSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allocation = snap.Allocation
	w.startingAllocation = snap.StartingAllocation
	w.cash = snap.Cash
	w.posQty = snap.PosQty
	w.avgPrice = snap.AvgPrice
	w.equity = snap.Equity
	w.cumPnL = snap.CumPnL
	w.trades = snap.Trades
	w.score = snap.Score
	w.lastBarTs = snap.LastBarTs
	w.lastTradeTs = snap.LastTradeTs
}

// Decisions returns a snapshot of the bounded decision log, newest first.
func (w *Worker) Decisions() []model.Decision {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decisions.snapshot()
}

// Step implements spec.md §4.2's eleven steps. It never panics past the
// caller: a panic is recovered and returned as an error, and fetch,
// strategy and order errors are returned to the caller as well.
func (w *Worker) Step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker step panicked; recovered", zap.Any("panic", r))
			err = fmt.Errorf("worker %s: recovered panic: %v", w.name, r)
		}
	}()

	bars, ferr := w.data.History(ctx, w.symbol, w.timeframe, w.historyLimit)
	if ferr != nil {
		return fmt.Errorf("worker %s: fetch history: %w", w.name, ferr)
	}
	if len(bars) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	last := bars[len(bars)-1]
	if last.Ts == w.lastBarTs {
		return nil // bar-idempotency
	}
	w.lastBarTs = last.Ts
	price := last.Close

	targetExp, serr := w.strategy.OnBar(bars)
	if serr != nil {
		return fmt.Errorf("worker %s: strategy OnBar: %w", w.name, serr)
	}

	equityNow := w.cash.Add(w.posQty.Mul(price))
	targetQty := equityNow.Mul(decimal.NewFromFloat(targetExp)).Div(price)
	delta := targetQty.Sub(w.posQty)

	w.equity = equityNow
	w.avgPrice = price

	w.recordSignal(last.Ts, targetExp, delta, price)

	notional := delta.Abs().Mul(price)
	if notional.LessThan(MinNotional) {
		w.decisions.add(model.Decision{Ts: last.Ts, BotName: w.name, Kind: model.DecisionSkipMinNotional,
			Detail: fmt.Sprintf("notional=%s < min=%s", notional.String(), MinNotional.String())})
		return nil
	}

	now := w.clock.Now().Unix()
	if now-w.lastTradeTs < CooldownSeconds {
		w.decisions.add(model.Decision{Ts: last.Ts, BotName: w.name, Kind: model.DecisionSkipCooldown,
			Detail: fmt.Sprintf("last_trade=%d now=%d", w.lastTradeTs, now)})
		return nil
	}

	if w.settings.TradingPaused(ctx) {
		w.decisions.add(model.Decision{Ts: last.Ts, BotName: w.name, Kind: model.DecisionSkipTradingPaused})
		return nil
	}

	side := model.SideBuy
	if delta.IsNegative() {
		side = model.SideSell
	}

	if side == model.SideBuy {
		cost := delta.Mul(price)
		if cost.GreaterThan(w.cash) {
			delta = w.cash.Div(price)
		}
	}
	if delta.IsZero() {
		return nil
	}

	qty := delta.Abs()
	limitPrice := price.Mul(decimal.NewFromInt(1).Sub(makerImprovementBps))
	if side == model.SideSell {
		limitPrice = price.Mul(decimal.NewFromInt(1).Add(makerImprovementBps))
	}

	fill, xerr := w.exec.LimitOrder(ctx, w.symbol, side, qty, limitPrice, w.limitTimeoutS)
	if xerr != nil {
		return fmt.Errorf("worker %s: limit order: %w", w.name, xerr)
	}
	if fill.Status != model.FillStatusFilled || fill.FilledQty.IsZero() {
		return nil
	}

	w.applyFill(ctx, last.Ts, side, fill)
	return nil
}

func (w *Worker) recordSignal(ts int64, targetExp float64, delta, price decimal.Decimal) {
	w.decisions.add(model.Decision{Ts: ts, BotName: w.name, Kind: model.DecisionSignal,
		Detail: fmt.Sprintf("target_exp=%.4f delta=%s price=%s", targetExp, delta.String(), price.String())})
}

func (w *Worker) applyFill(ctx context.Context, ts int64, side model.Side, fill model.Fill) {
	switch side {
	case model.SideBuy:
		w.cash = w.cash.Sub(fill.FilledQty.Mul(fill.AvgPrice)).Sub(fill.Fee)
		w.posQty = w.posQty.Add(fill.FilledQty)
	case model.SideSell:
		w.cash = w.cash.Add(fill.FilledQty.Mul(fill.AvgPrice)).Sub(fill.Fee)
		w.posQty = w.posQty.Sub(fill.FilledQty)
	}
	w.trades++
	w.lastTradeTs = w.clock.Now().Unix()

	if side == model.SideBuy {
		metrics.IncOrder("buy")
	} else {
		metrics.IncOrder("sell")
	}

	if err := w.store.RecordTrade(ctx, w.name, w.symbol, side, fill.FilledQty, fill.AvgPrice, fill.Fee, fill.IsMaker, w.equity); err != nil {
		w.logger.Error("record trade failed", zap.Error(err))
	}

	w.decisions.add(model.Decision{Ts: ts, BotName: w.name, Kind: model.DecisionTradeExecuted,
		Detail: fmt.Sprintf("%s qty=%s price=%s fee=%s maker=%t", side, fill.FilledQty.String(), fill.AvgPrice.String(), fill.Fee.String(), fill.IsMaker)})

	w.updateScore()
}

// updateScore applies the clamped EMA score update (spec.md §4.2 step 11).
// Caller must hold w.mu.
func (w *Worker) updateScore() {
	if w.allocation.IsZero() {
		return
	}
	ret, _ := w.equity.Sub(w.allocation).Div(w.allocation).Float64()
	w.score = 0.9*w.score + 0.1*ret
	if w.score > 0.2 {
		w.score = 0.2
	}
	if w.score < -0.2 {
		w.score = -0.2
	}
}
