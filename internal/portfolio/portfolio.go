// Package portfolio owns the strategy managers and workers that make up
// a running book, and drives one scheduler tick across all of them
// (spec.md §4.1, §4.4, §4.9). It is the glue between internal/allocator's
// pure reweighting math and internal/worker's per-bot state machine.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dezgo/tradintel/internal/allocator"
	"github.com/dezgo/tradintel/internal/metrics"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/worker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultSymbols is the fallback trading universe when no configuration
// overrides it, grounded on the teacher's market-data symbol list.
var DefaultSymbols = []string{"BTC_USDT", "ETH_USDT", "SOL_USDT", "BNB_USDT"}

// DefaultBounds is the within/across-strategy clamp spec.md §8 S6 walks
// through: shares clamp to [0.05, 0.70] before renormalizing.
func DefaultBounds() model.AllocBounds {
	return model.AllocBounds{MinFrac: decimal.NewFromFloat(0.05), MaxFrac: decimal.NewFromFloat(0.70)}
}

// WorkerEngine is the subset of *worker.Worker the portfolio drives
// directly, beyond the allocator.WorkerHandle view the allocator needs.
type WorkerEngine interface {
	allocator.WorkerHandle
	Symbol() string
	Timeframe() model.Timeframe
	Allocation() decimal.Decimal
	Step(ctx context.Context) error
	Snapshot(strategyKind string, params map[string]float64) store.BotSnapshot
	SetStrategy(e worker.Evaluator)
	Decisions() []model.Decision
}

// BotStore is the subset of *store.Store the portfolio persists worker
// state through.
type BotStore interface {
	UpsertBot(ctx context.Context, b store.BotSnapshot) error
	LoadBots(ctx context.Context) ([]store.BotSnapshot, error)
	GetTopEvolvedStrategiesForPortfolio(ctx context.Context, n int, minScore float64) ([]model.EvolvedStrategy, error)
}

// StrategyManager groups the workers running one strategy family (or,
// for evolved genomes, one generation's promoted genome) and implements
// allocator.ManagerHandle over them.
type StrategyManager struct {
	mu      sync.Mutex
	name    string
	workers []*managedWorker
}

// managedWorker pairs a WorkerEngine with the metadata needed to persist
// and rebuild it (strategy kind + params, for bot snapshots).
type managedWorker struct {
	engine       WorkerEngine
	strategyKind string
	params       map[string]float64
}

func newStrategyManager(name string) *StrategyManager {
	return &StrategyManager{name: name}
}

func (m *StrategyManager) Name() string { return m.name }

func (m *StrategyManager) Workers() []allocator.WorkerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]allocator.WorkerHandle, len(m.workers))
	for i, w := range m.workers {
		out[i] = w.engine
	}
	return out
}

func (m *StrategyManager) Equity() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, w := range m.workers {
		total = total.Add(w.engine.Equity())
	}
	return total
}

func (m *StrategyManager) addWorker(mw *managedWorker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, mw)
}

func (m *StrategyManager) removeWorkerNamed(name string) *managedWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.workers {
		if w.engine.Name() == name {
			m.workers = append(m.workers[:i], m.workers[i+1:]...)
			return w
		}
	}
	return nil
}

func (m *StrategyManager) snapshotWorkers() []*managedWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*managedWorker, len(m.workers))
	copy(out, m.workers)
	return out
}

// Portfolio is the full set of strategy managers the scheduler steps
// once per bar. It owns the tick counter that gates reweighting and
// auto-rebalance, per spec.md §4.4.
type Portfolio struct {
	mu       sync.Mutex
	managers []*StrategyManager
	tick     int

	store  BotStore
	bounds model.AllocBounds
	logger *zap.Logger

	allocCfg allocator.Config
}

// New builds an empty Portfolio; call Build to populate it from evolved
// strategies or the default grid.
func New(st BotStore, logger *zap.Logger) *Portfolio {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Portfolio{store: st, bounds: DefaultBounds(), logger: logger, allocCfg: allocator.DefaultConfig()}
}

// managerByName finds (or lazily creates) the manager for a strategy
// family name; Build uses this to group workers.
func (p *Portfolio) managerByName(name string) *StrategyManager {
	for _, m := range p.managers {
		if m.Name() == name {
			return m
		}
	}
	m := newStrategyManager(name)
	p.managers = append(p.managers, m)
	return m
}

// Step runs one scheduler tick: every worker steps once, then—on ticks
// the allocator.Config gates—within- and across-strategy reweighting
// run, followed by auto-rebalance reassignment (spec.md §4.1 step 5,
// §4.4). A worker's error is logged and never stops its siblings.
func (p *Portfolio) Step(ctx context.Context) error {
	p.mu.Lock()
	p.tick++
	tick := p.tick
	managers := make([]*StrategyManager, len(p.managers))
	copy(managers, p.managers)
	p.mu.Unlock()

	workerCount := 0
	for _, m := range managers {
		for _, w := range m.snapshotWorkers() {
			workerCount++
			if err := w.engine.Step(ctx); err != nil {
				p.logger.Error("worker step failed", zap.String("manager", m.Name()), zap.String("worker", w.engine.Name()), zap.Error(err))
			}
			equity, _ := w.engine.Equity().Float64()
			metrics.SetBotEquity(w.engine.Name(), equity)
			if p.store != nil {
				snap := w.engine.Snapshot(w.strategyKind, w.params)
				if err := p.store.UpsertBot(ctx, snap); err != nil {
					p.logger.Warn("persist bot snapshot failed", zap.String("worker", w.engine.Name()), zap.Error(err))
				}
			}
		}
	}
	metrics.SetActiveWorkers(workerCount)

	if p.allocCfg.ShouldReweight(tick) {
		for _, m := range managers {
			allocator.ReweightWithinStrategy(m.Workers(), p.bounds)
		}
		handles := make([]allocator.ManagerHandle, len(managers))
		for i, m := range managers {
			handles[i] = m
		}
		allocator.ReweightAcrossStrategies(handles, p.bounds)
	}

	if p.allocCfg.ShouldAutoRebalance(tick) {
		handles := make([]allocator.ManagerHandle, len(managers))
		for i, m := range managers {
			handles[i] = m
		}
		reassignments := allocator.AutoRebalance(handles, p.allocCfg.AutoRebalanceFraction)
		p.applyReassignments(managers, reassignments)
	}

	return nil
}

// applyReassignments moves each reassigned worker from its source
// manager into the destination manager (allocator decides; portfolio
// owns the actual membership move, per allocator.Reassignment's doc).
func (p *Portfolio) applyReassignments(managers []*StrategyManager, reassignments []allocator.Reassignment) {
	for _, r := range reassignments {
		if r.FromIndex < 0 || r.FromIndex >= len(managers) || r.ToIndex < 0 || r.ToIndex >= len(managers) {
			continue
		}
		from := managers[r.FromIndex]
		to := managers[r.ToIndex]
		mw := from.removeWorkerNamed(r.Worker.Name())
		if mw == nil {
			continue
		}
		to.addWorker(mw)
		p.logger.Info("auto-rebalance reassigned worker",
			zap.String("worker", r.Worker.Name()), zap.String("from", from.Name()), zap.String("to", to.Name()))
	}
}

// ReassignStrategy swaps the evaluator for the named worker (POST
// /api/worker/strategy, spec.md §6), updating the strategy tag persisted
// alongside it so a later Snapshot/Hydrate round-trip stays consistent.
// Returns an error if no worker with that name exists.
func (p *Portfolio) ReassignStrategy(name, kind string, params map[string]float64, e worker.Evaluator) error {
	p.mu.Lock()
	managers := make([]*StrategyManager, len(p.managers))
	copy(managers, p.managers)
	p.mu.Unlock()

	for _, m := range managers {
		for _, mw := range m.snapshotWorkers() {
			if mw.engine.Name() != name {
				continue
			}
			mw.engine.SetStrategy(e)
			m.mu.Lock()
			for _, stored := range m.workers {
				if stored.engine.Name() == name {
					stored.strategyKind = kind
					stored.params = params
				}
			}
			m.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("portfolio: no worker named %q", name)
}

// WorkerByName returns the live engine for a named worker, for handlers
// that need direct read access (e.g. manual-trade, pause checks).
func (p *Portfolio) WorkerByName(name string) (WorkerEngine, bool) {
	p.mu.Lock()
	managers := make([]*StrategyManager, len(p.managers))
	copy(managers, p.managers)
	p.mu.Unlock()

	for _, m := range managers {
		for _, mw := range m.snapshotWorkers() {
			if mw.engine.Name() == name {
				return mw.engine, true
			}
		}
	}
	return nil, false
}

// AllDecisions merges every worker's bounded decision log, newest
// first, for GET /decisions.json.
func (p *Portfolio) AllDecisions() []model.Decision {
	p.mu.Lock()
	managers := make([]*StrategyManager, len(p.managers))
	copy(managers, p.managers)
	p.mu.Unlock()

	var all []model.Decision
	for _, m := range managers {
		for _, mw := range m.snapshotWorkers() {
			all = append(all, mw.engine.Decisions()...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Ts > all[j].Ts })
	return all
}

// Snapshot describes the portfolio's current managers and workers, for
// GET /portfolio.json.
type Snapshot struct {
	Managers []ManagerSnapshot
}

type ManagerSnapshot struct {
	Name    string
	Equity  decimal.Decimal
	Workers []WorkerSnapshot
}

type WorkerSnapshot struct {
	Name       string
	Symbol     string
	Timeframe  model.Timeframe
	Equity     decimal.Decimal
	Allocation decimal.Decimal
	Score      float64
}

// Snapshot returns a read-only view of every manager and worker's
// current accounting, sorted by manager then worker name for stable
// output.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.Lock()
	managers := make([]*StrategyManager, len(p.managers))
	copy(managers, p.managers)
	p.mu.Unlock()

	out := Snapshot{}
	for _, m := range managers {
		ms := ManagerSnapshot{Name: m.Name(), Equity: m.Equity()}
		for _, w := range m.snapshotWorkers() {
			ms.Workers = append(ms.Workers, WorkerSnapshot{
				Name: w.engine.Name(), Symbol: w.engine.Symbol(), Timeframe: w.engine.Timeframe(),
				Equity: w.engine.Equity(), Allocation: w.engine.Allocation(), Score: w.engine.Score(),
			})
		}
		sort.Slice(ms.Workers, func(i, j int) bool { return ms.Workers[i].Name < ms.Workers[j].Name })
		out.Managers = append(out.Managers, ms)
	}
	sort.Slice(out.Managers, func(i, j int) bool { return out.Managers[i].Name < out.Managers[j].Name })
	return out
}

