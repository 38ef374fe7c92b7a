// Package allocator implements the two-level capital reweighting spec.md
// §4.4 describes: within-strategy (worker vs worker inside one manager)
// and across-strategy (manager vs manager inside the portfolio), both
// built from the same clamp-then-renormalize shape.
package allocator

import (
	"sort"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// Config holds the tunables spec.md §9's Open Question leaves to the
// deployment instead of hardcoding: the tick cadence reweighting runs on
// and the auto-rebalance threshold/cadence.
type Config struct {
	// RebalanceEveryNTicks dampens churn: reweighting only runs on ticks
	// where tick % RebalanceEveryNTicks == 0 (default 5).
	RebalanceEveryNTicks int
	// AutoRebalanceEveryNTicks gates the worst-performer reassignment
	// routine (default 60).
	AutoRebalanceEveryNTicks int
	// AutoRebalanceFraction is the share of workers (by score, ascending)
	// moved to the best-scoring manager when auto-rebalance fires (default 0.20).
	AutoRebalanceFraction float64
}

// DefaultConfig returns spec.md §4.4's defaults (N=5 reweight cadence,
// auto-rebalance every 60 ticks moving the worst 20%).
func DefaultConfig() Config {
	return Config{RebalanceEveryNTicks: 5, AutoRebalanceEveryNTicks: 60, AutoRebalanceFraction: 0.20}
}

// ShouldReweight reports whether tick triggers a within/across-strategy
// reweighting pass.
func (c Config) ShouldReweight(tick int) bool {
	n := c.RebalanceEveryNTicks
	if n <= 0 {
		n = 5
	}
	return tick%n == 0
}

// ShouldAutoRebalance reports whether tick triggers the worst-performer
// reassignment routine.
func (c Config) ShouldAutoRebalance(tick int) bool {
	n := c.AutoRebalanceEveryNTicks
	if n <= 0 {
		n = 60
	}
	return tick%n == 0
}

// WorkerHandle is the narrow view the allocator needs of a worker: its
// performance score, current equity, and a setter for the reweighted
// allocation. internal/worker.Worker implements this directly.
type WorkerHandle interface {
	Name() string
	Score() float64
	Equity() decimal.Decimal
	SetAllocation(decimal.Decimal)
}

// positiveShares computes, for each worker's positive-clamped score, its fraction
// of the positive-score pool (uniform if the pool sums to zero).
func positiveShares(scores []float64) []float64 {
	pos := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		if s > 0 {
			pos[i] = s
			sum += s
		}
	}
	shares := make([]float64, len(scores))
	if sum == 0 {
		uniform := 1.0 / float64(len(scores))
		for i := range shares {
			shares[i] = uniform
		}
		return shares
	}
	for i, p := range pos {
		shares[i] = p / sum
	}
	return shares
}

// clampAndRenormalize clamps each share into [min,max] then renormalizes
// the clamped shares back to sum to 1, preserving relative ordering.
func clampAndRenormalize(shares []float64, min, max float64) []float64 {
	clamped := make([]float64, len(shares))
	sum := 0.0
	for i, s := range shares {
		c := s
		if c < min {
			c = min
		}
		if c > max {
			c = max
		}
		clamped[i] = c
		sum += c
	}
	if sum == 0 {
		return clamped
	}
	out := make([]float64, len(clamped))
	for i, c := range clamped {
		out[i] = c / sum
	}
	return out
}

// ReweightWithinStrategy redistributes the combined equity of workers
// across themselves by clamped positive-score share (spec.md §4.4
// "Within-strategy reweighting"). starting_allocation is never touched —
// only SetAllocation (the current budget) is written.
func ReweightWithinStrategy(workers []WorkerHandle, bounds model.AllocBounds) {
	if len(workers) == 0 {
		return
	}
	scores := make([]float64, len(workers))
	totalEquity := decimal.Zero
	for i, w := range workers {
		scores[i] = w.Score()
		totalEquity = totalEquity.Add(w.Equity())
	}

	minFrac, _ := bounds.MinFrac.Float64()
	maxFrac, _ := bounds.MaxFrac.Float64()
	if maxFrac <= 0 {
		maxFrac = 1
	}

	shares := clampAndRenormalize(positiveShares(scores), minFrac, maxFrac)
	for i, w := range workers {
		alloc := totalEquity.Mul(decimal.NewFromFloat(shares[i]))
		w.SetAllocation(alloc)
	}
}

// ManagerHandle is the narrow view the across-strategy pass needs of a
// strategy manager: its workers and its aggregate equity.
type ManagerHandle interface {
	Name() string
	Workers() []WorkerHandle
	Equity() decimal.Decimal
}

// averagePositiveScore is the manager-level aggregate score used by the
// across-strategy pass (spec.md §4.4: "average positive score per manager").
func averagePositiveScore(m ManagerHandle) float64 {
	workers := m.Workers()
	if len(workers) == 0 {
		return 0
	}
	sum := 0.0
	for _, w := range workers {
		if s := w.Score(); s > 0 {
			sum += s
		}
	}
	return sum / float64(len(workers))
}

// ReweightAcrossStrategies redistributes the portfolio's total equity
// across managers by clamped average-positive-score share, then pushes
// each manager's target down to its workers proportionally to each
// worker's existing share of that manager's equity (spec.md §4.4
// "Across-strategy reweighting").
func ReweightAcrossStrategies(managers []ManagerHandle, bounds model.AllocBounds) {
	if len(managers) == 0 {
		return
	}
	scores := make([]float64, len(managers))
	totalEquity := decimal.Zero
	managerEquity := make([]decimal.Decimal, len(managers))
	for i, m := range managers {
		scores[i] = averagePositiveScore(m)
		managerEquity[i] = m.Equity()
		totalEquity = totalEquity.Add(managerEquity[i])
	}

	minFrac, _ := bounds.MinFrac.Float64()
	maxFrac, _ := bounds.MaxFrac.Float64()
	if maxFrac <= 0 {
		maxFrac = 1
	}

	shares := clampAndRenormalize(positiveShares(scores), minFrac, maxFrac)
	for i, m := range managers {
		managerTarget := totalEquity.Mul(decimal.NewFromFloat(shares[i]))
		pushToWorkers(m, managerTarget)
	}
}

// pushToWorkers distributes managerTarget to m's workers proportionally
// to each worker's existing share of the manager's pre-reweight equity.
func pushToWorkers(m ManagerHandle, managerTarget decimal.Decimal) {
	workers := m.Workers()
	if len(workers) == 0 {
		return
	}
	priorEquity := decimal.Zero
	equities := make([]decimal.Decimal, len(workers))
	for i, w := range workers {
		equities[i] = w.Equity()
		priorEquity = priorEquity.Add(equities[i])
	}
	if priorEquity.IsZero() {
		even := managerTarget.Div(decimal.NewFromInt(int64(len(workers))))
		for _, w := range workers {
			w.SetAllocation(even)
		}
		return
	}
	for i, w := range workers {
		share := equities[i].Div(priorEquity)
		w.SetAllocation(managerTarget.Mul(share))
	}
}

// scoredWorker pairs a worker handle with its manager, for the
// auto-rebalance worst-performer scan.
type scoredWorker struct {
	manager ManagerHandle
	worker  WorkerHandle
	score   float64
}

// Reassignment is one worker move decided by AutoRebalance; the caller
// (internal/portfolio) applies it — the allocator only decides; it does
// not own worker→manager membership.
type Reassignment struct {
	Worker    WorkerHandle
	FromIndex int // index of the manager the worker currently belongs to
	ToIndex   int // index of the manager it should move to
}

// AutoRebalance implements spec.md §4.4's auto-rebalance routine: moves
// the worst-performing `fraction` of workers (portfolio-wide, by score)
// to the manager with the highest average positive score.
func AutoRebalance(managers []ManagerHandle, fraction float64) []Reassignment {
	if len(managers) == 0 || fraction <= 0 {
		return nil
	}

	bestIdx := 0
	bestScore := averagePositiveScore(managers[0])
	var all []scoredWorker
	for mi, m := range managers {
		s := averagePositiveScore(m)
		if s > bestScore {
			bestScore = s
			bestIdx = mi
		}
		for _, w := range m.Workers() {
			all = append(all, scoredWorker{manager: m, worker: w, score: w.Score()})
		}
	}
	if len(all) == 0 {
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })
	n := int(float64(len(all)) * fraction)
	if n == 0 && fraction > 0 {
		n = 1
	}
	if n > len(all) {
		n = len(all)
	}

	var out []Reassignment
	for i := 0; i < n; i++ {
		fromIdx := indexOfManager(managers, all[i].manager)
		if fromIdx == bestIdx {
			continue // already in the best manager
		}
		out = append(out, Reassignment{Worker: all[i].worker, FromIndex: fromIdx, ToIndex: bestIdx})
	}
	return out
}

func indexOfManager(managers []ManagerHandle, target ManagerHandle) int {
	for i, m := range managers {
		if m.Name() == target.Name() {
			return i
		}
	}
	return -1
}
