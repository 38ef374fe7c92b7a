// Package evolver runs a genetic population of StrategyGenomes across
// the configured symbols, generation by generation, persisting ranked
// candidates for the portfolio builder to promote (spec.md §4.9).
package evolver

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/dezgo/tradintel/internal/backtester"
	"github.com/dezgo/tradintel/internal/metrics"
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/optimizer"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/strategy/genome"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ResultStore is the subset of *store.Store the evolver reads and writes.
type ResultStore interface {
	SaveEvolvedStrategy(ctx context.Context, e model.EvolvedStrategy) error
	GetEvolvedStrategyByID(ctx context.Context, id int64) (model.EvolvedStrategy, error)
	SaveBacktest(ctx context.Context, b store.SavedBacktest) (int64, error)
}

// Config parameterizes one evolution cycle.
type Config struct {
	Symbols        []string
	Timeframe      model.Timeframe
	WindowDays     int     // default 365
	InitialCapital float64 // default 10000
	PopulationSize int     // default 20 ("P")
	Survivors      int     // default 5
	PersistTopN    int     // default 10
	MutationRate   float64 // default 0.5
	CrossoverRate  float64 // default 0.3 (remainder mutates an existing child)
}

func (c Config) withDefaults() Config {
	if c.WindowDays <= 0 {
		c.WindowDays = 365
	}
	if c.InitialCapital <= 0 {
		c.InitialCapital = 10000
	}
	if c.PopulationSize <= 0 {
		c.PopulationSize = 20
	}
	if c.Survivors <= 0 {
		c.Survivors = 5
	}
	if c.PersistTopN <= 0 {
		c.PersistTopN = 10
	}
	if c.MutationRate <= 0 && c.CrossoverRate <= 0 {
		c.MutationRate, c.CrossoverRate = 0.5, 0.3
	}
	return c
}

// candidate is one genome evaluated against one symbol.
type candidate struct {
	genome  model.StrategyGenome
	symbol  string
	metrics model.BacktestMetrics
	score   float64
}

// Evolver owns the live population and generation counter across cycles.
type Evolver struct {
	data       backtester.DataProvider
	store      ResultStore
	logger     *zap.Logger
	rng        *rand.Rand
	population []model.StrategyGenome
	generation int
}

// New builds an Evolver, seeding the population from genome.Seed() plus
// mutated variants to fill out the default population size.
func New(data backtester.DataProvider, st ResultStore, logger *zap.Logger, rngSeed int64) *Evolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evolver{
		data:   data,
		store:  st,
		logger: logger,
		rng:    rand.New(rand.NewSource(rngSeed)),
	}
	e.population = e.seedPopulation(20)
	return e
}

// seedPopulation fills a population of size n from the hand-crafted
// seeds, mutating copies to pad out to the target size (spec.md §4.9:
// "the initial population is filled by mutating seeds").
func (e *Evolver) seedPopulation(n int) []model.StrategyGenome {
	seeds := genome.Seed()
	pop := make([]model.StrategyGenome, 0, n)
	pop = append(pop, seeds...)
	for len(pop) < n {
		base := seeds[e.rng.Intn(len(seeds))]
		pop = append(pop, genome.Mutate(base, e.rng))
	}
	if len(pop) > n {
		pop = pop[:n]
	}
	return pop
}

// Generation returns the current generation counter.
func (e *Evolver) Generation() int { return e.generation }

// RunOnce evaluates the current population across every configured
// symbol, selects survivors, persists the top candidates, and replaces
// the population with the next generation's children.
func (e *Evolver) RunOnce(ctx context.Context, cfg Config, nowTs int64) error {
	cfg = cfg.withDefaults()
	startTs := nowTs - int64(cfg.WindowDays)*24*3600

	var results []candidate
	for _, g := range e.population {
		for _, symbol := range cfg.Symbols {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			c, err := e.evaluate(ctx, g, symbol, cfg.Timeframe, startTs, nowTs, cfg.InitialCapital)
			if err != nil {
				e.logger.Warn("genome evaluation failed; recording zero fitness",
					zap.String("symbol", symbol), zap.Error(err))
				c = candidate{genome: g, symbol: symbol, score: 0}
			}
			results = append(results, c)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > 0 {
		metrics.SetEvolverBestFitness(results[0].score)
	}

	survivorCount := cfg.Survivors
	if survivorCount > len(results) {
		survivorCount = len(results)
	}
	survivors := results[:survivorCount]

	e.generation++
	persistCount := cfg.PersistTopN
	if persistCount > len(results) {
		persistCount = len(results)
	}
	for _, c := range results[:persistCount] {
		if err := e.store.SaveEvolvedStrategy(ctx, model.EvolvedStrategy{
			Symbol: c.symbol, Timeframe: cfg.Timeframe, Genome: c.genome,
			Score: c.score, Generation: e.generation, Metrics: c.metrics,
		}); err != nil {
			return fmt.Errorf("evolver: save evolved strategy: %w", err)
		}
	}

	survivorGenomes := make([]model.StrategyGenome, len(survivors))
	for i, s := range survivors {
		survivorGenomes[i] = s.genome
	}
	e.population = e.reproduce(survivorGenomes, cfg.PopulationSize, cfg.MutationRate, cfg.CrossoverRate)
	metrics.IncEvolverGeneration()
	return nil
}

func (e *Evolver) evaluate(ctx context.Context, g model.StrategyGenome, symbol string, tf model.Timeframe, startTs, endTs int64, initialCapital float64) (candidate, error) {
	ev, err := genome.New(g)
	if err != nil {
		return candidate{}, fmt.Errorf("build genome evaluator: %w", err)
	}
	metrics, err := backtester.Run(ctx, ev, e.data, backtester.Config{
		Symbol: symbol, Timeframe: tf, StartTs: startTs, EndTs: endTs,
		InitialCapital: decimal.NewFromFloat(initialCapital),
	})
	if err != nil {
		return candidate{}, fmt.Errorf("run backtest: %w", err)
	}
	return candidate{genome: g, symbol: symbol, metrics: metrics, score: optimizer.Fitness(metrics)}, nil
}

// reproduce builds the next population from survivors: carries survivors
// over unchanged, then fills the remainder by mutation, crossover, or
// mutating an already-built child, per spec.md §4.9 step 4.
func (e *Evolver) reproduce(survivors []model.StrategyGenome, targetSize int, mutationRate, crossoverRate float64) []model.StrategyGenome {
	if len(survivors) == 0 {
		return e.seedPopulation(targetSize)
	}
	next := make([]model.StrategyGenome, 0, targetSize)
	next = append(next, survivors...)

	for len(next) < targetSize {
		roll := e.rng.Float64()
		switch {
		case roll < mutationRate:
			parent := survivors[e.rng.Intn(len(survivors))]
			next = append(next, genome.Mutate(parent, e.rng))
		case roll < mutationRate+crossoverRate && len(survivors) >= 2:
			a := survivors[e.rng.Intn(len(survivors))]
			b := survivors[e.rng.Intn(len(survivors))]
			next = append(next, genome.Crossover(a, b, e.rng))
		default:
			child := next[e.rng.Intn(len(next))]
			next = append(next, genome.Mutate(child, e.rng))
		}
	}
	if len(next) > targetSize {
		next = next[:targetSize]
	}
	return next
}

// Promote turns a persisted evolved genome into a saved_backtests row
// tagged "GenomeStrategy", as POST /evolution/promote/<id> does
// (spec.md §4.9, §8 S5).
func (e *Evolver) Promote(ctx context.Context, id int64) (int64, error) {
	evolved, err := e.store.GetEvolvedStrategyByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("evolver: promote: %w", err)
	}
	name := fmt.Sprintf("Evolved Gen%d • %s • %s [Score %d]",
		evolved.Generation, evolved.Symbol, evolved.Timeframe, int(evolved.Score))
	return e.store.SaveBacktest(ctx, store.SavedBacktest{
		Strategy:  "GenomeStrategy",
		Symbol:    evolved.Symbol,
		Timeframe: evolved.Timeframe,
		Params:    map[string]any{"genome": evolved.Genome, "name": name},
		Metrics:   evolved.Metrics,
	})
}

// RunForever loops RunOnce on intervalHours, backing off 1h on error,
// mirroring the optimizer's continuous-cycle shape (spec.md §5:
// "1 evolver" background thread).
func (e *Evolver) RunForever(ctx context.Context, cfg Config, intervalHours int, clockNow func() int64) {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	interval := time.Duration(intervalHours) * time.Hour
	for {
		if err := e.RunOnce(ctx, cfg, clockNow()); err != nil {
			e.logger.Error("evolver cycle failed; backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Hour):
			}
			continue
		}
		e.logger.Info("evolver generation complete", zap.Int("generation", e.generation))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
