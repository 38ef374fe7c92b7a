package portfolio

import (
	"context"
	"fmt"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/strategy"
	"github.com/dezgo/tradintel/internal/strategy/genome"
	"github.com/dezgo/tradintel/internal/worker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BuildDeps is everything Build needs beyond the Portfolio itself to
// wire up a fresh generation of workers.
type BuildDeps struct {
	Data         worker.DataProvider
	Exec         worker.ExecClient
	TradeStore   worker.TradeRecorder
	Settings     worker.SettingsReader
	Clock        worker.Clock
	Logger       *zap.Logger
	Symbols      []string
	Timeframe    model.Timeframe
	NumEvolved   int     // top-N evolved strategies to promote into workers, default 5
	MinScore     float64 // floor on evolved score, default 0
	TotalCapital decimal.Decimal
}

func (d BuildDeps) withDefaults() BuildDeps {
	if len(d.Symbols) == 0 {
		d.Symbols = DefaultSymbols
	}
	if d.Timeframe == "" {
		d.Timeframe = model.Timeframe1d
	}
	if d.NumEvolved <= 0 {
		d.NumEvolved = 5
	}
	if d.TotalCapital.IsZero() {
		d.TotalCapital = decimal.NewFromInt(10000)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// Build populates an empty Portfolio, implementing spec.md §4.9's
// promotion rule: pick the top-N evolved strategies by score (falling
// back to the parametric grid × symbols product if none exist yet),
// construct one worker per (strategy, symbol) pair, split capital
// evenly across them, and group workers into managers by strategy
// family name.
func (p *Portfolio) Build(ctx context.Context, deps BuildDeps) error {
	deps = deps.withDefaults()

	evolved, err := p.store.GetTopEvolvedStrategiesForPortfolio(ctx, deps.NumEvolved, deps.MinScore)
	if err != nil {
		return fmt.Errorf("portfolio: build: load evolved strategies: %w", err)
	}

	type seed struct {
		managerName string
		workerName  string
		symbol      string
		tf          model.Timeframe
		evaluator   worker.Evaluator
		kind        string
		params      map[string]float64
	}

	var seeds []seed
	if len(evolved) > 0 {
		for i, e := range evolved {
			eval, err := genome.New(e.Genome)
			if err != nil {
				deps.Logger.Warn("skipping evolved strategy with invalid genome", zap.Int64("id", e.ID), zap.Error(err))
				continue
			}
			seeds = append(seeds, seed{
				managerName: "Evolved",
				workerName:  fmt.Sprintf("evolved_%d_p%d", e.Generation, i),
				symbol:      e.Symbol, tf: e.Timeframe, evaluator: eval,
				kind: string(strategy.KindGenome), params: genomeParams(e.Genome),
			})
		}
	}
	if len(seeds) == 0 {
		for _, g := range strategy.DefaultGrid() {
			for _, symbol := range deps.Symbols {
				eval, err := strategy.NewParametric(g.Kind, g.Params)
				if err != nil {
					return fmt.Errorf("portfolio: build: default grid: %w", err)
				}
				seeds = append(seeds, seed{
					managerName: string(g.Kind),
					workerName:  fmt.Sprintf("%s_%s", string(g.Kind), symbol),
					symbol:      symbol, tf: deps.Timeframe, evaluator: eval,
					kind: string(g.Kind), params: g.Params,
				})
			}
		}
	}

	if len(seeds) == 0 {
		return fmt.Errorf("portfolio: build: no strategies to seed (no evolved strategies and empty default grid)")
	}

	allocationEach := deps.TotalCapital.Div(decimal.NewFromInt(int64(len(seeds))))

	existing, err := p.store.LoadBots(ctx)
	if err != nil {
		return fmt.Errorf("portfolio: build: load bots: %w", err)
	}
	bySnapshotName := make(map[string]store.BotSnapshot, len(existing))
	for _, snap := range existing {
		bySnapshotName[snap.Name] = snap
	}

	for _, s := range seeds {
		w := worker.New(worker.Config{
			Name: s.workerName, Symbol: s.symbol, Timeframe: s.tf,
			Strategy: s.evaluator, Data: deps.Data, Exec: deps.Exec,
			Store: deps.TradeStore, Settings: deps.Settings, Clock: deps.Clock,
			Logger: deps.Logger,
		}, allocationEach)

		if snap, ok := bySnapshotName[s.workerName]; ok {
			w.Hydrate(snap)
		}

		mgr := p.managerByName(s.managerName)
		mgr.addWorker(&managedWorker{engine: w, strategyKind: s.kind, params: s.params})
	}

	return nil
}

// genomeParams flattens a genome's confirm_bars into the params map a
// bot snapshot stores; the genome body itself isn't a flat float map,
// so only the one numeric field that survives round-tripping is kept.
func genomeParams(g model.StrategyGenome) map[string]float64 {
	return map[string]float64{"confirm_bars": float64(g.ConfirmBars)}
}
