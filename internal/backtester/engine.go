package backtester

import (
	"context"
	"fmt"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// MinNotional mirrors worker.MinNotional — spec.md §4.2/§4.7 define a
// single MIN_NOTIONAL threshold shared by live and simulated sizing.
var MinNotional = decimal.NewFromInt(100)

// CommissionRate is the flat per-fill commission a backtest charges,
// matching the taker fee live execution assumes absent maker fills
// (execution.TakerFeeRate duplicated here to avoid a backtester→execution
// import solely for one constant).
var CommissionRate = decimal.NewFromFloat(0.0010)

// Strategy is the narrow contract a backtest run depends on — identical
// in shape to worker.Evaluator, defined locally per Go's prefer-narrow-
// consumer-interfaces idiom.
type Strategy interface {
	OnBar(bars []model.Bar) (float64, error)
}

// DataProvider supplies historical bars, matching the vendor history
// contract (spec.md §6).
type DataProvider interface {
	History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error)
}

// Config parameterizes one backtest run.
type Config struct {
	Symbol         string
	Timeframe      model.Timeframe
	StartTs        int64
	EndTs          int64
	Lookback       int // default 200
	InitialCapital decimal.Decimal
	FetchLimit     int // bars requested from DataProvider; default 5000
}

// Run replays a strategy bar-by-bar over [StartTs, EndTs] and returns the
// resulting metrics (spec.md §4.7). Single-threaded, deterministic.
func Run(ctx context.Context, strategy Strategy, data DataProvider, cfg Config) (model.BacktestMetrics, error) {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 200
	}
	fetchLimit := cfg.FetchLimit
	if fetchLimit <= 0 {
		fetchLimit = 5000
	}
	initialCapital := cfg.InitialCapital
	if initialCapital.IsZero() {
		initialCapital = decimal.NewFromInt(10000)
	}

	bars, err := data.History(ctx, cfg.Symbol, cfg.Timeframe, fetchLimit)
	if err != nil {
		return model.BacktestMetrics{}, fmt.Errorf("backtest: fetch history: %w", err)
	}

	var windowed []model.Bar
	for _, b := range bars {
		if b.Ts >= cfg.StartTs && b.Ts <= cfg.EndTs {
			windowed = append(windowed, b)
		}
	}
	if len(windowed) == 0 {
		return model.BacktestMetrics{}, nil
	}

	portfolio := NewPortfolio(initialCapital)
	var equityCurve []decimal.Decimal
	var outcomes []tradeOutcome

	for i := range windowed {
		lo := i - lookback + 1
		if lo < 0 {
			lo = 0
		}
		window := windowed[lo : i+1]
		bar := windowed[i]

		targetExp, err := strategy.OnBar(window)
		if err != nil {
			return model.BacktestMetrics{}, fmt.Errorf("backtest: strategy OnBar at ts=%d: %w", bar.Ts, err)
		}

		portfolio.MarkPrice(bar.Close)
		equity := portfolio.Equity()
		targetQty := equity.Mul(decimal.NewFromFloat(targetExp)).Div(bar.Close)
		delta := targetQty.Sub(portfolio.Qty())

		notional := delta.Abs().Mul(bar.Close)
		if notional.GreaterThanOrEqual(MinNotional) {
			commission := notional.Mul(CommissionRate)
			if delta.IsPositive() {
				portfolio.Buy(delta, bar.Close, commission)
			} else {
				pnl := portfolio.Sell(delta.Abs(), bar.Close, commission)
				outcomes = append(outcomes, tradeOutcome{pnl: pnl})
			}
		}

		equityCurve = append(equityCurve, portfolio.Equity())
	}

	return computeMetrics(equityCurve, outcomes, portfolio.trades, initialCapital, cfg.Timeframe.PeriodsPerYear()), nil
}
