package backtester

import (
	"math"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// tradeOutcome is one realized-PnL event emitted by a Sell during a run.
type tradeOutcome struct {
	pnl decimal.Decimal
}

// computeMetrics derives spec.md §4.7's metric set from the equity curve
// and the realized-PnL events a run produced. periodsPerYear comes from
// the timeframe being replayed, per the Sharpe annualization formula.
func computeMetrics(equityCurve []decimal.Decimal, outcomes []tradeOutcome, tradeCount int, initialCash decimal.Decimal, periodsPerYear float64) model.BacktestMetrics {
	m := model.BacktestMetrics{TradeCount: tradeCount}
	if len(equityCurve) == 0 || initialCash.IsZero() {
		return m
	}

	finalEquity := equityCurve[len(equityCurve)-1]
	totalReturn, _ := finalEquity.Sub(initialCash).Div(initialCash).Mul(decimal.NewFromInt(100)).Float64()
	m.TotalReturnPct = totalReturn

	m.MaxDrawdownPct = maxDrawdownPct(equityCurve)
	m.Sharpe = sharpe(equityCurve, periodsPerYear)

	m.RoundTripCount = len(outcomes)
	if len(outcomes) == 0 {
		return m
	}

	var wins, losses int
	var totalWin, totalLoss float64
	var consecutiveLoss, maxConsecutiveLoss int
	for _, o := range outcomes {
		v, _ := o.pnl.Float64()
		if v > 0 {
			wins++
			totalWin += v
			consecutiveLoss = 0
		} else if v < 0 {
			losses++
			totalLoss += -v
			consecutiveLoss++
			if consecutiveLoss > maxConsecutiveLoss {
				maxConsecutiveLoss = consecutiveLoss
			}
		} else {
			consecutiveLoss = 0
		}
	}
	m.WinRate = float64(wins) / float64(len(outcomes))
	if wins > 0 {
		m.AvgWin = totalWin / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = totalLoss / float64(losses)
	}
	if totalLoss > 0 {
		m.ProfitFactor = totalWin / totalLoss
	}
	m.MaxConsecutiveLoss = maxConsecutiveLoss
	return m
}

// maxDrawdownPct is the largest peak-to-trough percentage decline across
// the equity curve.
func maxDrawdownPct(curve []decimal.Decimal) float64 {
	peak := curve[0]
	maxDD := 0.0
	for _, e := range curve {
		if e.GreaterThan(peak) {
			peak = e
		}
		if peak.IsZero() {
			continue
		}
		dd, _ := peak.Sub(e).Div(peak).Mul(decimal.NewFromInt(100)).Float64()
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpe annualizes the mean/stddev of per-bar returns by √periodsPerYear
// (spec.md §4.7: "avg_ret × √N / std_ret").
func sharpe(curve []decimal.Decimal, periodsPerYear float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1].IsZero() {
			continue
		}
		r, _ := curve[i].Sub(curve[i-1]).Div(curve[i-1]).Float64()
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}
