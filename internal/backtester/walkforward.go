package backtester

import (
	"context"
	"fmt"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalkForwardWindow pairs an in-sample fitting period with the
// out-of-sample period immediately following it.
type WalkForwardWindow struct {
	InSampleStart, InSampleEnd   int64
	OutSampleStart, OutSampleEnd int64
	InSampleMetrics              model.BacktestMetrics
	OutSampleMetrics             model.BacktestMetrics
}

// WalkForwardResult is the full set of windows plus a robustness score.
type WalkForwardResult struct {
	Windows    []WalkForwardWindow
	Robustness decimal.Decimal
}

// WalkForwardAnalyzer repeatedly runs a strategy over a sliding in/out
// sample split to check whether performance generalizes beyond the
// window it was tuned on — an opt-in validation helper; the /backtest
// endpoint does not invoke it.
type WalkForwardAnalyzer struct {
	logger *zap.Logger
}

// NewWalkForwardAnalyzer builds an analyzer.
func NewWalkForwardAnalyzer(logger *zap.Logger) *WalkForwardAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalkForwardAnalyzer{logger: logger}
}

// Run slides an 80/20 in/out-sample window of windowDays across
// [start,end] stepping by stepDays, backtesting the same strategy in
// both halves of each window.
func (wf *WalkForwardAnalyzer) Run(ctx context.Context, strategy Strategy, data DataProvider, symbol string, tf model.Timeframe, start, end int64, windowDays, stepDays int, initialCapital decimal.Decimal) (WalkForwardResult, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	if stepDays <= 0 {
		stepDays = 7
	}

	windowSecs := int64(windowDays) * 24 * 3600
	stepSecs := int64(stepDays) * 24 * 3600
	inSampleSecs := int64(float64(windowSecs) * 0.8)

	var windows []WalkForwardWindow
	for cur := start; cur+windowSecs <= end; cur += stepSecs {
		select {
		case <-ctx.Done():
			return WalkForwardResult{}, ctx.Err()
		default:
		}

		inStart, inEnd := cur, cur+inSampleSecs
		outStart, outEnd := inEnd, cur+windowSecs

		inMetrics, err := Run(ctx, strategy, data, Config{Symbol: symbol, Timeframe: tf, StartTs: inStart, EndTs: inEnd, InitialCapital: initialCapital})
		if err != nil {
			wf.logger.Warn("in-sample window failed", zap.Int64("start", inStart), zap.Error(err))
			continue
		}
		outMetrics, err := Run(ctx, strategy, data, Config{Symbol: symbol, Timeframe: tf, StartTs: outStart, EndTs: outEnd, InitialCapital: initialCapital})
		if err != nil {
			wf.logger.Warn("out-of-sample window failed", zap.Int64("start", outStart), zap.Error(err))
			continue
		}

		windows = append(windows, WalkForwardWindow{
			InSampleStart: inStart, InSampleEnd: inEnd,
			OutSampleStart: outStart, OutSampleEnd: outEnd,
			InSampleMetrics: inMetrics, OutSampleMetrics: outMetrics,
		})
	}
	if len(windows) == 0 {
		return WalkForwardResult{}, fmt.Errorf("walk-forward: no windows generated for [%d,%d)", start, end)
	}

	return WalkForwardResult{Windows: windows, Robustness: robustness(windows)}, nil
}

// robustness is the ratio of summed out-of-sample to in-sample returns,
// clamped to [0,2] — values above ~0.5 suggest the strategy generalizes.
func robustness(windows []WalkForwardWindow) decimal.Decimal {
	inSum, outSum := 0.0, 0.0
	for _, w := range windows {
		inSum += w.InSampleMetrics.TotalReturnPct
		outSum += w.OutSampleMetrics.TotalReturnPct
	}
	if inSum == 0 {
		return decimal.Zero
	}
	r := outSum / inSum
	if r < 0 {
		r = 0
	}
	if r > 2 {
		r = 2
	}
	return decimal.NewFromFloat(r)
}
