package backtester

import (
	"context"
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeData struct {
	bars []model.Bar
}

func (f *fakeData) History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	return f.bars, nil
}

// alternatingStrategy flips fully long/flat every N bars, guaranteeing a
// deterministic trade sequence to exercise Buy/Sell/metrics.
type alternatingStrategy struct {
	period int
	calls  int
}

func (a *alternatingStrategy) OnBar(bars []model.Bar) (float64, error) {
	a.calls++
	if (a.calls/a.period)%2 == 0 {
		return 1.0, nil
	}
	return 0.0, nil
}

func genBars(n int, start, step float64) []model.Bar {
	out := make([]model.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(price)
		out[i] = model.Bar{Ts: int64(i * 3600), Open: c, High: c, Low: c, Close: c, Volume: decimal.NewFromInt(1)}
		price += step
	}
	return out
}

func TestRunProducesMetricsOverTrendingBars(t *testing.T) {
	data := &fakeData{bars: genBars(100, 100, 1)}
	strat := &alternatingStrategy{period: 10}

	metrics, err := Run(context.Background(), strat, data, Config{
		Symbol: "BTC_USDT", Timeframe: model.Timeframe1h,
		StartTs: 0, EndTs: 99 * 3600, InitialCapital: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)
	require.Greater(t, metrics.TradeCount, 0)
}

func TestRunHonorsTimeWindow(t *testing.T) {
	data := &fakeData{bars: genBars(50, 100, 0)}
	strat := &alternatingStrategy{period: 5}

	metrics, err := Run(context.Background(), strat, data, Config{
		Symbol: "BTC_USDT", Timeframe: model.Timeframe1h,
		StartTs: 10 * 3600, EndTs: 20 * 3600, InitialCapital: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)
	require.LessOrEqual(t, metrics.TradeCount, 11)
}

func TestRunEmptyWindowReturnsZeroMetrics(t *testing.T) {
	data := &fakeData{bars: genBars(10, 100, 0)}
	strat := &alternatingStrategy{period: 3}

	metrics, err := Run(context.Background(), strat, data, Config{
		Symbol: "BTC_USDT", Timeframe: model.Timeframe1h,
		StartTs: 100000, EndTs: 200000, InitialCapital: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)
	require.Equal(t, 0, metrics.TradeCount)
}

func TestPortfolioBuySellTracksPnL(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(1000))
	p.MarkPrice(decimal.NewFromInt(100))
	p.Buy(decimal.NewFromInt(5), decimal.NewFromInt(100), decimal.Zero)
	p.MarkPrice(decimal.NewFromInt(120))
	pnl := p.Sell(decimal.NewFromInt(5), decimal.NewFromInt(120), decimal.Zero)
	require.True(t, pnl.Equal(decimal.NewFromInt(100)), "expected pnl 100, got %s", pnl)
}

func TestMaxDrawdownPctComputesPeakToTrough(t *testing.T) {
	curve := []decimal.Decimal{
		decimal.NewFromInt(100), decimal.NewFromInt(120), decimal.NewFromInt(90), decimal.NewFromInt(110),
	}
	dd := maxDrawdownPct(curve)
	require.InDelta(t, 25.0, dd, 0.001) // (120-90)/120
}

func TestMonteCarloRunProducesDistribution(t *testing.T) {
	sim := NewMonteCarloSimulator(nil, MonteCarloConfig{Iterations: 200}, 7)
	result := sim.Run([]float64{5, -2, 3, -1, 4, -3})
	require.Equal(t, 200, result.Iterations)
}

func TestWalkForwardRunProducesWindows(t *testing.T) {
	data := &fakeData{bars: genBars(24*60, 100, 0.01)}
	strat := &alternatingStrategy{period: 20}
	wf := NewWalkForwardAnalyzer(nil)

	result, err := wf.Run(context.Background(), strat, data, "BTC_USDT", model.Timeframe1h,
		0, 24*60*3600, 10, 5, decimal.NewFromInt(10000))
	require.NoError(t, err)
	require.Greater(t, len(result.Windows), 0)
}
