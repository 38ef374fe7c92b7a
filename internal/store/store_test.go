package store

import (
	"context"
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertBotAndLoadBotsRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := BotSnapshot{
		Name: "sma-cross-btc", Symbol: "BTC_USDT", Timeframe: model.Timeframe1h,
		StrategyKind: "sma_crossover", Params: map[string]float64{"fast": 10, "slow": 30},
		Allocation: decimal.NewFromInt(1000), StartingAllocation: decimal.NewFromInt(1000),
		Cash: decimal.NewFromInt(1000), PosQty: decimal.Zero, AvgPrice: decimal.Zero,
		Equity: decimal.NewFromInt(1000), CumPnL: decimal.Zero, Trades: 0, Score: 0,
	}
	require.NoError(t, s.UpsertBot(ctx, snap))

	snap.Trades = 3
	snap.Equity = decimal.NewFromInt(1050)
	require.NoError(t, s.UpsertBot(ctx, snap))

	bots, err := s.LoadBots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	require.Equal(t, "sma-cross-btc", bots[0].Name)
	require.Equal(t, 3, bots[0].Trades)
	require.True(t, bots[0].Equity.Equal(decimal.NewFromInt(1050)))
	require.Equal(t, float64(10), bots[0].Params["fast"])
}

func TestRecordTradeAndListTrades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	snap := BotSnapshot{Name: "b1", Symbol: "BTC_USDT", Timeframe: model.Timeframe1h, Params: map[string]float64{},
		Allocation: decimal.NewFromInt(100), StartingAllocation: decimal.NewFromInt(100), Cash: decimal.NewFromInt(100),
		PosQty: decimal.Zero, AvgPrice: decimal.Zero, Equity: decimal.NewFromInt(100), CumPnL: decimal.Zero}
	require.NoError(t, s.UpsertBot(ctx, snap))

	require.NoError(t, s.RecordTrade(ctx, "b1", "BTC_USDT", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromFloat(0.1), true, decimal.NewFromInt(100)))
	require.NoError(t, s.RecordTrade(ctx, "b1", "BTC_USDT", model.SideSell, decimal.NewFromInt(1), decimal.NewFromInt(110), decimal.NewFromFloat(0.1), false, decimal.NewFromInt(110)))

	trades, err := s.ListTrades(ctx, TradeFilter{BotName: "b1"})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.Equal(t, model.SideSell, trades[0].Side) // newest first

	counts, err := s.TradeCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts["b1"])
}

func TestListRoundtripsSimpleLongRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	snap := BotSnapshot{Name: "b1", Symbol: "BTC_USDT", Params: map[string]float64{}}
	require.NoError(t, s.UpsertBot(ctx, snap))

	require.NoError(t, s.RecordTrade(ctx, "b1", "BTC_USDT", model.SideBuy, decimal.NewFromInt(2), decimal.NewFromInt(100), decimal.Zero, true, decimal.Zero))
	require.NoError(t, s.RecordTrade(ctx, "b1", "BTC_USDT", model.SideSell, decimal.NewFromInt(2), decimal.NewFromInt(120), decimal.Zero, false, decimal.Zero))

	rts, err := s.ListRoundtrips(ctx, TradeFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, rts, 1)
	require.Equal(t, model.RoundTripLong, rts[0].Side)
	require.True(t, rts[0].Qty.Equal(decimal.NewFromInt(2)))
	require.True(t, rts[0].PnL.Equal(decimal.NewFromInt(40)), "expected pnl 40, got %s", rts[0].PnL)
}

func TestListRoundtripsPartialFIFOMatchAndFlip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertBot(ctx, BotSnapshot{Name: "b1", Symbol: "ETH_USDT", Params: map[string]float64{}}))

	// Buy 1 @10, buy 1 @20 (two lots), sell 3 @30: matches both lots
	// FIFO then flips short by 1.
	require.NoError(t, s.RecordTrade(ctx, "b1", "ETH_USDT", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(10), decimal.Zero, true, decimal.Zero))
	require.NoError(t, s.RecordTrade(ctx, "b1", "ETH_USDT", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(20), decimal.Zero, true, decimal.Zero))
	require.NoError(t, s.RecordTrade(ctx, "b1", "ETH_USDT", model.SideSell, decimal.NewFromInt(3), decimal.NewFromInt(30), decimal.Zero, false, decimal.Zero))

	rts, err := s.ListRoundtrips(ctx, TradeFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, rts, 2)

	positions, err := s.ListOpenPositions(ctx, TradeFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.True(t, positions[0].Qty.Equal(decimal.NewFromInt(-1)), "expected flipped short qty -1, got %s", positions[0].Qty)
}

func TestRealizedPnLExcludesStablecoinPairs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertBot(ctx, BotSnapshot{Name: "b1", Symbol: "USDC_USDT", Params: map[string]float64{}}))
	require.NoError(t, s.RecordTrade(ctx, "b1", "USDC_USDT", model.SideBuy, decimal.NewFromInt(100), decimal.NewFromFloat(1.0), decimal.Zero, true, decimal.Zero))
	require.NoError(t, s.RecordTrade(ctx, "b1", "USDC_USDT", model.SideSell, decimal.NewFromInt(100), decimal.NewFromFloat(1.01), decimal.Zero, false, decimal.Zero))

	pnl, err := s.RealizedPnL(ctx, TradeFilter{}, true)
	require.NoError(t, err)
	require.True(t, pnl.IsZero())

	pnlIncluded, err := s.RealizedPnL(ctx, TradeFilter{}, false)
	require.NoError(t, err)
	require.False(t, pnlIncluded.IsZero())
}

func TestSettingsGetSetAndTradingPaused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "trading_paused")
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, s.TradingPaused(ctx))

	require.NoError(t, s.SetSetting(ctx, "trading_paused", "true"))
	require.True(t, s.TradingPaused(ctx))
}

func TestStoreBarsAndGetBarsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	bars := []model.Bar{
		{Ts: 300, Open: decimal.NewFromInt(3), High: decimal.NewFromInt(3), Low: decimal.NewFromInt(3), Close: decimal.NewFromInt(3), Volume: decimal.NewFromInt(1)},
		{Ts: 100, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(1), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(1), Volume: decimal.NewFromInt(1)},
		{Ts: 200, Open: decimal.NewFromInt(2), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(2), Close: decimal.NewFromInt(2), Volume: decimal.NewFromInt(1)},
	}
	require.NoError(t, s.StoreBars(ctx, "BTC_USDT", model.Timeframe1h, "test", bars))

	got, err := s.GetBars(ctx, "BTC_USDT", model.Timeframe1h, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(100), got[0].Ts)
	require.Equal(t, int64(300), got[2].Ts)

	oldest, newest, ok, err := s.GetBarCoverage(ctx, "BTC_USDT", model.Timeframe1h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), oldest)
	require.Equal(t, int64(300), newest)
}

func TestOptimizationResultUpsertDedupesOnKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := model.OptimizationResult{Strategy: "sma", Symbol: "BTC_USDT", Timeframe: model.Timeframe1d,
		Params: map[string]float64{"fast": 10, "slow": 30}, Score: 50}
	require.NoError(t, s.SaveOptimizationResult(ctx, r))
	r.Score = 75
	require.NoError(t, s.SaveOptimizationResult(ctx, r))

	top, err := s.TopOptimizationResults(ctx, "sma", "BTC_USDT", 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, 75.0, top[0].Score)
}

func TestEvolvedStrategiesListedByScoreDescending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveEvolvedStrategy(ctx, model.EvolvedStrategy{Symbol: "BTC_USDT", Timeframe: model.Timeframe1d, Score: 10, Generation: 1}))
	require.NoError(t, s.SaveEvolvedStrategy(ctx, model.EvolvedStrategy{Symbol: "BTC_USDT", Timeframe: model.Timeframe1d, Score: 90, Generation: 1}))

	top, err := s.GetTopEvolvedStrategiesForPortfolio(ctx, 5, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, 90.0, top[0].Score)
}

func TestListOptimizationResultsFiltersAndOrdersByScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveOptimizationResult(ctx, model.OptimizationResult{
		Strategy: "sma", Symbol: "BTC_USDT", Timeframe: model.Timeframe1d, Params: map[string]float64{"fast": 10}, Score: 20}))
	require.NoError(t, s.SaveOptimizationResult(ctx, model.OptimizationResult{
		Strategy: "sma", Symbol: "ETH_USDT", Timeframe: model.Timeframe1d, Params: map[string]float64{"fast": 20}, Score: 80}))

	all, err := s.ListOptimizationResults(ctx, OptimizationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 80.0, all[0].Score)

	narrowed, err := s.ListOptimizationResults(ctx, OptimizationFilter{Symbol: "BTC_USDT"})
	require.NoError(t, err)
	require.Len(t, narrowed, 1)
	require.Equal(t, "BTC_USDT", narrowed[0].Symbol)
}

func TestGetOptimizationResultByIDReturnsFullRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveOptimizationResult(ctx, model.OptimizationResult{
		Strategy: "sma", Symbol: "BTC_USDT", Timeframe: model.Timeframe1d, Params: map[string]float64{"fast": 10}, Score: 20}))

	all, err := s.ListOptimizationResults(ctx, OptimizationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	got, err := s.GetOptimizationResultByID(ctx, all[0].ID)
	require.NoError(t, err)
	require.Equal(t, "sma", got.Strategy)
	require.Equal(t, 10.0, got.Params["fast"])
}

func TestSavedBacktestsListGetAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.SaveBacktest(ctx, SavedBacktest{
		Strategy: "MeanReversion", Symbol: "BTC_USDT", Timeframe: model.Timeframe1d,
		Params: map[string]any{"lookback": 20.0}, Metrics: model.BacktestMetrics{TradeCount: 3},
	})
	require.NoError(t, err)

	list, err := s.ListSavedBacktests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := s.GetSavedBacktestByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "MeanReversion", got.Strategy)

	require.NoError(t, s.DeleteSavedBacktest(ctx, id))
	list, err = s.ListSavedBacktests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 0)
}
