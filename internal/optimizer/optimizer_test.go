package optimizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/dezgo/tradintel/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeData struct {
	bars []model.Bar
}

func (f *fakeData) History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	return f.bars, nil
}

func genBars(n int, start, step float64) []model.Bar {
	out := make([]model.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(price)
		out[i] = model.Bar{Ts: int64(i * 86400), Open: c, High: c, Low: c, Close: c, Volume: decimal.NewFromInt(1)}
		price += step
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	results []model.OptimizationResult
}

func (s *fakeStore) SaveOptimizationResult(ctx context.Context, r model.OptimizationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *fakeStore) GetOptimizationResultByID(ctx context.Context, id int64) (model.OptimizationResult, error) {
	return model.OptimizationResult{}, errors.New("not found")
}

func (s *fakeStore) SaveBacktest(ctx context.Context, b store.SavedBacktest) (int64, error) {
	return 0, nil
}

func TestFitnessZeroTradesReturnsZero(t *testing.T) {
	require.Equal(t, 0.0, Fitness(model.BacktestMetrics{TradeCount: 0, TotalReturnPct: 50}))
}

func TestFitnessFormula(t *testing.T) {
	m := model.BacktestMetrics{TradeCount: 5, MaxDrawdownPct: 10, Sharpe: 1.5, TotalReturnPct: 20}
	got := Fitness(m)
	want := 100 - 10 + 1.5*10 + 20*0.1
	require.InDelta(t, want, got, 0.0001)
}

func TestCombinationsEnumeratesFullGrid(t *testing.T) {
	grid := []ParamGrid{
		{Name: "lookback", Min: 10, Max: 30, Step: 10},
		{Name: "band", Min: 1, Max: 2, Step: 1},
	}
	combos := combinations(grid)
	require.Len(t, combos, 3*2)
}

func TestCombinationsNoParamsReturnsSingleEmptySet(t *testing.T) {
	combos := combinations(nil)
	require.Len(t, combos, 1)
	require.Empty(t, combos[0])
}

func TestRunOncePersistsOnlyTopNPerFamilyAndSymbol(t *testing.T) {
	data := &fakeData{bars: genBars(400, 100, 1)}
	store := &fakeStore{}
	opt := New(data, store, nil)

	cfg := Config{
		Symbols:   []string{"BTC_USDT"},
		Timeframe: model.Timeframe1d,
		Grids: []FamilyGrid{
			{Kind: strategy.KindTrendFollow, Params: []ParamGrid{
				{Name: "fast", Min: 5, Max: 15, Step: 5},
				{Name: "slow", Min: 20, Max: 30, Step: 10},
			}},
		},
		WindowDays:     365,
		InitialCapital: 10000,
		TopN:           2,
	}

	err := opt.RunOnce(context.Background(), cfg, 400*86400)
	require.NoError(t, err)
	require.LessOrEqual(t, len(store.results), 2)
	for _, r := range store.results {
		require.Equal(t, "BTC_USDT", r.Symbol)
		require.Equal(t, string(strategy.KindTrendFollow), r.Strategy)
	}
}

func TestRunOnceSkipsUnknownKindGracefullyViaError(t *testing.T) {
	data := &fakeData{bars: genBars(50, 100, 1)}
	store := &fakeStore{}
	opt := New(data, store, nil)

	cfg := Config{
		Symbols:   []string{"ETH_USDT"},
		Timeframe: model.Timeframe1d,
		Grids: []FamilyGrid{
			{Kind: strategy.Kind("Nonexistent"), Params: nil},
		},
		WindowDays: 30,
	}

	// sweepFamily errors are logged, not surfaced, so RunOnce itself
	// should still return nil even when a family's kind is unknown.
	err := opt.RunOnce(context.Background(), cfg, 60*86400)
	require.NoError(t, err)
	require.Empty(t, store.results)
}
