package portfolio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeBotStore struct {
	mu       sync.Mutex
	bots     map[string]store.BotSnapshot
	evolved  []model.EvolvedStrategy
	upserts  int
}

func newFakeBotStore() *fakeBotStore { return &fakeBotStore{bots: make(map[string]store.BotSnapshot)} }

func (s *fakeBotStore) UpsertBot(ctx context.Context, b store.BotSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.bots[b.Name] = b
	return nil
}

func (s *fakeBotStore) LoadBots(ctx context.Context) ([]store.BotSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.BotSnapshot
	for _, b := range s.bots {
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeBotStore) GetTopEvolvedStrategiesForPortfolio(ctx context.Context, n int, minScore float64) ([]model.EvolvedStrategy, error) {
	if len(s.evolved) > n {
		return s.evolved[:n], nil
	}
	return s.evolved, nil
}

type fakeData struct{ bars []model.Bar }

func (d *fakeData) History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	return d.bars, nil
}

func genBars(n int) []model.Bar {
	out := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(100 + float64(i))
		out[i] = model.Bar{Ts: int64(i * 86400), Open: c, High: c, Low: c, Close: c, Volume: decimal.NewFromInt(10)}
	}
	return out
}

type fakeExec struct{}

func (fakeExec) LimitOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, timeoutSeconds int) (model.Fill, error) {
	return model.Fill{Status: model.FillStatusFilled, FilledQty: qty, AvgPrice: limitPrice}, nil
}

type fakeTradeRecorder struct{ calls int }

func (f *fakeTradeRecorder) RecordTrade(ctx context.Context, bot, symbol string, side model.Side, qty, price, fee decimal.Decimal, isMaker bool, equity decimal.Decimal) error {
	f.calls++
	return nil
}

type fakeSettings struct{}

func (fakeSettings) TradingPaused(ctx context.Context) bool { return false }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testDeps(botStore *fakeBotStore) BuildDeps {
	return BuildDeps{
		Data: &fakeData{bars: genBars(60)}, Exec: fakeExec{}, TradeStore: &fakeTradeRecorder{},
		Settings: fakeSettings{}, Clock: fixedClock{t: time.Unix(0, 0)},
		Symbols: []string{"BTC_USDT", "ETH_USDT"}, Timeframe: model.Timeframe1d,
		TotalCapital: decimal.NewFromInt(10000),
	}
}

func TestBuildFallsBackToDefaultGridWhenNoEvolvedStrategies(t *testing.T) {
	botStore := newFakeBotStore()
	p := New(botStore, nil)
	err := p.Build(context.Background(), testDeps(botStore))
	require.NoError(t, err)

	snap := p.Snapshot()
	require.NotEmpty(t, snap.Managers)

	total := 0
	for _, m := range snap.Managers {
		total += len(m.Workers)
	}
	require.Equal(t, 10, total) // 5 default-grid entries x 2 symbols
}

func TestBuildPromotesEvolvedStrategiesWhenPresent(t *testing.T) {
	botStore := newFakeBotStore()
	botStore.evolved = []model.EvolvedStrategy{
		{ID: 1, Symbol: "BTC_USDT", Timeframe: model.Timeframe1d, Score: 42, Generation: 3, Genome: model.StrategyGenome{
			Indicators: []model.IndicatorSpec{{Name: "sma_fast", Type: model.IndicatorSMA, Period: 10}},
			EntryLong:  model.RuleSet{Logic: model.LogicAND},
			ExitLong:   model.RuleSet{Logic: model.LogicAND},
		}},
	}
	p := New(botStore, nil)
	err := p.Build(context.Background(), testDeps(botStore))
	require.NoError(t, err)

	snap := p.Snapshot()
	require.Len(t, snap.Managers, 1)
	require.Equal(t, "Evolved", snap.Managers[0].Name)
	require.Len(t, snap.Managers[0].Workers, 1)
}

func TestStepAdvancesTicksAndPersistsSnapshots(t *testing.T) {
	botStore := newFakeBotStore()
	p := New(botStore, nil)
	require.NoError(t, p.Build(context.Background(), testDeps(botStore)))

	require.NoError(t, p.Step(context.Background()))
	require.Greater(t, botStore.upserts, 0)
}

func TestStepReweightsOnGatedTick(t *testing.T) {
	botStore := newFakeBotStore()
	p := New(botStore, nil)
	require.NoError(t, p.Build(context.Background(), testDeps(botStore)))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Step(context.Background()))
	}

	snap := p.Snapshot()
	totalAlloc := decimal.Zero
	for _, m := range snap.Managers {
		for _, w := range m.Workers {
			totalAlloc = totalAlloc.Add(w.Allocation)
		}
	}
	require.True(t, totalAlloc.GreaterThan(decimal.Zero))
}
