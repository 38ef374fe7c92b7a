package worker

import (
	"context"
	"testing"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeData struct{ bars []model.Bar }

func (f *fakeData) History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	return f.bars, nil
}

type fakeExec struct {
	calls int
	fill  model.Fill
}

func (f *fakeExec) LimitOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, timeoutSeconds int) (model.Fill, error) {
	f.calls++
	fill := f.fill
	fill.FilledQty = qty
	fill.AvgPrice = limitPrice
	return fill, nil
}

type fakeStore struct{ trades int }

func (f *fakeStore) RecordTrade(ctx context.Context, bot, symbol string, side model.Side, qty, price, fee decimal.Decimal, isMaker bool, equity decimal.Decimal) error {
	f.trades++
	return nil
}

type fakeSettings struct{ paused bool }

func (f *fakeSettings) TradingPaused(ctx context.Context) bool { return f.paused }

type fixedStrategy struct{ exp float64 }

func (s fixedStrategy) OnBar(bars []model.Bar) (float64, error) { return s.exp, nil }

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

func barAt(ts int64, close float64) model.Bar {
	d := decimal.NewFromFloat(close)
	return model.Bar{Ts: ts, Open: d, High: d, Low: d, Close: d, Volume: decimal.Zero}
}

func newTestWorker(t *testing.T, exp float64) (*Worker, *fakeData, *fakeExec, *fakeStore, *fakeSettings) {
	data := &fakeData{bars: []model.Bar{barAt(100, 50000)}}
	exec := &fakeExec{fill: model.Fill{Status: model.FillStatusFilled, Fee: decimal.Zero, IsMaker: true}}
	store := &fakeStore{}
	settings := &fakeSettings{}
	w := New(Config{
		Name:      "bot_1",
		Symbol:    "BTC_USDT",
		Timeframe: model.Timeframe1h,
		Strategy:  fixedStrategy{exp: exp},
		Data:      data,
		Exec:      exec,
		Store:     store,
		Settings:  settings,
		Clock:     fakeClock{t: time.Unix(1000, 0)},
	}, decimal.NewFromInt(10000))
	return w, data, exec, store, settings
}

func TestStepSkipsOnSameBar(t *testing.T) {
	w, _, exec, _, _ := newTestWorker(t, 1.0)
	require.NoError(t, w.Step(context.Background()))
	require.NoError(t, w.Step(context.Background())) // same bar again
	require.Equal(t, 1, exec.calls)
}

func TestStepSkipsBelowMinNotional(t *testing.T) {
	w, data, exec, _, _ := newTestWorker(t, 0.0001) // tiny target exposure
	require.NoError(t, w.Step(context.Background()))
	require.Equal(t, 0, exec.calls)
	_ = data
}

func TestStepPlacesBuyAndUpdatesPosition(t *testing.T) {
	w, _, exec, store, _ := newTestWorker(t, 1.0)
	require.NoError(t, w.Step(context.Background()))
	require.Equal(t, 1, exec.calls)
	require.Equal(t, 1, store.trades)
	require.True(t, w.PosQty().IsPositive())
}

func TestStepRespectsCooldown(t *testing.T) {
	data := &fakeData{bars: []model.Bar{barAt(100, 50000)}}
	exec := &fakeExec{fill: model.Fill{Status: model.FillStatusFilled, Fee: decimal.Zero, IsMaker: true}}
	store := &fakeStore{}
	settings := &fakeSettings{}
	clock := &mutableClock{t: time.Unix(1000, 0)}
	w := New(Config{
		Name: "bot_1", Symbol: "BTC_USDT", Timeframe: model.Timeframe1h,
		Strategy: fixedStrategy{exp: 1.0}, Data: data, Exec: exec, Store: store, Settings: settings, Clock: clock,
	}, decimal.NewFromInt(10000))

	require.NoError(t, w.Step(context.Background()))
	require.Equal(t, 1, exec.calls)

	// advance to the next bar but within cooldown window; a flat target
	// makes the sell large enough to clear min-notional, so only the
	// cooldown gate can block it.
	data.bars = append(data.bars, barAt(101, 50100))
	clock.t = clock.t.Add(10 * time.Second)
	w.SetStrategy(fixedStrategy{exp: 0.0})
	require.NoError(t, w.Step(context.Background()))
	require.Equal(t, 1, exec.calls, "cooldown should block a second trade")
	require.Equal(t, model.DecisionSkipCooldown, w.Decisions()[0].Kind)
}

func TestStepRespectsTradingPaused(t *testing.T) {
	w, _, exec, _, settings := newTestWorker(t, 1.0)
	settings.paused = true
	require.NoError(t, w.Step(context.Background()))
	require.Equal(t, 0, exec.calls)
}

func TestStepClipsBuyToAvailableCash(t *testing.T) {
	data := &fakeData{bars: []model.Bar{barAt(100, 50000)}}
	exec := &fakeExec{fill: model.Fill{Status: model.FillStatusFilled, Fee: decimal.Zero, IsMaker: true}}
	store := &fakeStore{}
	settings := &fakeSettings{}
	w := New(Config{
		Name: "bot_1", Symbol: "BTC_USDT", Timeframe: model.Timeframe1h,
		Strategy: fixedStrategy{exp: 1.5}, Data: data, Exec: exec, Store: store, Settings: settings,
		Clock: fakeClock{t: time.Unix(1000, 0)},
	}, decimal.NewFromInt(100)) // tiny allocation vs a 50000 price bar; 150% exposure costs more than the cash
	require.NoError(t, w.Step(context.Background()))
	require.Equal(t, 1, exec.calls)
	require.True(t, w.PosQty().GreaterThan(decimal.Zero))
	require.True(t, w.PosQty().Equal(decimal.NewFromFloat(0.002)), "buy clipped to cash/price = 100/50000")
}

type mutableClock struct{ t time.Time }

func (c *mutableClock) Now() time.Time { return c.t }
