package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPaperExecMarketOrderChargesTakerFee(t *testing.T) {
	p := NewPaperExec(1)
	fill, err := p.MarketOrder(context.Background(), "BTC_USDT", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(50000))
	require.NoError(t, err)
	require.Equal(t, model.FillStatusFilled, fill.Status)
	require.False(t, fill.IsMaker)
	require.True(t, fill.Fee.Equal(decimal.NewFromInt(50)))
}

func TestPaperExecLimitOrderClassifiesMakerOrTaker(t *testing.T) {
	p := NewPaperExec(42)
	sawMaker, sawTaker := false, false
	for i := 0; i < 200; i++ {
		fill, err := p.LimitOrder(context.Background(), "BTC_USDT", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(100), 10)
		require.NoError(t, err)
		if fill.IsMaker {
			sawMaker = true
			require.True(t, fill.Fee.IsZero())
		} else {
			sawTaker = true
			require.False(t, fill.Fee.IsZero())
		}
	}
	require.True(t, sawMaker)
	require.True(t, sawTaker)
}

type fakeTransport struct {
	placeErr  error
	statusSeq []model.FillStatus
	callIdx   int
	filledQty decimal.Decimal
	avgPrice  decimal.Decimal
}

func (f *fakeTransport) PlaceOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return "order-1", nil
}

func (f *fakeTransport) OrderStatus(ctx context.Context, symbol, orderID string) (model.FillStatus, decimal.Decimal, decimal.Decimal, decimal.Decimal, bool, error) {
	status := f.statusSeq[f.callIdx]
	if f.callIdx < len(f.statusSeq)-1 {
		f.callIdx++
	}
	if status == model.FillStatusFilled {
		return status, f.filledQty, f.avgPrice, decimal.Zero, true, nil
	}
	return status, decimal.Zero, decimal.Zero, decimal.Zero, false, nil
}

func (f *fakeTransport) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func TestBinanceTestnetExecFillsOnStatusPoll(t *testing.T) {
	tr := &fakeTransport{
		statusSeq: []model.FillStatus{model.FillStatusFilled},
		filledQty: decimal.NewFromInt(1),
		avgPrice:  decimal.NewFromInt(50000),
	}
	e := NewBinanceTestnetExec(tr, DefaultLotTable(), 100, 10, nil)
	e.pollEvery = 1
	fill, err := e.LimitOrder(context.Background(), "BTC_USDT", model.SideBuy, decimal.NewFromFloat(1.000003), decimal.NewFromInt(50000), 5)
	require.NoError(t, err)
	require.Equal(t, model.FillStatusFilled, fill.Status)
}

func TestBinanceTestnetExecFallsBackToPaperOnPlaceOrderFailure(t *testing.T) {
	tr := &fakeTransport{placeErr: errors.New("network unreachable")}
	e := NewBinanceTestnetExec(tr, DefaultLotTable(), 100, 10, nil)
	fill, err := e.LimitOrder(context.Background(), "BTC_USDT", model.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(50000), 5)
	require.NoError(t, err)
	require.Equal(t, model.FillStatusFilled, fill.Status) // paper fallback always fills
}

func TestLotRoundingAppliesStepSizes(t *testing.T) {
	tr := &fakeTransport{statusSeq: []model.FillStatus{model.FillStatusFilled}, filledQty: decimal.NewFromInt(1), avgPrice: decimal.NewFromInt(1)}
	e := NewBinanceTestnetExec(tr, DefaultLotTable(), 100, 10, nil)
	qty, price := e.roundToLot("SOL_USDT", decimal.NewFromFloat(1.2346), decimal.NewFromFloat(20.12345))
	require.True(t, qty.Equal(decimal.NewFromFloat(1.23)))
	require.True(t, price.Equal(decimal.NewFromFloat(20.123)))
}
