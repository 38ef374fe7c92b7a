package strategy

import (
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func bar(ts int64, o, h, l, c float64) model.Bar {
	return model.Bar{
		Ts:    ts,
		Open:  decimal.NewFromFloat(o),
		High:  decimal.NewFromFloat(h),
		Low:   decimal.NewFromFloat(l),
		Close: decimal.NewFromFloat(c),
	}
}

func TestMeanReversionSignalsOnDeviation(t *testing.T) {
	s := NewMeanReversion(5, 1.0, 1)
	var bars []model.Bar
	for i := 0; i < 5; i++ {
		bars = append(bars, bar(int64(i), 100, 101, 99, 100))
	}
	// Sharp drop below the band should signal a buy (+1).
	bars = append(bars, bar(5, 100, 100, 80, 80))
	bars = bars[1:] // keep a 5-bar window matching lookback
	exp, err := s.OnBar(bars)
	require.NoError(t, err)
	require.Equal(t, 1.0, exp)
}

func TestBreakoutSignalsOnNewHigh(t *testing.T) {
	s := NewBreakout(3, 1)
	bars := []model.Bar{
		bar(0, 100, 101, 99, 100),
		bar(1, 100, 102, 99, 101),
		bar(2, 100, 103, 99, 102),
		bar(3, 102, 110, 101, 110),
	}
	exp, err := s.OnBar(bars)
	require.NoError(t, err)
	require.Equal(t, 1.0, exp)
}

func TestTrendFollowSignFollowsCrossover(t *testing.T) {
	s := NewTrendFollow(2, 4, 1)
	var bars []model.Bar
	prices := []float64{10, 10, 10, 10, 20, 20}
	for i, p := range prices {
		bars = append(bars, bar(int64(i), p, p, p, p))
	}
	exp, err := s.OnBar(bars)
	require.NoError(t, err)
	require.Equal(t, 1.0, exp)
}

func TestConfirmGateRequiresRepeatedSignal(t *testing.T) {
	g := newConfirmGate(3)
	require.Equal(t, 0.0, g.apply(1))
	require.Equal(t, 0.0, g.apply(1))
	require.Equal(t, 1.0, g.apply(1))
	// disagreement resets the streak
	require.Equal(t, 1.0, g.apply(-1))
	require.Equal(t, 1.0, g.apply(-1))
	require.Equal(t, -1.0, g.apply(-1))
}
