package genome

import (
	"math/rand"
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func bar(ts int64, c float64) model.Bar {
	d := decimal.NewFromFloat(c)
	return model.Bar{Ts: ts, Open: d, High: d, Low: d, Close: d}
}

func TestNewRejectsUnknownIndicatorType(t *testing.T) {
	g := model.StrategyGenome{
		Indicators: []model.IndicatorSpec{{Name: "x", Type: "WMA", Period: 10}},
	}
	_, err := New(g)
	require.Error(t, err)
}

func TestNewRejectsUnknownOperator(t *testing.T) {
	g := model.StrategyGenome{
		Indicators: []model.IndicatorSpec{{Name: "sma", Type: model.IndicatorSMA, Period: 3}},
		EntryLong: model.RuleSet{
			Conditions: []model.Condition{{Kind: model.ConditionIndicatorCompare, Left: "sma", Op: "!=", RightThreshold: 1}},
		},
	}
	_, err := New(g)
	require.Error(t, err)
}

func TestNewRejectsUndeclaredIndicatorReference(t *testing.T) {
	g := model.StrategyGenome{
		EntryLong: model.RuleSet{
			Conditions: []model.Condition{{Kind: model.ConditionIndicatorCompare, Left: "ghost", Op: model.OpGT, RightThreshold: 1}},
		},
	}
	_, err := New(g)
	require.Error(t, err)
}

func TestEvaluatorEntersOnCrossoverAndExitsOnReversal(t *testing.T) {
	seeds := Seed()
	ev, err := New(seeds[0]) // sma_fast(10) > sma_slow(30)
	require.NoError(t, err)

	var bars []model.Bar
	// flat prices for warm-up, then a rising tail so sma_fast overtakes sma_slow.
	for i := 0; i < 30; i++ {
		bars = append(bars, bar(int64(i), 100))
	}
	for i := 30; i < 45; i++ {
		bars = append(bars, bar(int64(i), 100+float64(i-29)*3))
	}

	var last float64
	for i := 31; i <= len(bars); i++ {
		v, err := ev.OnBar(bars[:i])
		require.NoError(t, err)
		last = v
	}
	require.Equal(t, 1.0, last)

	// then a sharp drop so sma_fast falls back under sma_slow.
	for i := 45; i < 65; i++ {
		bars = append(bars, bar(int64(i), 50))
	}
	for i := 46; i <= len(bars); i++ {
		v, err := ev.OnBar(bars[:i])
		require.NoError(t, err)
		last = v
	}
	require.Equal(t, 0.0, last)
}

func TestMutateProducesValidGenome(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := Seed()[0]
	for i := 0; i < 20; i++ {
		mutated := Mutate(base, rng)
		_, err := New(mutated)
		require.NoError(t, err)
		base = mutated
	}
}

func TestCrossoverCombinesParents(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	seeds := Seed()
	child := Crossover(seeds[0], seeds[1], rng)
	_, err := New(child)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(child.Indicators), len(seeds[0].Indicators))
}
