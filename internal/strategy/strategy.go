// Package strategy provides the parametric strategy evaluators
// (MeanReversion, Breakout, TrendFollow) and the shared confirmation gate
// spec.md §4.3 requires of every evaluator.
package strategy

import (
	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/strategy/indicator"
)

// Evaluator is the contract every strategy variant implements: given the
// buffered bars (oldest to newest), produce a target exposure in [-1, +1].
// Evaluators own their rolling state.
type Evaluator interface {
	OnBar(bars []model.Bar) (float64, error)
}

// confirmGate requires a raw signal to repeat for confirmBars consecutive
// bars before it is emitted; any disagreement resets the counter. This is
// shared by every parametric strategy; the genome evaluator applies the
// same rule with its own counter.
type confirmGate struct {
	confirmBars int
	pending     float64
	streak      int
	emitted     float64
}

func newConfirmGate(confirmBars int) confirmGate {
	if confirmBars < 1 {
		confirmBars = 1
	}
	return confirmGate{confirmBars: confirmBars}
}

// apply feeds one bar's raw signal (-1, 0, or +1) and returns the
// confirmed exposure to emit this bar.
func (g *confirmGate) apply(raw float64) float64 {
	if raw != g.pending {
		g.pending = raw
		g.streak = 1
	} else {
		g.streak++
	}
	if g.streak >= g.confirmBars {
		g.emitted = g.pending
	}
	return g.emitted
}

// MeanReversion computes an SMA over `lookback` closes and the mean
// absolute deviation from it; crossing band*dev away from the mean
// signals reversion back toward it (spec.md §4.3).
type MeanReversion struct {
	Lookback int
	Band     float64
	gate     confirmGate
}

// NewMeanReversion constructs a MeanReversion evaluator.
func NewMeanReversion(lookback int, band float64, confirmBars int) *MeanReversion {
	return &MeanReversion{Lookback: lookback, Band: band, gate: newConfirmGate(confirmBars)}
}

func (s *MeanReversion) OnBar(bars []model.Bar) (float64, error) {
	sma, ok := indicator.SMA(bars, s.Lookback)
	if !ok {
		return 0, nil
	}
	dev, ok := indicator.MeanAbsDeviation(bars, s.Lookback, sma)
	if !ok {
		return 0, nil
	}
	last, _ := bars[len(bars)-1].Close.Float64()

	raw := 0.0
	switch {
	case last < sma-s.Band*dev:
		raw = 1
	case last > sma+s.Band*dev:
		raw = -1
	}
	return s.gate.apply(raw), nil
}

// Breakout signals +1 when the close reaches a new high over `lookback`
// bars, -1 on a new low (spec.md §4.3).
type Breakout struct {
	Lookback int
	gate     confirmGate
}

// NewBreakout constructs a Breakout evaluator.
func NewBreakout(lookback, confirmBars int) *Breakout {
	return &Breakout{Lookback: lookback, gate: newConfirmGate(confirmBars)}
}

func (s *Breakout) OnBar(bars []model.Bar) (float64, error) {
	highest, ok := indicator.HighestHigh(bars, s.Lookback)
	if !ok {
		return 0, nil
	}
	lowest, ok := indicator.LowestLow(bars, s.Lookback)
	if !ok {
		return 0, nil
	}
	last, _ := bars[len(bars)-1].Close.Float64()

	raw := 0.0
	switch {
	case last >= highest:
		raw = 1
	case last <= lowest:
		raw = -1
	}
	return s.gate.apply(raw), nil
}

// TrendFollow signals the sign of SMA_fast - SMA_slow (spec.md §4.3).
type TrendFollow struct {
	Fast int
	Slow int
	gate confirmGate
}

// NewTrendFollow constructs a TrendFollow evaluator.
func NewTrendFollow(fast, slow, confirmBars int) *TrendFollow {
	return &TrendFollow{Fast: fast, Slow: slow, gate: newConfirmGate(confirmBars)}
}

func (s *TrendFollow) OnBar(bars []model.Bar) (float64, error) {
	fastSMA, ok := indicator.SMA(bars, s.Fast)
	if !ok {
		return 0, nil
	}
	slowSMA, ok := indicator.SMA(bars, s.Slow)
	if !ok {
		return 0, nil
	}

	raw := 0.0
	switch {
	case fastSMA > slowSMA:
		raw = 1
	case fastSMA < slowSMA:
		raw = -1
	}
	return s.gate.apply(raw), nil
}
