package strategy

import "fmt"

// Kind tags the evaluator variant a worker is running, per spec.md §9's
// redesign flag (a tagged variant instead of dynamic strategy classes).
type Kind string

const (
	KindMeanReversion Kind = "MeanReversion"
	KindBreakout      Kind = "Breakout"
	KindTrendFollow   Kind = "TrendFollow"
	KindGenome        Kind = "Genome"
)

// Params is the flat parameter set a parametric strategy is constructed
// from (grid search and the optimizer operate over this shape).
type Params map[string]float64

// NewParametric builds a MeanReversion, Breakout, or TrendFollow evaluator
// from a Kind and a flat parameter set. It returns an error for Genome
// (genomes are constructed via internal/strategy/genome.New) and for
// unknown kinds.
func NewParametric(kind Kind, p Params) (Evaluator, error) {
	confirmBars := intParam(p, "confirm_bars", 1)
	switch kind {
	case KindMeanReversion:
		return NewMeanReversion(intParam(p, "lookback", 20), p["band"], confirmBars), nil
	case KindBreakout:
		return NewBreakout(intParam(p, "lookback", 20), confirmBars), nil
	case KindTrendFollow:
		return NewTrendFollow(intParam(p, "fast", 12), intParam(p, "slow", 26), confirmBars), nil
	default:
		return nil, fmt.Errorf("strategy: unknown parametric kind %q", kind)
	}
}

func intParam(p Params, key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// DefaultGrid returns the hardcoded fallback grid of (kind, params) pairs
// used to seed a portfolio when no evolved strategies exist yet
// (spec.md §4.9 "Promotion").
func DefaultGrid() []struct {
	Kind   Kind
	Params Params
} {
	return []struct {
		Kind   Kind
		Params Params
	}{
		{KindMeanReversion, Params{"lookback": 20, "band": 2.0, "confirm_bars": 2}},
		{KindMeanReversion, Params{"lookback": 50, "band": 1.5, "confirm_bars": 2}},
		{KindBreakout, Params{"lookback": 20, "confirm_bars": 1}},
		{KindBreakout, Params{"lookback": 55, "confirm_bars": 1}},
		{KindTrendFollow, Params{"fast": 12, "slow": 26, "confirm_bars": 2}},
	}
}
