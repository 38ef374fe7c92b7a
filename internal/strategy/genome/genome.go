// Package genome parses a declarative StrategyGenome into a small typed
// AST at construction (rejecting unknown indicator/operator tags eagerly,
// per spec.md §9's redesign flag) and evaluates it per bar into a target
// exposure, sharing the confirmation semantics of the parametric
// strategies.
package genome

import (
	"fmt"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/strategy/indicator"
)

// compiledIndicator is a validated, typed indicator computation.
type compiledIndicator struct {
	spec model.IndicatorSpec
}

func (ci compiledIndicator) eval(bars []model.Bar) (float64, bool) {
	switch ci.spec.Type {
	case model.IndicatorSMA:
		return indicator.SMA(bars, ci.spec.Period)
	case model.IndicatorEMA:
		return indicator.EMA(bars, ci.spec.Period)
	case model.IndicatorRSI:
		return indicator.RSI(bars, ci.spec.Period)
	case model.IndicatorBB:
		mid, _, _, ok := indicator.BollingerBands(bars, ci.spec.Period, ci.spec.Mult)
		return mid, ok
	case model.IndicatorATR:
		return indicator.ATR(bars, ci.spec.Period)
	default:
		return 0, false
	}
}

// compiledCondition is a validated condition ready to evaluate against a
// bar buffer and a map of computed indicator values.
type compiledCondition struct {
	cond  model.Condition
	right *compiledIndicator // set when the right operand names an indicator
}

// Evaluator is a parsed, validated StrategyGenome ready to run per bar.
type Evaluator struct {
	genome      model.StrategyGenome
	indicators  map[string]compiledIndicator
	entryLong   []compiledCondition
	entryLogic  model.Logic
	exitLong    []compiledCondition
	exitLogic   model.Logic
	confirmBars int

	// state
	pending float64
	streak  int
	emitted float64
}

// New parses and validates g, returning an error for unknown indicator or
// operator tags, or a condition referencing an undeclared indicator name.
func New(g model.StrategyGenome) (*Evaluator, error) {
	indicators := make(map[string]compiledIndicator, len(g.Indicators))
	for _, spec := range g.Indicators {
		switch spec.Type {
		case model.IndicatorSMA, model.IndicatorEMA, model.IndicatorRSI, model.IndicatorBB, model.IndicatorATR:
		default:
			return nil, fmt.Errorf("genome: unknown indicator type %q", spec.Type)
		}
		if spec.Period <= 0 {
			return nil, fmt.Errorf("genome: indicator %q has non-positive period", spec.Name)
		}
		indicators[spec.Name] = compiledIndicator{spec: spec}
	}

	entryLong, err := compileRuleSet(g.EntryLong, indicators)
	if err != nil {
		return nil, fmt.Errorf("genome: entry_long: %w", err)
	}
	exitLong, err := compileRuleSet(g.ExitLong, indicators)
	if err != nil {
		return nil, fmt.Errorf("genome: exit_long: %w", err)
	}

	confirmBars := g.ConfirmBars
	if confirmBars < 1 {
		confirmBars = 1
	}

	return &Evaluator{
		genome:      g.Clone(),
		indicators:  indicators,
		entryLong:   entryLong,
		entryLogic:  g.EntryLong.Logic,
		exitLong:    exitLong,
		exitLogic:   g.ExitLong.Logic,
		confirmBars: confirmBars,
	}, nil
}

func compileRuleSet(rs model.RuleSet, indicators map[string]compiledIndicator) ([]compiledCondition, error) {
	if rs.Logic != "" && rs.Logic != model.LogicAND && rs.Logic != model.LogicOR {
		return nil, fmt.Errorf("unknown logic %q", rs.Logic)
	}
	out := make([]compiledCondition, 0, len(rs.Conditions))
	for _, c := range rs.Conditions {
		switch c.Op {
		case model.OpLT, model.OpLE, model.OpGT, model.OpGE, model.OpEQ:
		default:
			return nil, fmt.Errorf("unknown operator %q", c.Op)
		}
		if c.Kind != model.ConditionIndicatorCompare && c.Kind != model.ConditionPriceCompare {
			return nil, fmt.Errorf("unknown condition kind %q", c.Kind)
		}
		if _, ok := indicators[c.Left]; !ok {
			return nil, fmt.Errorf("condition references undeclared indicator %q", c.Left)
		}
		cc := compiledCondition{cond: c}
		if c.RightName != "" {
			if ind, ok := indicators[c.RightName]; ok {
				cc.right = &ind
			} else if !isPriceLiteral(c.RightName) {
				return nil, fmt.Errorf("condition references undeclared operand %q", c.RightName)
			}
		}
		out = append(out, cc)
	}
	return out, nil
}

func isPriceLiteral(name string) bool {
	return name == "close" || name == "high" || name == "low"
}

// OnBar implements strategy.Evaluator: evaluate entry_long first (→ +1 on
// true), then exit_long (→ 0 on true), else hold the previous signal.
// Missing indicator values (insufficient warm-up) evaluate false.
func (e *Evaluator) OnBar(bars []model.Bar) (float64, error) {
	values := make(map[string]float64, len(e.indicators))
	for name, ci := range e.indicators {
		if v, ok := ci.eval(bars); ok {
			values[name] = v
		}
	}

	last := bars[len(bars)-1]
	raw := e.pending
	switch {
	case evalRuleSet(e.entryLong, e.entryLogic, values, last):
		raw = 1
	case evalRuleSet(e.exitLong, e.exitLogic, values, last):
		raw = 0
	}

	if raw != e.pending {
		e.pending = raw
		e.streak = 1
	} else {
		e.streak++
	}
	if e.streak >= e.confirmBars {
		e.emitted = e.pending
	}
	return e.emitted, nil
}

func evalRuleSet(conds []compiledCondition, logic model.Logic, values map[string]float64, last model.Bar) bool {
	if len(conds) == 0 {
		return false
	}
	if logic == "" {
		logic = model.LogicAND
	}
	for _, cc := range conds {
		ok := evalCondition(cc, values, last)
		if logic == model.LogicAND && !ok {
			return false
		}
		if logic == model.LogicOR && ok {
			return true
		}
	}
	return logic == model.LogicAND
}

func evalCondition(cc compiledCondition, values map[string]float64, last model.Bar) bool {
	left, ok := values[cc.cond.Left]
	if !ok {
		return false // warm-up violation: condition evaluates false
	}

	var right float64
	switch {
	case cc.right != nil:
		v, ok := values[cc.cond.RightName]
		if !ok {
			return false
		}
		right = v
	case cc.cond.RightName == "close":
		right, _ = last.Close.Float64()
	case cc.cond.RightName == "high":
		right, _ = last.High.Float64()
	case cc.cond.RightName == "low":
		right, _ = last.Low.Float64()
	default:
		right = cc.cond.RightThreshold
	}

	switch cc.cond.Op {
	case model.OpLT:
		return left < right
	case model.OpLE:
		return left <= right
	case model.OpGT:
		return left > right
	case model.OpGE:
		return left >= right
	case model.OpEQ:
		return left == right
	default:
		return false
	}
}

// Genome returns the validated genome this evaluator was built from.
func (e *Evaluator) Genome() model.StrategyGenome { return e.genome }
