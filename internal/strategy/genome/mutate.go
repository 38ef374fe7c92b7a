package genome

import (
	"math/rand"

	"github.com/dezgo/tradintel/internal/model"
)

// indicatorTypes lists the mutable indicator kinds a mutation may introduce.
var indicatorTypes = []model.IndicatorType{
	model.IndicatorSMA, model.IndicatorEMA, model.IndicatorRSI, model.IndicatorBB, model.IndicatorATR,
}

var compareOps = []model.CompareOp{model.OpLT, model.OpLE, model.OpGT, model.OpGE, model.OpEQ}

// Mutate returns a mutated deep copy of g. rng drives every random choice so
// callers (the evolver) can seed determinism into a run. Exactly one
// mutation kind is applied per call, matching the teacher's single-point
// mutation style for genetic parameter search.
func Mutate(g model.StrategyGenome, rng *rand.Rand) model.StrategyGenome {
	out := g.Clone()

	switch rng.Intn(6) {
	case 0:
		mutateAddIndicator(&out, rng)
	case 1:
		mutateRemoveIndicator(&out, rng)
	case 2:
		mutatePeriod(&out, rng)
	case 3:
		mutateThreshold(&out, rng)
	case 4:
		mutateLogic(&out, rng)
	case 5:
		mutateConfirmBars(&out, rng)
	}
	return out
}

func mutateAddIndicator(g *model.StrategyGenome, rng *rand.Rand) {
	name := randIndicatorName(rng)
	typ := indicatorTypes[rng.Intn(len(indicatorTypes))]
	spec := model.IndicatorSpec{
		Name:   name,
		Type:   typ,
		Period: 5 + rng.Intn(50),
	}
	if typ == model.IndicatorBB {
		spec.Mult = 1.0 + rng.Float64()*2.0
	}
	g.Indicators = append(g.Indicators, spec)
}

func mutateRemoveIndicator(g *model.StrategyGenome, rng *rand.Rand) {
	if len(g.Indicators) <= 1 {
		return
	}
	i := rng.Intn(len(g.Indicators))
	removed := g.Indicators[i].Name
	g.Indicators = append(g.Indicators[:i:i], g.Indicators[i+1:]...)
	// drop any condition that referenced the removed indicator so the
	// genome stays constructible.
	g.EntryLong.Conditions = dropConditionsReferencing(g.EntryLong.Conditions, removed)
	g.ExitLong.Conditions = dropConditionsReferencing(g.ExitLong.Conditions, removed)
}

func dropConditionsReferencing(conds []model.Condition, name string) []model.Condition {
	out := conds[:0:0]
	for _, c := range conds {
		if c.Left == name || c.RightName == name {
			continue
		}
		out = append(out, c)
	}
	return out
}

func mutatePeriod(g *model.StrategyGenome, rng *rand.Rand) {
	if len(g.Indicators) == 0 {
		return
	}
	i := rng.Intn(len(g.Indicators))
	delta := rng.Intn(11) - 5 // [-5, 5]
	g.Indicators[i].Period += delta
	if g.Indicators[i].Period < 2 {
		g.Indicators[i].Period = 2
	}
}

func mutateThreshold(g *model.StrategyGenome, rng *rand.Rand) {
	rs := pickRuleSet(g, rng)
	if len(rs.Conditions) == 0 {
		return
	}
	i := rng.Intn(len(rs.Conditions))
	if rs.Conditions[i].RightName != "" {
		return // operand is a name, not a literal threshold
	}
	rs.Conditions[i].RightThreshold *= 0.8 + rng.Float64()*0.4 // +/-20%
}

func mutateLogic(g *model.StrategyGenome, rng *rand.Rand) {
	rs := pickRuleSet(g, rng)
	if rs.Logic == model.LogicAND {
		rs.Logic = model.LogicOR
	} else {
		rs.Logic = model.LogicAND
	}
}

func mutateConfirmBars(g *model.StrategyGenome, rng *rand.Rand) {
	delta := rng.Intn(3) - 1 // [-1, 1]
	g.ConfirmBars += delta
	if g.ConfirmBars < 1 {
		g.ConfirmBars = 1
	}
}

func pickRuleSet(g *model.StrategyGenome, rng *rand.Rand) *model.RuleSet {
	if rng.Intn(2) == 0 {
		return &g.EntryLong
	}
	return &g.ExitLong
}

func randIndicatorName(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 6)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return "ind_" + string(b)
}

// Crossover combines two parent genomes into a child: indicators are drawn
// from both parents (deduped by name, a-wins on collision), entry_long comes
// from a, exit_long from b, and confirm_bars averages the two parents.
func Crossover(a, b model.StrategyGenome, rng *rand.Rand) model.StrategyGenome {
	seen := make(map[string]bool, len(a.Indicators)+len(b.Indicators))
	var indicators []model.IndicatorSpec
	for _, ind := range a.Indicators {
		if !seen[ind.Name] {
			seen[ind.Name] = true
			indicators = append(indicators, ind)
		}
	}
	for _, ind := range b.Indicators {
		if !seen[ind.Name] {
			seen[ind.Name] = true
			indicators = append(indicators, ind)
		}
	}

	child := model.StrategyGenome{
		Indicators:  indicators,
		EntryLong:   cloneRuleSetExported(a.EntryLong),
		ExitLong:    cloneRuleSetExported(b.ExitLong),
		ConfirmBars: (a.ConfirmBars + b.ConfirmBars) / 2,
	}
	if child.ConfirmBars < 1 {
		child.ConfirmBars = 1
	}
	return child.Clone()
}

func cloneRuleSetExported(rs model.RuleSet) model.RuleSet {
	out := model.RuleSet{Logic: rs.Logic, Conditions: make([]model.Condition, len(rs.Conditions))}
	copy(out.Conditions, rs.Conditions)
	return out
}
