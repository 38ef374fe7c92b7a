package genome

import "github.com/dezgo/tradintel/internal/model"

// Seed returns a small starting population of hand-written genomes the
// evolver seeds generation zero with, mirroring the parametric DefaultGrid
// fallback (spec.md §4.9 "Promotion") but expressed as rule trees.
func Seed() []model.StrategyGenome {
	return []model.StrategyGenome{
		{
			Indicators: []model.IndicatorSpec{
				{Name: "sma_fast", Type: model.IndicatorSMA, Period: 10},
				{Name: "sma_slow", Type: model.IndicatorSMA, Period: 30},
			},
			EntryLong: model.RuleSet{
				Logic: model.LogicAND,
				Conditions: []model.Condition{
					{Kind: model.ConditionIndicatorCompare, Left: "sma_fast", Op: model.OpGT, RightName: "sma_slow"},
				},
			},
			ExitLong: model.RuleSet{
				Logic: model.LogicAND,
				Conditions: []model.Condition{
					{Kind: model.ConditionIndicatorCompare, Left: "sma_fast", Op: model.OpLT, RightName: "sma_slow"},
				},
			},
			ConfirmBars: 2,
		},
		{
			Indicators: []model.IndicatorSpec{
				{Name: "rsi", Type: model.IndicatorRSI, Period: 14},
			},
			EntryLong: model.RuleSet{
				Logic: model.LogicAND,
				Conditions: []model.Condition{
					{Kind: model.ConditionIndicatorCompare, Left: "rsi", Op: model.OpLT, RightThreshold: 30},
				},
			},
			ExitLong: model.RuleSet{
				Logic: model.LogicAND,
				Conditions: []model.Condition{
					{Kind: model.ConditionIndicatorCompare, Left: "rsi", Op: model.OpGT, RightThreshold: 60},
				},
			},
			ConfirmBars: 1,
		},
		{
			Indicators: []model.IndicatorSpec{
				{Name: "bb", Type: model.IndicatorBB, Period: 20, Mult: 2.0},
			},
			EntryLong: model.RuleSet{
				Logic: model.LogicAND,
				Conditions: []model.Condition{
					{Kind: model.ConditionPriceCompare, Left: "bb", Op: model.OpLT, RightName: "close"},
				},
			},
			ExitLong: model.RuleSet{
				Logic: model.LogicAND,
				Conditions: []model.Condition{
					{Kind: model.ConditionPriceCompare, Left: "bb", Op: model.OpGT, RightName: "close"},
				},
			},
			ConfirmBars: 2,
		},
	}
}
