package model

// IndicatorType enumerates the indicator kinds a genome may declare.
type IndicatorType string

const (
	IndicatorSMA IndicatorType = "SMA"
	IndicatorEMA IndicatorType = "EMA"
	IndicatorRSI IndicatorType = "RSI"
	IndicatorBB  IndicatorType = "BB"
	IndicatorATR IndicatorType = "ATR"
)

// IndicatorSpec declares one indicator computed over the bar buffer.
type IndicatorSpec struct {
	Name   string        `yaml:"name" json:"name"`
	Type   IndicatorType `yaml:"type" json:"type"`
	Period int           `yaml:"period" json:"period"`
	// Mult is used by BB (band multiplier on std-dev); ignored otherwise.
	Mult float64 `yaml:"mult,omitempty" json:"mult,omitempty"`
}

// CompareOp is a comparison operator used in a condition.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpEQ CompareOp = "="
)

// Logic combines conditions within a rule set.
type Logic string

const (
	LogicAND Logic = "AND"
	LogicOR  Logic = "OR"
)

// ConditionKind distinguishes indicator-vs-indicator/price comparisons.
type ConditionKind string

const (
	ConditionIndicatorCompare ConditionKind = "indicator_compare"
	ConditionPriceCompare     ConditionKind = "price_compare"
)

// Condition compares a left operand against a right operand. Operands are
// either indicator names, the literals close|high|low, or numeric
// thresholds (Right is used when RightIsLiteral is false and RightName is
// empty).
type Condition struct {
	Kind           ConditionKind `yaml:"kind" json:"kind"`
	Left           string        `yaml:"left" json:"left"`
	Op             CompareOp     `yaml:"op" json:"op"`
	RightName      string        `yaml:"right_name,omitempty" json:"right_name,omitempty"`
	RightThreshold float64       `yaml:"right_threshold,omitempty" json:"right_threshold,omitempty"`
}

// RuleSet is a set of conditions combined with AND/OR logic.
type RuleSet struct {
	Conditions []Condition `yaml:"conditions" json:"conditions"`
	Logic      Logic       `yaml:"logic" json:"logic"`
}

// StrategyGenome is the declarative rule tree a GenomeStrategy evaluates.
type StrategyGenome struct {
	Indicators  []IndicatorSpec `yaml:"indicators" json:"indicators"`
	EntryLong   RuleSet         `yaml:"entry_long" json:"entry_long"`
	ExitLong    RuleSet         `yaml:"exit_long" json:"exit_long"`
	ConfirmBars int             `yaml:"confirm_bars" json:"confirm_bars"`
}

// Clone returns a deep copy, so mutation/crossover never alias a parent.
func (g StrategyGenome) Clone() StrategyGenome {
	out := g
	out.Indicators = make([]IndicatorSpec, len(g.Indicators))
	copy(out.Indicators, g.Indicators)
	out.EntryLong = cloneRuleSet(g.EntryLong)
	out.ExitLong = cloneRuleSet(g.ExitLong)
	return out
}

func cloneRuleSet(rs RuleSet) RuleSet {
	out := RuleSet{Logic: rs.Logic, Conditions: make([]Condition, len(rs.Conditions))}
	copy(out.Conditions, rs.Conditions)
	return out
}

// OptimizationResult is a ranked grid-search candidate, keyed for dedup on
// (Strategy, Symbol, Timeframe, Params).
type OptimizationResult struct {
	ID        int64
	Strategy  string
	Symbol    string
	Timeframe Timeframe
	Params    map[string]float64
	Score     float64
	Metrics   BacktestMetrics
	CreatedTs int64
}

// EvolvedStrategy is a ranked genome candidate from the evolver.
type EvolvedStrategy struct {
	ID         int64
	Symbol     string
	Timeframe  Timeframe
	Genome     StrategyGenome
	Score      float64
	Generation int
	Metrics    BacktestMetrics
	CreatedTs  int64
}

// BacktestMetrics holds the outputs of a backtest run (spec.md §4.7).
type BacktestMetrics struct {
	TotalReturnPct     float64
	Sharpe             float64
	MaxDrawdownPct     float64
	WinRate            float64
	ProfitFactor       float64
	TradeCount         int
	RoundTripCount     int
	AvgWin             float64
	AvgLoss            float64
	MaxConsecutiveLoss int
}
