package data

import (
	"fmt"
	"math"
	"sort"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// QualityValidator checks a fetched bar series for the defects that ruin
// a backtest silently: gaps, impossible OHLC, duplicate/out-of-order
// timestamps, and volume anomalies. It is a standalone validator:
// Cache.Coverage and GET /data/coverage do not call it.
type QualityValidator struct {
	MaxIntradayMove   float64 // e.g. 0.30 for crypto's wider daily range
	MaxGapMove        float64
	MinVolume         float64
	MaxVolumeMultiple float64
}

// NewQualityValidator returns crypto-appropriate defaults (24/7 trading,
// wider tolerances than equities).
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		MaxIntradayMove:   0.30,
		MaxGapMove:        0.20,
		MinVolume:         0,
		MaxVolumeMultiple: 20.0,
	}
}

// Issue is one data quality defect found in a bar series.
type Issue struct {
	Type     string
	Severity string // critical, high, medium, low
	BarIndex int
	Ts       int64
	Message  string
}

// Report summarizes a validation pass.
type Report struct {
	Symbol       string
	TotalBars    int
	Issues       []Issue
	QualityScore int // 0-100
	IsUsable     bool
}

// Validate runs every check and scores the result.
func (v *QualityValidator) Validate(bars []model.Bar, symbol string) Report {
	if len(bars) == 0 {
		return Report{Symbol: symbol, Issues: []Issue{{Type: "NO_DATA", Severity: "critical", Message: "no bars provided"}}}
	}

	var issues []Issue
	issues = append(issues, v.checkGaps(bars)...)
	issues = append(issues, v.checkPrices(bars)...)
	issues = append(issues, v.checkVolume(bars)...)
	issues = append(issues, v.checkOHLCConsistency(bars)...)
	issues = append(issues, v.checkDuplicatesAndOrder(bars)...)

	score := qualityScore(len(bars), issues)
	return Report{
		Symbol: symbol, TotalBars: len(bars), Issues: issues,
		QualityScore: score, IsUsable: score >= 70 && !hasCritical(issues),
	}
}

func (v *QualityValidator) checkGaps(bars []model.Bar) []Issue {
	if len(bars) < 2 {
		return nil
	}
	intervals := make([]int64, 0, 10)
	for i := 1; i < len(bars) && i <= 10; i++ {
		intervals = append(intervals, bars[i].Ts-bars[i-1].Ts)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	expected := intervals[len(intervals)/2]

	var issues []Issue
	for i := 1; i < len(bars); i++ {
		gap := bars[i].Ts - bars[i-1].Ts
		maxGap := expected + expected/2
		if maxGap > 0 && gap > maxGap*3 {
			severity := "high"
			if gap > maxGap*10 {
				severity = "critical"
			}
			issues = append(issues, Issue{
				Type: "GAP_DETECTED", Severity: severity, BarIndex: i - 1, Ts: bars[i-1].Ts,
				Message: fmt.Sprintf("gap of %ds (expected ~%ds)", gap, expected),
			})
		}
	}
	return issues
}

func (v *QualityValidator) checkPrices(bars []model.Bar) []Issue {
	var issues []Issue
	for i, bar := range bars {
		if bar.Open.IsZero() || bar.High.IsZero() || bar.Low.IsZero() || bar.Close.IsZero() {
			issues = append(issues, Issue{Type: "ZERO_PRICE", Severity: "critical", BarIndex: i, Ts: bar.Ts, Message: "zero price"})
			continue
		}
		if bar.Open.IsNegative() || bar.High.IsNegative() || bar.Low.IsNegative() || bar.Close.IsNegative() {
			issues = append(issues, Issue{Type: "NEGATIVE_PRICE", Severity: "critical", BarIndex: i, Ts: bar.Ts, Message: "negative price"})
			continue
		}
		if !bar.Low.IsZero() {
			if move, _ := bar.High.Sub(bar.Low).Div(bar.Low).Float64(); move > v.MaxIntradayMove {
				issues = append(issues, Issue{Type: "EXTREME_MOVE", Severity: "high", BarIndex: i, Ts: bar.Ts,
					Message: fmt.Sprintf("intraday move %.1f%%", move*100)})
			}
		}
		if i > 0 && !bars[i-1].Close.IsZero() {
			if move, _ := bar.Open.Sub(bars[i-1].Close).Div(bars[i-1].Close).Abs().Float64(); move > v.MaxGapMove {
				issues = append(issues, Issue{Type: "GAP_MOVE", Severity: "medium", BarIndex: i, Ts: bar.Ts,
					Message: fmt.Sprintf("gap move %.1f%%", move*100)})
			}
		}
	}
	return issues
}

func (v *QualityValidator) checkVolume(bars []model.Bar) []Issue {
	var total decimal.Decimal
	nonZero := 0
	for _, bar := range bars {
		if bar.Volume.IsPositive() {
			total = total.Add(bar.Volume)
			nonZero++
		}
	}
	var avg float64
	if nonZero > 0 {
		avg, _ = total.Div(decimal.NewFromInt(int64(nonZero))).Float64()
	}

	var issues []Issue
	for i, bar := range bars {
		vol, _ := bar.Volume.Float64()
		switch {
		case bar.Volume.IsZero():
			issues = append(issues, Issue{Type: "ZERO_VOLUME", Severity: "low", BarIndex: i, Ts: bar.Ts, Message: "zero volume bar"})
		case vol < v.MinVolume:
			issues = append(issues, Issue{Type: "LOW_VOLUME", Severity: "low", BarIndex: i, Ts: bar.Ts, Message: "volume below threshold"})
		case avg > 0 && vol > avg*v.MaxVolumeMultiple:
			issues = append(issues, Issue{Type: "VOLUME_SPIKE", Severity: "low", BarIndex: i, Ts: bar.Ts,
				Message: fmt.Sprintf("volume %.1fx average", vol/avg)})
		}
	}
	return issues
}

func (v *QualityValidator) checkOHLCConsistency(bars []model.Bar) []Issue {
	var issues []Issue
	for i, bar := range bars {
		if bar.High.LessThan(bar.Open) || bar.High.LessThan(bar.Close) || bar.High.LessThan(bar.Low) {
			issues = append(issues, Issue{Type: "OHLC_INCONSISTENT", Severity: "critical", BarIndex: i, Ts: bar.Ts, Message: "high is not the highest price"})
		}
		if bar.Low.GreaterThan(bar.Open) || bar.Low.GreaterThan(bar.Close) || bar.Low.GreaterThan(bar.High) {
			issues = append(issues, Issue{Type: "OHLC_INCONSISTENT", Severity: "critical", BarIndex: i, Ts: bar.Ts, Message: "low is not the lowest price"})
		}
	}
	return issues
}

func (v *QualityValidator) checkDuplicatesAndOrder(bars []model.Bar) []Issue {
	var issues []Issue
	seen := make(map[int64]bool, len(bars))
	for i, bar := range bars {
		if seen[bar.Ts] {
			issues = append(issues, Issue{Type: "DUPLICATE_TIMESTAMP", Severity: "high", BarIndex: i, Ts: bar.Ts, Message: "duplicate timestamp"})
		}
		seen[bar.Ts] = true
		if i > 0 && bar.Ts < bars[i-1].Ts {
			issues = append(issues, Issue{Type: "OUT_OF_ORDER", Severity: "critical", BarIndex: i, Ts: bar.Ts, Message: "bar out of chronological order"})
		}
	}
	return issues
}

func qualityScore(totalBars int, issues []Issue) int {
	penalty := 0.0
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			penalty += 10
		case "high":
			penalty += 5
		case "medium":
			penalty += 2
		case "low":
			penalty += 0.5
		}
	}
	normalized := penalty / math.Max(1, float64(totalBars)/100) * 10
	score := 100 - math.Min(normalized, 100)
	return int(math.Max(0, math.Min(100, score)))
}

func hasCritical(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}
