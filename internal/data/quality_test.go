package data

import (
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func cleanBars(n int) []model.Bar {
	out := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(100 + float64(i)*0.1)
		out[i] = model.Bar{Ts: int64(i * 3600), Open: c, High: c.Add(decimal.NewFromFloat(0.5)), Low: c.Sub(decimal.NewFromFloat(0.5)), Close: c, Volume: decimal.NewFromInt(100)}
	}
	return out
}

func TestValidateCleanSeriesScoresHighAndUsable(t *testing.T) {
	v := NewQualityValidator()
	report := v.Validate(cleanBars(50), "BTC_USDT")
	require.True(t, report.IsUsable)
	require.GreaterOrEqual(t, report.QualityScore, 70)
}

func TestValidateEmptySeriesIsUnusable(t *testing.T) {
	v := NewQualityValidator()
	report := v.Validate(nil, "BTC_USDT")
	require.False(t, report.IsUsable)
	require.Equal(t, 0, report.QualityScore)
}

func TestValidateFlagsOHLCInconsistency(t *testing.T) {
	v := NewQualityValidator()
	bars := cleanBars(10)
	bars[5].High = decimal.NewFromFloat(1) // lower than open/close — impossible
	report := v.Validate(bars, "BTC_USDT")

	found := false
	for _, issue := range report.Issues {
		if issue.Type == "OHLC_INCONSISTENT" {
			found = true
		}
	}
	require.True(t, found)
	require.False(t, report.IsUsable)
}

func TestValidateFlagsDuplicateAndOutOfOrderTimestamps(t *testing.T) {
	v := NewQualityValidator()
	bars := cleanBars(10)
	bars[3].Ts = bars[2].Ts // duplicate
	bars[7].Ts = bars[0].Ts // also forces out-of-order downstream

	report := v.Validate(bars, "BTC_USDT")
	types := map[string]bool{}
	for _, issue := range report.Issues {
		types[issue.Type] = true
	}
	require.True(t, types["DUPLICATE_TIMESTAMP"] || types["OUT_OF_ORDER"])
}

func TestValidateFlagsZeroAndNegativePrices(t *testing.T) {
	v := NewQualityValidator()
	bars := cleanBars(5)
	bars[2].Close = decimal.Zero
	bars[4].Open = decimal.NewFromFloat(-1)
	report := v.Validate(bars, "BTC_USDT")

	found, negFound := false, false
	for _, issue := range report.Issues {
		if issue.Type == "ZERO_PRICE" {
			found = true
		}
		if issue.Type == "NEGATIVE_PRICE" {
			negFound = true
		}
	}
	require.True(t, found)
	require.True(t, negFound)
}
