// Package indicator provides stateless rolling-window indicator math over
// a bar buffer, shared by the parametric strategies and the genome
// evaluator so both address the same computations by name.
package indicator

import (
	"math"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// SMA returns the simple moving average of the last `period` closes, and
// ok=false if there are not enough bars (warm-up).
func SMA(bars []model.Bar, period int) (value float64, ok bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += f(bars[i].Close)
	}
	return sum / float64(period), true
}

// MeanAbsDeviation returns mean(|close - mean|) over the last `period` bars
// around the supplied mean (used by MeanReversion's band width).
func MeanAbsDeviation(bars []model.Bar, period int, mean float64) (value float64, ok bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += math.Abs(f(bars[i].Close) - mean)
	}
	return sum / float64(period), true
}

// StdDev returns the population standard deviation of the last `period`
// closes around the supplied mean.
func StdDev(bars []model.Bar, period int, mean float64) (value float64, ok bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	sumSq := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		d := f(bars[i].Close) - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(period)), true
}

// HighestHigh returns max(high) over the last `period` bars.
func HighestHigh(bars []model.Bar, period int) (value float64, ok bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	max := f(bars[len(bars)-period].High)
	for i := len(bars) - period + 1; i < len(bars); i++ {
		if h := f(bars[i].High); h > max {
			max = h
		}
	}
	return max, true
}

// LowestLow returns min(low) over the last `period` bars.
func LowestLow(bars []model.Bar, period int) (value float64, ok bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	min := f(bars[len(bars)-period].Low)
	for i := len(bars) - period + 1; i < len(bars); i++ {
		if l := f(bars[i].Low); l < min {
			min = l
		}
	}
	return min, true
}

// EMASeries computes the EMA value at every index, seeded from the first
// close; it has no ok flag, so callers apply their own warm-up check
// (the EMA wrapper does).
func EMASeries(bars []model.Bar, period int) []float64 {
	if period <= 0 || len(bars) == 0 {
		return nil
	}
	out := make([]float64, len(bars))
	mult := 2.0 / float64(period+1)
	ema := f(bars[0].Close)
	out[0] = ema
	for i := 1; i < len(bars); i++ {
		ema = f(bars[i].Close)*mult + ema*(1-mult)
		out[i] = ema
	}
	return out
}

// EMA returns the EMA at the last bar, ok=false if fewer than `period` bars.
func EMA(bars []model.Bar, period int) (value float64, ok bool) {
	if len(bars) < period {
		return 0, false
	}
	series := EMASeries(bars, period)
	return series[len(series)-1], true
}

// RSI returns the Wilder-smoothed RSI at the last bar over `period`
// lookback, ok=false during warm-up.
func RSI(bars []model.Bar, period int) (value float64, ok bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	var avgGain, avgLoss float64
	start := len(bars) - period - 1
	for i := start + 1; i <= start+period; i++ {
		change := f(bars[i].Close) - f(bars[i-1].Close)
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := start + period + 1; i < len(bars); i++ {
		change := f(bars[i].Close) - f(bars[i-1].Close)
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// BollingerBands returns the SMA and the upper/lower bands `mult` standard
// deviations from it, ok=false during warm-up.
func BollingerBands(bars []model.Bar, period int, mult float64) (mid, upper, lower float64, ok bool) {
	sma, okSMA := SMA(bars, period)
	if !okSMA {
		return 0, 0, 0, false
	}
	sd, okSD := StdDev(bars, period, sma)
	if !okSD {
		return 0, 0, 0, false
	}
	return sma, sma + mult*sd, sma - mult*sd, true
}

// ATR returns the average true range over `period` bars using Wilder
// smoothing, ok=false during warm-up.
func ATR(bars []model.Bar, period int) (value float64, ok bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	trueRanges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high, low, prevClose := f(bars[i].High), f(bars[i].Low), f(bars[i-1].Close)
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trueRanges = append(trueRanges, tr)
	}
	if len(trueRanges) < period {
		return 0, false
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trueRanges[i]
	}
	atr := sum / float64(period)
	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, true
}

func f(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
