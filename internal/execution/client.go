// Package execution provides the paper simulator and testnet adapter a
// worker places orders through (spec.md §4.5). Both implement the same
// Client contract so a worker can swap execution modes without change.
package execution

import (
	"context"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// Client is the uniform contract every execution variant implements.
type Client interface {
	MarketOrder(ctx context.Context, symbol string, side model.Side, qty, priceHint decimal.Decimal) (model.Fill, error)
	LimitOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, timeoutSeconds int) (model.Fill, error)
}

// TakerFeeRate and MakerProbability are the paper-simulator constants spec.md
// §4.5 fixes; MakerProbability is kept as a var (not const) per the Open
// Question in SPEC_FULL.md §9 — deployments may tune the maker/taker mix.
var (
	TakerFeeRate     = decimal.NewFromFloat(0.0010) // 0.10%
	MakerProbability = 0.80
)

// LotTable declares the per-symbol quantity/price rounding precision the
// testnet adapter honors (spec.md §4.5's example step sizes).
type LotTable map[string]LotSpec

// LotSpec is one symbol's step sizes.
type LotSpec struct {
	QtyStep   decimal.Decimal
	PriceStep decimal.Decimal
}

// DefaultLotTable mirrors spec.md §4.5's worked examples.
func DefaultLotTable() LotTable {
	return LotTable{
		"BTC_USDT": {QtyStep: decimal.NewFromFloat(0.00001), PriceStep: decimal.NewFromFloat(0.01)},
		"ETH_USDT": {QtyStep: decimal.NewFromFloat(0.0001), PriceStep: decimal.NewFromFloat(0.01)},
		"SOL_USDT": {QtyStep: decimal.NewFromFloat(0.01), PriceStep: decimal.NewFromFloat(0.001)},
	}
}

// roundToStep floors v to the nearest multiple of step (step=0 is a no-op).
func roundToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
