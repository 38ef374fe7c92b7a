package execution

import (
	"context"
	"math/rand"
	"sync"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// PaperExec simulates fills with no real order book: market orders fill
// instantly at the price hint with the taker fee; limit orders fill at
// the limit price, classified maker with MakerProbability and taker
// otherwise (spec.md §4.5).
type PaperExec struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPaperExec builds a PaperExec seeded from rngSeed for reproducible
// backtests/tests; production callers pass a time-derived seed.
func NewPaperExec(rngSeed int64) *PaperExec {
	return &PaperExec{rng: rand.New(rand.NewSource(rngSeed))}
}

func (p *PaperExec) MarketOrder(ctx context.Context, symbol string, side model.Side, qty, priceHint decimal.Decimal) (model.Fill, error) {
	fee := qty.Mul(priceHint).Mul(TakerFeeRate)
	return model.Fill{
		Status:    model.FillStatusFilled,
		FilledQty: qty,
		AvgPrice:  priceHint,
		Fee:       fee,
		IsMaker:   false,
	}, nil
}

func (p *PaperExec) LimitOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, timeoutSeconds int) (model.Fill, error) {
	isMaker := p.rollMaker()
	feeRate := decimal.Zero
	if !isMaker {
		feeRate = TakerFeeRate
	}
	fee := qty.Mul(limitPrice).Mul(feeRate)
	return model.Fill{
		Status:    model.FillStatusFilled,
		FilledQty: qty,
		AvgPrice:  limitPrice,
		Fee:       fee,
		IsMaker:   isMaker,
	}, nil
}

func (p *PaperExec) rollMaker() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < MakerProbability
}
