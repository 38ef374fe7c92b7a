// Package backtester replays a strategy over historical bars and reports
// the standard performance metrics (spec.md §4.7).
package backtester

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Portfolio tracks cash, a single averaged position, and the running
// equity peak for drawdown — adapted from the teacher's multi-symbol
// Portfolio down to the single-instrument shape a backtest run needs
// (spec.md §4.7's run() simulates one symbol at a time).
type Portfolio struct {
	mu sync.Mutex

	cash         decimal.Decimal
	initialCash  decimal.Decimal
	qty          decimal.Decimal
	avgPrice     decimal.Decimal
	currentPrice decimal.Decimal
	peakEquity   decimal.Decimal
	trades       int
}

// NewPortfolio starts a simulated account with the given cash.
func NewPortfolio(initialCash decimal.Decimal) *Portfolio {
	return &Portfolio{cash: initialCash, initialCash: initialCash, peakEquity: initialCash}
}

// MarkPrice updates the last-seen price used for equity/drawdown.
func (p *Portfolio) MarkPrice(price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentPrice = price
	eq := p.equityLocked()
	if eq.GreaterThan(p.peakEquity) {
		p.peakEquity = eq
	}
}

func (p *Portfolio) equityLocked() decimal.Decimal {
	return p.cash.Add(p.qty.Mul(p.currentPrice))
}

// Equity returns cash + mark-to-market position value.
func (p *Portfolio) Equity() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equityLocked()
}

// Drawdown returns the fractional decline from the equity peak so far.
func (p *Portfolio) Drawdown() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peakEquity.IsZero() {
		return decimal.Zero
	}
	return p.peakEquity.Sub(p.equityLocked()).Div(p.peakEquity)
}

// Qty returns the current signed position.
func (p *Portfolio) Qty() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.qty
}

// Buy adds to the averaged position (rolling VWAP, mirroring the
// teacher's Buy), charging commission from cash.
func (p *Portfolio) Buy(qty, price, commission decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = p.cash.Sub(qty.Mul(price)).Sub(commission)
	if p.qty.IsPositive() {
		totalQty := p.qty.Add(qty)
		totalCost := p.qty.Mul(p.avgPrice).Add(qty.Mul(price))
		p.avgPrice = totalCost.Div(totalQty)
		p.qty = totalQty
	} else {
		p.qty = qty
		p.avgPrice = price
	}
	p.currentPrice = price
	p.trades++
}

// Sell reduces the averaged position and returns realized PnL against the
// VWAP entry, mirroring the teacher's Sell.
func (p *Portfolio) Sell(qty, price, commission decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	pnl := decimal.Zero
	if p.qty.IsPositive() {
		matched := qty
		if matched.GreaterThan(p.qty) {
			matched = p.qty
		}
		pnl = price.Sub(p.avgPrice).Mul(matched).Sub(commission)
	}
	p.cash = p.cash.Add(qty.Mul(price)).Sub(commission)
	p.qty = p.qty.Sub(qty)
	if p.qty.IsZero() || p.qty.IsNegative() {
		p.avgPrice = price // any overshoot opens a fresh short leg at price
	}
	p.trades++
	p.currentPrice = price
	return pnl
}
