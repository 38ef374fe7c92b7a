package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// lot is one still-open slice of a position sitting in the FIFO queue.
type lot struct {
	openTs int64
	side   model.Side
	qty    decimal.Decimal
	vwap   decimal.Decimal
}

// ListRoundtrips derives matched entry/exit pairs from the trade log by
// FIFO lot matching per (bot, symbol) group (spec.md §4.6). Round-trips
// are never persisted — always recomputed from trades.
func (s *Store) ListRoundtrips(ctx context.Context, f TradeFilter, feeBps float64) ([]model.RoundTrip, error) {
	trades, err := s.allTradesAscending(ctx, f.BotName, f.Symbol)
	if err != nil {
		return nil, fmt.Errorf("list roundtrips: %w", err)
	}

	groups := map[string][]model.Trade{}
	var order []string
	for _, t := range trades {
		key := t.BotName + "\x00" + t.Symbol
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	var out []model.RoundTrip
	for _, key := range order {
		out = append(out, reconstructRoundtrips(groups[key], feeBps)...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CloseTs > out[j].CloseTs })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// reconstructRoundtrips runs the FIFO matching algorithm over one
// (bot, symbol) trade sequence, already in ascending id order.
func reconstructRoundtrips(trades []model.Trade, feeBps float64) []model.RoundTrip {
	if len(trades) == 0 {
		return nil
	}
	var queue []lot
	var out []model.RoundTrip
	botName, symbol := trades[0].BotName, trades[0].Symbol

	adj := decimal.NewFromFloat(feeBps / 10000)
	one := decimal.NewFromInt(1)

	for _, t := range trades {
		pxEff := t.Price
		if !adj.IsZero() {
			if t.Side == model.SideBuy {
				pxEff = t.Price.Mul(one.Add(adj))
			} else {
				pxEff = t.Price.Mul(one.Sub(adj))
			}
		}

		remain := t.Qty
		if len(queue) == 0 || queue[0].side == t.Side {
			queue = append(queue, lot{openTs: t.Ts, side: t.Side, qty: remain, vwap: pxEff})
			continue
		}

		for remain.IsPositive() && len(queue) > 0 && queue[0].side != t.Side {
			head := queue[0]
			take := head.qty
			if remain.LessThan(take) {
				take = remain
			}

			rtSide := model.RoundTripShort
			entry, exit := head.vwap, pxEff
			if head.side == model.SideBuy {
				rtSide = model.RoundTripLong
			}
			var pnl decimal.Decimal
			if rtSide == model.RoundTripLong {
				pnl = exit.Sub(entry).Mul(take)
			} else {
				pnl = entry.Sub(exit).Mul(take)
			}
			pnlPct := decimal.Zero
			denom := entry.Mul(take)
			if !denom.IsZero() {
				pnlPct = pnl.Div(denom).Mul(decimal.NewFromInt(100))
			}

			out = append(out, model.RoundTrip{
				BotName: botName, Symbol: symbol, Side: rtSide, Qty: take,
				EntryPrice: entry, ExitPrice: exit, PnL: pnl, PnLPct: pnlPct,
				OpenTs: head.openTs, CloseTs: t.Ts,
			})

			head.qty = head.qty.Sub(take)
			remain = remain.Sub(take)
			if head.qty.IsZero() {
				queue = queue[1:]
			} else {
				queue[0] = head
			}
		}

		if remain.IsPositive() {
			// position flip: the exit overshot every open lot, so the
			// remainder opens a fresh lot on the new side.
			queue = append(queue, lot{openTs: t.Ts, side: t.Side, qty: remain, vwap: pxEff})
		}
	}
	return out
}

func (s *Store) allTradesAscending(ctx context.Context, botName, symbol string) ([]model.Trade, error) {
	q := `SELECT id, ts, bot_name, symbol, side, qty, price, fee, is_maker FROM trades WHERE 1=1`
	var args []any
	if botName != "" {
		q += " AND bot_name = ?"
		args = append(args, botName)
	}
	if symbol != "" {
		q += " AND symbol = ?"
		args = append(args, symbol)
	}
	q += " ORDER BY bot_name, symbol, id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, qty, price, fee string
		var maker int
		if err := rows.Scan(&t.ID, &t.Ts, &t.BotName, &t.Symbol, &side, &qty, &price, &fee, &maker); err != nil {
			return nil, err
		}
		t.Side = model.Side(side)
		t.Qty, t.Price, t.Fee = mustDecimal(qty), mustDecimal(price), mustDecimal(fee)
		t.IsMaker = maker != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListOpenPositions derives the net remaining position per (bot, symbol)
// from whatever lots are left open after FIFO matching. markPrices, if
// non-nil, supplies a mark for unrealized P&L; symbols absent from it
// are marked at their entry price (zero unrealized P&L).
func (s *Store) ListOpenPositions(ctx context.Context, f TradeFilter, markPrices map[string]decimal.Decimal) ([]model.OpenPosition, error) {
	trades, err := s.allTradesAscending(ctx, f.BotName, f.Symbol)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	groups := map[string][]model.Trade{}
	var order []string
	for _, t := range trades {
		key := t.BotName + "\x00" + t.Symbol
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	var out []model.OpenPosition
	for _, key := range order {
		rows := groups[key]
		queue := openLotsAfterMatching(rows)
		if len(queue) == 0 {
			continue
		}
		qty := decimal.Zero
		costBasis := decimal.Zero
		for _, l := range queue {
			signed := l.qty
			if l.side == model.SideSell {
				signed = signed.Neg()
			}
			qty = qty.Add(signed)
			costBasis = costBasis.Add(l.vwap.Mul(l.qty))
		}
		if qty.IsZero() {
			continue
		}
		totalQty := decimal.Zero
		for _, l := range queue {
			totalQty = totalQty.Add(l.qty)
		}
		entry := decimal.Zero
		if !totalQty.IsZero() {
			entry = costBasis.Div(totalQty)
		}
		mark := entry
		if markPrices != nil {
			if m, ok := markPrices[rows[0].Symbol]; ok {
				mark = m
			}
		}
		out = append(out, model.OpenPosition{
			BotName: rows[0].BotName, Symbol: rows[0].Symbol,
			Qty: qty, EntryPrice: entry, MarkPrice: mark,
		})
	}
	return out, nil
}

// openLotsAfterMatching runs the same FIFO logic as reconstructRoundtrips
// but returns the leftover queue instead of emitted round-trips.
func openLotsAfterMatching(trades []model.Trade) []lot {
	var queue []lot
	for _, t := range trades {
		remain := t.Qty
		if len(queue) == 0 || queue[0].side == t.Side {
			queue = append(queue, lot{openTs: t.Ts, side: t.Side, qty: remain, vwap: t.Price})
			continue
		}
		for remain.IsPositive() && len(queue) > 0 && queue[0].side != t.Side {
			head := queue[0]
			take := head.qty
			if remain.LessThan(take) {
				take = remain
			}
			head.qty = head.qty.Sub(take)
			remain = remain.Sub(take)
			if head.qty.IsZero() {
				queue = queue[1:]
			} else {
				queue[0] = head
			}
		}
		if remain.IsPositive() {
			queue = append(queue, lot{openTs: t.Ts, side: t.Side, qty: remain, vwap: t.Price})
		}
	}
	return queue
}

var stablecoinPairs = map[string]bool{
	"USDC_USDT": true,
	"BUSD_USDT": true,
	"TUSD_USDT": true,
}

// RealizedPnL sums round-trip pnl across the store, optionally excluding
// stablecoin-vs-stablecoin pairs (spec.md §4.6).
func (s *Store) RealizedPnL(ctx context.Context, f TradeFilter, excludeStablecoins bool) (decimal.Decimal, error) {
	rts, err := s.ListRoundtrips(ctx, TradeFilter{BotName: f.BotName, Symbol: f.Symbol}, 0)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, rt := range rts {
		if excludeStablecoins && stablecoinPairs[rt.Symbol] {
			continue
		}
		total = total.Add(rt.PnL)
	}
	return total, nil
}

var sydney *time.Location

func init() {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		loc = time.FixedZone("AEST", 10*3600)
	}
	sydney = loc
}

// TodayPnL sums realized round-trip pnl whose close falls within the
// current Sydney-timezone calendar day.
func (s *Store) TodayPnL(ctx context.Context, f TradeFilter, excludeStablecoins bool) (decimal.Decimal, error) {
	rts, err := s.ListRoundtrips(ctx, TradeFilter{BotName: f.BotName, Symbol: f.Symbol}, 0)
	if err != nil {
		return decimal.Zero, err
	}
	now := time.Now().In(sydney)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, sydney).Unix()
	endOfDay := startOfDay + 24*3600

	total := decimal.Zero
	for _, rt := range rts {
		if excludeStablecoins && stablecoinPairs[rt.Symbol] {
			continue
		}
		if rt.CloseTs >= startOfDay && rt.CloseTs < endOfDay {
			total = total.Add(rt.PnL)
		}
	}
	return total, nil
}
