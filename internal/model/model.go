// Package model defines the shared data types of the trading engine:
// bars, workers, trades, and the structures derived from the trade log.
package model

import (
	"github.com/shopspring/decimal"
)

// Timeframe is a recognized bar duration.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe8h  Timeframe = "8h"
	Timeframe1d  Timeframe = "1d"
	Timeframe7d  Timeframe = "7d"
	Timeframe1w  Timeframe = "1w"
)

// Seconds returns the duration of the timeframe in seconds, or 0 if unknown.
func (tf Timeframe) Seconds() int64 {
	switch tf {
	case Timeframe1m:
		return 60
	case Timeframe3m:
		return 3 * 60
	case Timeframe5m:
		return 5 * 60
	case Timeframe15m:
		return 15 * 60
	case Timeframe30m:
		return 30 * 60
	case Timeframe1h:
		return 3600
	case Timeframe4h:
		return 4 * 3600
	case Timeframe8h:
		return 8 * 3600
	case Timeframe1d:
		return 24 * 3600
	case Timeframe7d, Timeframe1w:
		return 7 * 24 * 3600
	default:
		return 0
	}
}

// PeriodsPerYear is used for Sharpe annualization.
func (tf Timeframe) PeriodsPerYear() float64 {
	secs := tf.Seconds()
	if secs <= 0 {
		return 252 // sane fallback, ~trading days/year
	}
	return float64(365*24*3600) / float64(secs)
}

// Bar is an immutable OHLCV sample. Ts identifies the bar (epoch seconds).
type Bar struct {
	Ts     int64
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Side is the direction of a trade or fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Trade is an append-only execution record.
type Trade struct {
	ID       int64
	Ts       int64
	BotName  string
	Symbol   string
	Side     Side
	Qty      decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
	IsMaker  bool
}

// RoundTripSide classifies a reconstructed round-trip.
type RoundTripSide string

const (
	RoundTripLong  RoundTripSide = "LONG"
	RoundTripShort RoundTripSide = "SHORT"
)

// RoundTrip is a derived, matched pair (or partial pair) of opposite-side
// fills producing realized P&L. Never persisted.
type RoundTrip struct {
	BotName    string
	Symbol     string
	Side       RoundTripSide
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnL        decimal.Decimal
	PnLPct     decimal.Decimal
	OpenTs     int64
	CloseTs    int64
}

// OpenPosition is a derived net position per (bot, symbol) with a VWAP
// entry cost on the remaining lot.
type OpenPosition struct {
	BotName    string
	Symbol     string
	Qty        decimal.Decimal // signed: positive long, negative short
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
}

// UnrealizedPnL returns (mark - entry) * qty, sign-correct for long/short.
func (p OpenPosition) UnrealizedPnL() decimal.Decimal {
	return p.MarkPrice.Sub(p.EntryPrice).Mul(p.Qty)
}

// Fill is the uniform result shape returned by any execution client.
type FillStatus string

const (
	FillStatusFilled    FillStatus = "filled"
	FillStatusCancelled FillStatus = "cancelled"
	FillStatusTimeout   FillStatus = "timeout"
)

type Fill struct {
	Status    FillStatus
	FilledQty decimal.Decimal
	AvgPrice  decimal.Decimal
	Fee       decimal.Decimal
	IsMaker   bool
}

// DecisionKind enumerates the observability-only decision log entries a
// worker records during Step().
type DecisionKind string

const (
	DecisionSignal            DecisionKind = "signal"
	DecisionSkipMinNotional    DecisionKind = "skip_min_notional"
	DecisionSkipCooldown       DecisionKind = "skip_cooldown"
	DecisionSkipTradingPaused  DecisionKind = "skip_trading_paused"
	DecisionTradeExecuted      DecisionKind = "trade_executed"
)

// Decision is one bounded, in-memory log entry for a worker's Step().
type Decision struct {
	Ts      int64
	BotName string
	Kind    DecisionKind
	Detail  string
}

// AllocBounds is a {min,max} clamp on an allocation share within a parent.
type AllocBounds struct {
	MinFrac decimal.Decimal
	MaxFrac decimal.Decimal
}
