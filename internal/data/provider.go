// Package data implements the vendor history contract (spec.md §6) and a
// read-through cache in front of it, backed by internal/store's bars
// table rather than the teacher's JSON-file data directory.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
)

// Vendor fetches bar history from an external market data source,
// oldest→newest, honoring limit as a hard upper bound (spec.md §6).
type Vendor interface {
	FetchHistory(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error)
}

// binanceIntervals maps recognized timeframes onto Binance's kline
// interval strings; 7d has no native Binance interval and is served as
// a week bucket, matching Timeframe.Seconds()'s treatment of the two as
// equivalent durations.
var binanceIntervals = map[model.Timeframe]string{
	model.Timeframe1m:  "1m",
	model.Timeframe3m:  "3m",
	model.Timeframe5m:  "5m",
	model.Timeframe15m: "15m",
	model.Timeframe30m: "30m",
	model.Timeframe1h:  "1h",
	model.Timeframe4h:  "4h",
	model.Timeframe8h:  "8h",
	model.Timeframe1d:  "1d",
	model.Timeframe7d:  "1w",
	model.Timeframe1w:  "1w",
}

// BinanceKlinesProvider fetches OHLCV history from Binance's public REST
// klines endpoint, adapted from the HMAC-signed HTTPTransport pattern in
// internal/execution/testnet.go — no signing is needed here since
// klines is a public, unauthenticated endpoint.
type BinanceKlinesProvider struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewBinanceKlinesProvider builds a provider against Binance's public
// spot REST API.
func NewBinanceKlinesProvider() *BinanceKlinesProvider {
	return &BinanceKlinesProvider{
		BaseURL:    "https://api.binance.com",
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchHistory implements Vendor against Binance's /api/v3/klines.
func (p *BinanceKlinesProvider) FetchHistory(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	interval, ok := binanceIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("data: unrecognized timeframe %q", tf)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000 // Binance's own hard cap per request
	}

	q := url.Values{}
	q.Set("symbol", restSymbol(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("data: build request: %w", err)
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("data: fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data: fetch history: unexpected status %d", resp.StatusCode)
	}

	var raw [][]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("data: decode klines: %w", err)
	}
	return decodeKlines(raw)
}

// restSymbol strips the underscore separator the rest of this module
// uses (BTC_USDT) down to Binance's bare pair form (BTCUSDT).
func restSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '_' {
			continue
		}
		out = append(out, symbol[i])
	}
	return string(out)
}

func decodeKlines(raw [][]any) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("data: malformed kline row: %v", row)
		}
		openTs, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("data: malformed kline timestamp: %v", row[0])
		}
		open, err := decimal.NewFromString(fmt.Sprint(row[1]))
		if err != nil {
			return nil, fmt.Errorf("data: parse open: %w", err)
		}
		high, err := decimal.NewFromString(fmt.Sprint(row[2]))
		if err != nil {
			return nil, fmt.Errorf("data: parse high: %w", err)
		}
		low, err := decimal.NewFromString(fmt.Sprint(row[3]))
		if err != nil {
			return nil, fmt.Errorf("data: parse low: %w", err)
		}
		closeP, err := decimal.NewFromString(fmt.Sprint(row[4]))
		if err != nil {
			return nil, fmt.Errorf("data: parse close: %w", err)
		}
		vol, err := decimal.NewFromString(fmt.Sprint(row[5]))
		if err != nil {
			return nil, fmt.Errorf("data: parse volume: %w", err)
		}
		bars = append(bars, model.Bar{
			Ts: int64(openTs) / 1000, Open: open, High: high, Low: low, Close: closeP, Volume: vol,
		})
	}
	return bars, nil
}
