package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Transport is the narrow HTTP contract BinanceTestnetExec depends on,
// so tests can substitute a fake without a real socket. A production
// Transport wraps *http.Client and the exchange's REST base URL/auth.
type Transport interface {
	PlaceOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal) (orderID string, err error)
	OrderStatus(ctx context.Context, symbol, orderID string) (status model.FillStatus, filledQty, avgPrice, fee decimal.Decimal, isMaker bool, err error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// HTTPTransport is the production Transport, talking to a Binance-style
// testnet REST API with HMAC-SHA256 request signing, adapted from the
// Binance exchange adapter's signedRequest/sign pair.
type HTTPTransport struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

// NewHTTPTransport builds a Transport against the Binance spot testnet.
func NewHTTPTransport(apiKey, apiSecret string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL:    "https://testnet.binance.vision",
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPTransport) PlaceOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", upperSide(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", qty.String())
	params.Set("price", limitPrice.String())

	body, err := t.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	var out struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("place order: decode response: %w", err)
	}
	return strconv.FormatInt(out.OrderID, 10), nil
}

func (t *HTTPTransport) OrderStatus(ctx context.Context, symbol, orderID string) (model.FillStatus, decimal.Decimal, decimal.Decimal, decimal.Decimal, bool, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	body, err := t.signedRequest(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return "", decimal.Zero, decimal.Zero, decimal.Zero, false, fmt.Errorf("order status: %w", err)
	}
	var out struct {
		Status             string `json:"status"`
		ExecutedQty        string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", decimal.Zero, decimal.Zero, decimal.Zero, false, fmt.Errorf("order status: decode response: %w", err)
	}

	status := model.FillStatusTimeout
	switch out.Status {
	case "FILLED":
		status = model.FillStatusFilled
	case "CANCELED", "EXPIRED", "REJECTED":
		status = model.FillStatusCancelled
	}
	filledQty, _ := decimal.NewFromString(out.ExecutedQty)
	quote, _ := decimal.NewFromString(out.CummulativeQuoteQty)
	avgPrice := decimal.Zero
	if !filledQty.IsZero() {
		avgPrice = quote.Div(filledQty)
	}
	// Binance's order-status response doesn't report maker/taker directly;
	// myTrades would, but that's a second rate-limited call this adapter
	// skips — fee/maker fall back to the taker estimate in LimitOrder.
	return status, filledQty, avgPrice, decimal.Zero, false, nil
}

func (t *HTTPTransport) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := t.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

// signedRequest timestamps, HMAC-signs, and sends a request, returning the
// raw response body for the caller to decode.
func (t *HTTPTransport) signedRequest(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", t.sign(params.Encode()))

	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", t.APIKey)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (t *HTTPTransport) sign(query string) string {
	h := hmac.New(sha256.New, []byte(t.APISecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func upperSide(side model.Side) string {
	if side == model.SideSell {
		return "SELL"
	}
	return "BUY"
}

// BinanceTestnetExec forwards orders to a testnet REST API, honoring
// per-symbol lot/price rounding, polling status every 2s up to the
// caller's timeout, and falling back to paper semantics on network or
// auth failure (spec.md §4.5).
type BinanceTestnetExec struct {
	transport Transport
	lots      LotTable
	limiter   *rate.Limiter
	fallback  *PaperExec
	logger    *zap.Logger
	pollEvery time.Duration
}

// NewBinanceTestnetExec builds the adapter. ratePerSecond caps outbound
// calls to the exchange (grounded on polybot's per-endpoint rate.Limiter
// pattern); burst is the limiter's token bucket size.
func NewBinanceTestnetExec(transport Transport, lots LotTable, ratePerSecond float64, burst int, logger *zap.Logger) *BinanceTestnetExec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceTestnetExec{
		transport: transport,
		lots:      lots,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		fallback:  NewPaperExec(time.Now().UnixNano()),
		logger:    logger,
		pollEvery: 2 * time.Second,
	}
}

func (e *BinanceTestnetExec) MarketOrder(ctx context.Context, symbol string, side model.Side, qty, priceHint decimal.Decimal) (model.Fill, error) {
	return e.LimitOrder(ctx, symbol, side, qty, priceHint, 5)
}

func (e *BinanceTestnetExec) LimitOrder(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, timeoutSeconds int) (model.Fill, error) {
	qty, limitPrice = e.roundToLot(symbol, qty, limitPrice)

	if err := e.limiter.Wait(ctx); err != nil {
		return e.paperFallback(ctx, symbol, side, qty, limitPrice, "rate limiter: "+err.Error())
	}

	orderID, err := e.transport.PlaceOrder(ctx, symbol, side, qty, limitPrice)
	if err != nil {
		return e.paperFallback(ctx, symbol, side, qty, limitPrice, "place order: "+err.Error())
	}

	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()

	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.paperFallback(ctx, symbol, side, qty, limitPrice, "rate limiter: "+err.Error())
		}
		status, filledQty, avgPrice, fee, isMaker, err := e.transport.OrderStatus(ctx, symbol, orderID)
		if err != nil {
			return e.paperFallback(ctx, symbol, side, qty, limitPrice, "order status: "+err.Error())
		}
		if status == model.FillStatusFilled {
			if fee.IsZero() {
				fee = filledQty.Mul(avgPrice).Mul(TakerFeeRate)
			}
			return model.Fill{Status: status, FilledQty: filledQty, AvgPrice: avgPrice, Fee: fee, IsMaker: isMaker}, nil
		}

		select {
		case <-ctx.Done():
			_ = e.transport.CancelOrder(context.Background(), symbol, orderID)
			return model.Fill{Status: model.FillStatusCancelled}, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				_ = e.transport.CancelOrder(ctx, symbol, orderID)
				return model.Fill{Status: model.FillStatusTimeout}, nil
			}
		}
	}
}

func (e *BinanceTestnetExec) roundToLot(symbol string, qty, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	spec, ok := e.lots[symbol]
	if !ok {
		return qty, price
	}
	return roundToStep(qty, spec.QtyStep), roundToStep(price, spec.PriceStep)
}

func (e *BinanceTestnetExec) paperFallback(ctx context.Context, symbol string, side model.Side, qty, limitPrice decimal.Decimal, reason string) (model.Fill, error) {
	e.logger.Warn("testnet execution failed; falling back to paper fill",
		zap.String("symbol", symbol), zap.String("reason", reason))
	return e.fallback.LimitOrder(ctx, symbol, side, qty, limitPrice, 0)
}
