package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeVendor struct {
	mu       sync.Mutex
	calls    int
	bars     []model.Bar
	failNext bool
}

func (v *fakeVendor) FetchHistory(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.failNext {
		v.failNext = false
		return nil, errors.New("vendor unavailable")
	}
	return v.bars, nil
}

type fakeBarStore struct {
	mu   sync.Mutex
	bars map[string][]model.Bar
}

func newFakeBarStore() *fakeBarStore { return &fakeBarStore{bars: make(map[string][]model.Bar)} }

func (s *fakeBarStore) StoreBars(ctx context.Context, symbol string, tf model.Timeframe, source string, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[cacheKey(symbol, tf)] = bars
	return nil
}

func (s *fakeBarStore) GetBars(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.bars[cacheKey(symbol, tf)]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (s *fakeBarStore) GetBarCoverage(ctx context.Context, symbol string, tf model.Timeframe) (int64, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.bars[cacheKey(symbol, tf)]
	if len(bars) == 0 {
		return 0, 0, false, nil
	}
	return bars[0].Ts, bars[len(bars)-1].Ts, true, nil
}

func genBars(n int) []model.Bar {
	out := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(100 + float64(i))
		out[i] = model.Bar{Ts: int64(i * 86400), Open: c, High: c, Low: c, Close: c, Volume: decimal.NewFromInt(10)}
	}
	return out
}

func TestHistoryFetchesFromVendorWhenColdAndPersists(t *testing.T) {
	vendor := &fakeVendor{bars: genBars(5)}
	store := newFakeBarStore()
	c := NewCache(vendor, store, nil, time.Minute)

	bars, err := c.History(context.Background(), "BTC_USDT", model.Timeframe1d, 5)
	require.NoError(t, err)
	require.Len(t, bars, 5)
	require.Equal(t, 1, vendor.calls)

	cov, err := c.Coverage(context.Background(), "BTC_USDT", model.Timeframe1d)
	require.NoError(t, err)
	require.True(t, cov.Exists)
}

func TestHistoryServesFromStoreWithinTTLWithoutRefetching(t *testing.T) {
	vendor := &fakeVendor{bars: genBars(5)}
	store := newFakeBarStore()
	c := NewCache(vendor, store, nil, time.Hour)

	_, err := c.History(context.Background(), "ETH_USDT", model.Timeframe1h, 5)
	require.NoError(t, err)
	_, err = c.History(context.Background(), "ETH_USDT", model.Timeframe1h, 5)
	require.NoError(t, err)
	require.Equal(t, 1, vendor.calls, "second call within TTL should not hit the vendor")
}

func TestHistoryFallsBackToCachedBarsOnVendorError(t *testing.T) {
	vendor := &fakeVendor{bars: genBars(5)}
	store := newFakeBarStore()
	c := NewCache(vendor, store, nil, 0) // ttl<=0 takes the 30s default; lastFetch is reset below to force a refresh

	_, err := c.History(context.Background(), "BTC_USDT", model.Timeframe1d, 5)
	require.NoError(t, err)

	vendor.failNext = true
	c.mu.Lock()
	c.lastFetch["BTC_USDT|1d"] = time.Time{} // force a refresh attempt
	c.mu.Unlock()

	bars, err := c.History(context.Background(), "BTC_USDT", model.Timeframe1d, 5)
	require.NoError(t, err)
	require.Len(t, bars, 5, "should fall back to previously stored bars")
}

func TestHistoryErrorsWhenVendorFailsAndNothingCached(t *testing.T) {
	vendor := &fakeVendor{failNext: true}
	store := newFakeBarStore()
	c := NewCache(vendor, store, nil, time.Minute)

	_, err := c.History(context.Background(), "NEW_USDT", model.Timeframe1d, 5)
	require.Error(t, err)
}

func TestBackfillStoresBarsForEverySymbol(t *testing.T) {
	vendor := &fakeVendor{bars: genBars(3)}
	store := newFakeBarStore()
	c := NewCache(vendor, store, nil, time.Minute)

	counts, err := c.Backfill(context.Background(), []string{"BTC_USDT", "ETH_USDT"}, model.Timeframe1d, 3)
	require.NoError(t, err)
	require.Equal(t, 3, counts["BTC_USDT"])
	require.Equal(t, 3, counts["ETH_USDT"])
}
