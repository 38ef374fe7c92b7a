package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"go.uber.org/zap"
)

// BarStore is the subset of *store.Store the cache reads and writes
// through, keeping this package's dependency on store narrow and
// consumer-defined (same pattern as worker.TradeRecorder).
type BarStore interface {
	StoreBars(ctx context.Context, symbol string, tf model.Timeframe, source string, bars []model.Bar) error
	GetBars(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error)
	GetBarCoverage(ctx context.Context, symbol string, tf model.Timeframe) (oldest, newest int64, ok bool, err error)
}

// Cache is a read-through bar cache over a Vendor, durably backed by
// BarStore, implementing the same History(...) shape every worker and
// backtester DataProvider expects. It replaces the teacher's in-memory
// map + JSON-file Store with the shared SQLite bars table, so every
// component reads a consistent, persisted view (spec.md §5: "Price data
// cache: read-through, written under the store mutex").
type Cache struct {
	vendor Vendor
	store  BarStore
	logger *zap.Logger
	ttl    time.Duration

	mu        sync.Mutex
	lastFetch map[string]time.Time
}

// NewCache builds a Cache. ttl controls how long a symbol/timeframe's
// last vendor fetch is trusted before refreshing again; default 30s.
func NewCache(vendor Vendor, store BarStore, logger *zap.Logger, ttl time.Duration) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		vendor: vendor, store: store, logger: logger, ttl: ttl,
		lastFetch: make(map[string]time.Time),
	}
}

func cacheKey(symbol string, tf model.Timeframe) string { return symbol + "|" + string(tf) }

// History implements the worker/backtester DataProvider contract:
// serve from the store when the last vendor fetch is still fresh and
// the store returns at least one bar; otherwise refresh from the vendor and
// persist, falling back to whatever is already stored if the vendor
// call fails (spec.md §4.10: "vendor history errors: reuse last cached
// bars if any").
func (c *Cache) History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	key := cacheKey(symbol, tf)

	c.mu.Lock()
	fresh := time.Since(c.lastFetch[key]) < c.ttl
	c.mu.Unlock()

	if fresh {
		if bars, err := c.store.GetBars(ctx, symbol, tf, limit); err == nil && len(bars) > 0 {
			return bars, nil
		}
	}

	fetched, err := c.vendor.FetchHistory(ctx, symbol, tf, limit)
	if err != nil {
		c.logger.Warn("vendor history fetch failed; falling back to cached bars",
			zap.String("symbol", symbol), zap.String("timeframe", string(tf)), zap.Error(err))
		cached, storeErr := c.store.GetBars(ctx, symbol, tf, limit)
		if storeErr != nil || len(cached) == 0 {
			return nil, fmt.Errorf("data: vendor fetch failed and no cached bars available: %w", err)
		}
		return cached, nil
	}

	if err := c.store.StoreBars(ctx, symbol, tf, "binance", fetched); err != nil {
		c.logger.Warn("failed to persist fetched bars", zap.Error(err))
	}
	c.mu.Lock()
	c.lastFetch[key] = time.Now()
	c.mu.Unlock()

	if len(fetched) > limit {
		fetched = fetched[len(fetched)-limit:]
	}
	return fetched, nil
}

// CoverageReport describes what a symbol/timeframe's bar cache holds,
// for GET /data/coverage (spec.md §6).
type CoverageReport struct {
	Symbol    string
	Timeframe model.Timeframe
	Oldest    int64
	Newest    int64
	Exists    bool
}

// Coverage reports the stored bar range for a symbol/timeframe.
func (c *Cache) Coverage(ctx context.Context, symbol string, tf model.Timeframe) (CoverageReport, error) {
	oldest, newest, ok, err := c.store.GetBarCoverage(ctx, symbol, tf)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("data: coverage: %w", err)
	}
	return CoverageReport{Symbol: symbol, Timeframe: tf, Oldest: oldest, Newest: newest, Exists: ok}, nil
}

// Backfill force-refreshes one or more symbols against the vendor,
// ignoring the TTL, for POST /data/backfill.
func (c *Cache) Backfill(ctx context.Context, symbols []string, tf model.Timeframe, limit int) (map[string]int, error) {
	results := make(map[string]int, len(symbols))
	for _, symbol := range symbols {
		fetched, err := c.vendor.FetchHistory(ctx, symbol, tf, limit)
		if err != nil {
			return results, fmt.Errorf("data: backfill %s: %w", symbol, err)
		}
		if err := c.store.StoreBars(ctx, symbol, tf, "binance", fetched); err != nil {
			return results, fmt.Errorf("data: backfill %s: persist: %w", symbol, err)
		}
		c.mu.Lock()
		c.lastFetch[cacheKey(symbol, tf)] = time.Now()
		c.mu.Unlock()
		results[symbol] = len(fetched)
	}
	return results, nil
}
