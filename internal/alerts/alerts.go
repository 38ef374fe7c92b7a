// Package alerts implements the price-alert monitor spec.md §4.1
// mentions only for completeness ("out-of-core... peripheral and
// excluded from the core"). It is wired as a fourth scheduler background
// loop behind APP_DISABLE_ALERTS, grounded on original_source's
// PriceAlertMonitor, but trimmed to the one operation the core actually
// needs a contract for: checking active alerts against the latest price.
package alerts

import (
	"context"
	"time"

	"github.com/dezgo/tradintel/internal/model"
	"go.uber.org/zap"
)

// Condition is the comparison a price alert fires on.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Alert is one operator-configured price watch.
type Alert struct {
	ID          int64
	Symbol      string
	TargetPrice float64
	Condition   Condition
	Email       string
}

// AlertStore is the narrow persistence contract the monitor needs;
// internal/store implements it over its price_alerts table. Creating or
// editing alerts is not implemented in this module.
type AlertStore interface {
	ActiveAlerts(ctx context.Context) ([]Alert, error)
	MarkChecked(ctx context.Context, alertID int64, price float64) error
	MarkTriggered(ctx context.Context, alertID int64, triggeredTs int64, price float64) error
}

// Notifier delivers a triggered alert; email_notifier in
// original_source, left as an interface so the core never depends on a
// concrete mail transport.
type Notifier interface {
	SendPriceAlert(ctx context.Context, email, symbol string, target, current float64, condition Condition) error
}

// DataProvider supplies the latest price for a symbol, reusing the
// same history(symbol, tf, limit) contract every other consumer uses.
type DataProvider interface {
	History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error)
}

// Result summarizes one check cycle, mirroring original_source's
// check_alerts return shape.
type Result struct {
	Checked   int
	Triggered int
	Errors    int
	Ts        int64
}

// Monitor checks every active alert against the latest 1-minute close
// and notifies on the ones whose condition is met.
type Monitor struct {
	store    AlertStore
	data     DataProvider
	notifier Notifier
	logger   *zap.Logger
	clock    func() time.Time
}

// New builds a Monitor. clock defaults to time.Now.
func New(store AlertStore, data DataProvider, notifier Notifier, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{store: store, data: data, notifier: notifier, logger: logger, clock: time.Now}
}

// Tick runs one check cycle over every active alert, grouped by symbol
// to minimize price lookups (original_source's alerts_by_symbol
// grouping).
func (m *Monitor) Tick(ctx context.Context) (Result, error) {
	now := m.clock().Unix()
	result := Result{Ts: now}

	alerts, err := m.store.ActiveAlerts(ctx)
	if err != nil {
		return result, err
	}
	if len(alerts) == 0 {
		return result, nil
	}

	bySymbol := make(map[string][]Alert)
	for _, a := range alerts {
		bySymbol[a.Symbol] = append(bySymbol[a.Symbol], a)
	}

	for symbol, symbolAlerts := range bySymbol {
		bars, err := m.data.History(ctx, symbol, model.Timeframe1m, 1)
		if err != nil || len(bars) == 0 {
			m.logger.Warn("alerts: no price data available", zap.String("symbol", symbol), zap.Error(err))
			result.Errors += len(symbolAlerts)
			continue
		}
		current, _ := bars[len(bars)-1].Close.Float64()

		for _, a := range symbolAlerts {
			result.Checked++
			if err := m.store.MarkChecked(ctx, a.ID, current); err != nil {
				m.logger.Warn("alerts: mark checked failed", zap.Int64("alert", a.ID), zap.Error(err))
			}

			if !conditionMet(a.Condition, a.TargetPrice, current) {
				continue
			}

			if err := m.notifier.SendPriceAlert(ctx, a.Email, symbol, a.TargetPrice, current, a.Condition); err != nil {
				m.logger.Error("alerts: notification failed", zap.Int64("alert", a.ID), zap.Error(err))
				result.Errors++
				continue
			}
			if err := m.store.MarkTriggered(ctx, a.ID, now, current); err != nil {
				m.logger.Warn("alerts: mark triggered failed", zap.Int64("alert", a.ID), zap.Error(err))
			}
			result.Triggered++
		}
	}

	return result, nil
}

func conditionMet(cond Condition, target, current float64) bool {
	switch cond {
	case ConditionAbove:
		return current >= target
	case ConditionBelow:
		return current <= target
	default:
		return false
	}
}

// RunForever checks alerts on a fixed interval (default 60s) until ctx
// is canceled, matching scheduler.Backgroundable's func(ctx) shape when
// wrapped in a closure.
func (m *Monitor) RunForever(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.logger.Error("alerts: tick failed", zap.Error(err))
			}
		}
	}
}
