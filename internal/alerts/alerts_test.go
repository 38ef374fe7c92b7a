package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	alerts     []Alert
	checked    map[int64]float64
	triggered  map[int64]float64
}

func newFakeStore(alerts ...Alert) *fakeStore {
	return &fakeStore{alerts: alerts, checked: map[int64]float64{}, triggered: map[int64]float64{}}
}

func (s *fakeStore) ActiveAlerts(ctx context.Context) ([]Alert, error) { return s.alerts, nil }

func (s *fakeStore) MarkChecked(ctx context.Context, id int64, price float64) error {
	s.checked[id] = price
	return nil
}

func (s *fakeStore) MarkTriggered(ctx context.Context, id int64, ts int64, price float64) error {
	s.triggered[id] = price
	return nil
}

type fakeData struct{ price float64 }

func (d *fakeData) History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	return []model.Bar{{Close: decimal.NewFromFloat(d.price)}}, nil
}

type fakeNotifier struct {
	sent int
	fail bool
}

func (n *fakeNotifier) SendPriceAlert(ctx context.Context, email, symbol string, target, current float64, cond Condition) error {
	if n.fail {
		return errors.New("smtp down")
	}
	n.sent++
	return nil
}

func TestTickTriggersAlertAboveTarget(t *testing.T) {
	store := newFakeStore(Alert{ID: 1, Symbol: "BTC_USDT", TargetPrice: 100, Condition: ConditionAbove, Email: "a@b.com"})
	data := &fakeData{price: 150}
	notifier := &fakeNotifier{}
	m := New(store, data, notifier, nil)

	result, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 1, result.Triggered)
	require.Equal(t, 1, notifier.sent)
	require.Contains(t, store.triggered, int64(1))
}

func TestTickDoesNotTriggerWhenConditionNotMet(t *testing.T) {
	store := newFakeStore(Alert{ID: 1, Symbol: "BTC_USDT", TargetPrice: 200, Condition: ConditionAbove})
	data := &fakeData{price: 150}
	m := New(store, data, &fakeNotifier{}, nil)

	result, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Triggered)
	require.Contains(t, store.checked, int64(1))
}

func TestTickCountsNotifierFailureAsError(t *testing.T) {
	store := newFakeStore(Alert{ID: 1, Symbol: "BTC_USDT", TargetPrice: 100, Condition: ConditionBelow})
	data := &fakeData{price: 50}
	m := New(store, data, &fakeNotifier{fail: true}, nil)

	result, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Errors)
	require.Equal(t, 0, result.Triggered)
}

func TestTickWithNoActiveAlertsIsNoOp(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeData{price: 100}, &fakeNotifier{}, nil)

	result, err := m.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Checked)
}
