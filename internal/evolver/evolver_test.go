package evolver

import (
	"context"
	"sync"
	"testing"

	"github.com/dezgo/tradintel/internal/model"
	"github.com/dezgo/tradintel/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeData struct {
	bars []model.Bar
}

func (f *fakeData) History(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	return f.bars, nil
}

func genBars(n int, start, step float64) []model.Bar {
	out := make([]model.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(price)
		out[i] = model.Bar{Ts: int64(i * 86400), Open: c, High: c, Low: c, Close: c, Volume: decimal.NewFromInt(1)}
		price += step
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	evolved  []model.EvolvedStrategy
	backests []store.SavedBacktest
	nextID   int64
}

func (s *fakeStore) SaveEvolvedStrategy(ctx context.Context, e model.EvolvedStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.evolved = append(s.evolved, e)
	return nil
}

func (s *fakeStore) GetEvolvedStrategyByID(ctx context.Context, id int64) (model.EvolvedStrategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.evolved {
		if e.ID == id {
			return e, nil
		}
	}
	return model.EvolvedStrategy{}, context.DeadlineExceeded
}

func (s *fakeStore) SaveBacktest(ctx context.Context, b store.SavedBacktest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	s.backests = append(s.backests, b)
	return b.ID, nil
}

func TestNewSeedsPopulationToDefaultSize(t *testing.T) {
	e := New(&fakeData{bars: genBars(10, 100, 1)}, &fakeStore{}, nil, 1)
	require.Len(t, e.population, 20)
}

func TestRunOnceAdvancesGenerationAndPersistsTopN(t *testing.T) {
	data := &fakeData{bars: genBars(400, 100, 0.5)}
	st := &fakeStore{}
	e := New(data, st, nil, 42)

	cfg := Config{
		Symbols:        []string{"BTC_USDT"},
		Timeframe:      model.Timeframe1d,
		WindowDays:     365,
		InitialCapital: 10000,
		PopulationSize: 20,
		Survivors:      5,
		PersistTopN:    10,
	}

	err := e.RunOnce(context.Background(), cfg, 400*86400)
	require.NoError(t, err)
	require.Equal(t, 1, e.Generation())
	require.LessOrEqual(t, len(st.evolved), 10)
	require.Len(t, e.population, 20)
	for _, ev := range st.evolved {
		require.Equal(t, 1, ev.Generation)
		require.Equal(t, "BTC_USDT", ev.Symbol)
	}
}

func TestRunOnceMultipleCyclesKeepsPopulationSizeStable(t *testing.T) {
	data := &fakeData{bars: genBars(400, 100, 0.5)}
	st := &fakeStore{}
	e := New(data, st, nil, 7)
	cfg := Config{Symbols: []string{"ETH_USDT"}, Timeframe: model.Timeframe1d}

	for i := 0; i < 3; i++ {
		require.NoError(t, e.RunOnce(context.Background(), cfg, 400*86400))
	}
	require.Equal(t, 3, e.Generation())
	require.Len(t, e.population, 20)
}

func TestPromoteCreatesSavedBacktestTaggedGenomeStrategy(t *testing.T) {
	st := &fakeStore{}
	e := New(&fakeData{}, st, nil, 3)
	require.NoError(t, st.SaveEvolvedStrategy(context.Background(), model.EvolvedStrategy{
		Symbol: "BTC_USDT", Timeframe: model.Timeframe1d, Score: 123.4, Generation: 2,
	}))

	id, err := e.Promote(context.Background(), st.evolved[0].ID)
	require.NoError(t, err)
	require.Equal(t, id, st.backests[0].ID)
	require.Equal(t, "GenomeStrategy", st.backests[0].Strategy)
	require.Equal(t, "BTC_USDT", st.backests[0].Symbol)
}

func TestReproduceCarriesSurvivorsOverAndFillsToTargetSize(t *testing.T) {
	e := New(&fakeData{}, &fakeStore{}, nil, 5)
	survivors := e.population[:5]
	next := e.reproduce(survivors, 20, 0.5, 0.3)
	require.Len(t, next, 20)
	for i, s := range survivors {
		require.Equal(t, s, next[i])
	}
}

func TestReproduceWithNoSurvivorsReseeds(t *testing.T) {
	e := New(&fakeData{}, &fakeStore{}, nil, 9)
	next := e.reproduce(nil, 20, 0.5, 0.3)
	require.Len(t, next, 20)
}
