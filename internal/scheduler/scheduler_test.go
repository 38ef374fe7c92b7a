package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePortfolio struct {
	mu      sync.Mutex
	steps   int
	failNext bool
}

func (p *fakePortfolio) Step(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps++
	if p.failNext {
		p.failNext = false
		return errors.New("step failed")
	}
	return nil
}

func (p *fakePortfolio) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.steps
}

type instantSleeper struct{ calls int32 }

func (s *instantSleeper) Sleep(ctx context.Context, d time.Duration) error {
	atomic.AddInt32(&s.calls, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestUntilNextBarAlignsToBoundaryPlusBuffer(t *testing.T) {
	s := New(&fakePortfolio{}, fixedClock{t: time.Unix(100, 0)}, &instantSleeper{}, nil, Config{TimeframeSeconds: 60, BufferSeconds: 2})
	wait := s.untilNextBar()
	require.Equal(t, 22*time.Second, wait) // next boundary at 120, +2 buffer, now=100 -> wait 22s
}

func TestUntilNextBarOnExactBoundaryUsesCurrentBarPlusBuffer(t *testing.T) {
	s := New(&fakePortfolio{}, fixedClock{t: time.Unix(120, 0)}, &instantSleeper{}, nil, Config{TimeframeSeconds: 60, BufferSeconds: 2})
	wait := s.untilNextBar()
	require.Equal(t, 2*time.Second, wait)
}

func TestStartStepsPortfolioRepeatedlyUntilStop(t *testing.T) {
	p := &fakePortfolio{}
	sleeper := &instantSleeper{}
	s := New(p, fixedClock{t: time.Unix(0, 0)}, sleeper, nil, Config{TimeframeSeconds: 60})
	s.Start(context.Background())

	require.Eventually(t, func() bool { return p.count() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestStartRunsRegisteredBackgroundLoops(t *testing.T) {
	p := &fakePortfolio{}
	var bgCalls int32
	s := New(p, fixedClock{t: time.Unix(0, 0)}, &instantSleeper{}, nil, Config{TimeframeSeconds: 60})
	s.AddBackground(func(ctx context.Context) {
		atomic.AddInt32(&bgCalls, 1)
		<-ctx.Done()
	})
	s.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&bgCalls) == 1 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestStepFailureBacksOffAndContinues(t *testing.T) {
	p := &fakePortfolio{failNext: true}
	sleeper := &instantSleeper{}
	s := New(p, fixedClock{t: time.Unix(0, 0)}, sleeper, nil, Config{TimeframeSeconds: 60, MinBackoff: time.Millisecond})
	s.Start(context.Background())
	require.Eventually(t, func() bool { return p.count() >= 2 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestStartTwiceIsNoOp(t *testing.T) {
	p := &fakePortfolio{}
	s := New(p, fixedClock{t: time.Unix(0, 0)}, &instantSleeper{}, nil, Config{TimeframeSeconds: 60})
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
}
