// Package scheduler runs the bar-aligned loop that steps a portfolio
// once per new bar, plus the independent background loops for the
// optimizer, evolver, and price-alert monitor (spec.md §4.1). Structured
// after the teacher's internal/blockchain.BlockTracker: a cancelable
// context stored at Start, a WaitGroup joined at Stop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dezgo/tradintel/internal/metrics"
	"go.uber.org/zap"
)

// Portfolio is the subset of *portfolio.Portfolio the scheduler drives.
type Portfolio interface {
	Step(ctx context.Context) error
}

// Clock abstracts wall-clock time so tests can control bar alignment
// without sleeping (mirrors worker.Clock).
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Sleeper lets tests intercept the scheduler's wait without a real
// timer; production code uses RealSleeper.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps for real, or returns ctx.Err() if ctx is canceled
// first.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backgroundable is any of the independent interval loops (optimizer,
// evolver, alerts) the scheduler starts alongside the bar loop. Each
// must return promptly once ctx is canceled. Callers wrap methods that
// take extra arguments (optimizer.Optimizer.RunForever,
// evolver.Evolver.RunForever) in a closure of this shape.
type Backgroundable func(ctx context.Context)

// Scheduler owns the bar-aligned portfolio loop and any number of
// additional background loops, starting and stopping them together.
type Scheduler struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	portfolio Portfolio
	clock     Clock
	sleeper   Sleeper
	logger    *zap.Logger

	tfSeconds    int64
	bufferSecs   int64
	minBackoff   time.Duration

	backgrounds []Backgroundable
}

// Config carries the scheduler's tunables; zero values take spec.md's
// defaults (buffer 2s, backoff 5s).
type Config struct {
	TimeframeSeconds int64
	BufferSeconds    int64
	MinBackoff       time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSeconds <= 0 {
		c.BufferSeconds = 2
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 5 * time.Second
	}
	if c.TimeframeSeconds <= 0 {
		c.TimeframeSeconds = 86400 // 1d
	}
	return c
}

// New builds a Scheduler for the given portfolio. Additional background
// loops (optimizer.RunForever, evolver.RunForever, an alert monitor) are
// registered via AddBackground before Start.
func New(p Portfolio, clock Clock, sleeper Sleeper, logger *zap.Logger, cfg Config) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Scheduler{
		portfolio: p, clock: clock, sleeper: sleeper, logger: logger,
		tfSeconds: cfg.TimeframeSeconds, bufferSecs: cfg.BufferSeconds, minBackoff: cfg.MinBackoff,
	}
}

// AddBackground registers an additional independent loop (optimizer,
// evolver, alerts) to start and stop alongside the bar loop. Must be
// called before Start.
func (s *Scheduler) AddBackground(b Backgroundable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backgrounds = append(s.backgrounds, b)
}

// Start launches the bar loop and every registered background loop,
// each in its own goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	backgrounds := make([]Backgroundable, len(s.backgrounds))
	copy(backgrounds, s.backgrounds)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBarLoop(ctx)
	}()

	for _, b := range backgrounds {
		b := b
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			b(ctx)
		}()
	}
}

// Stop cancels every loop and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// runBarLoop implements spec.md §4.1's runForever(portfolio, clock,
// tfSeconds): sleep until the next bar boundary plus a buffer, step the
// portfolio once, and on any failure log and back off at least
// minBackoff before retrying. The loop observes ctx between sleeps so
// it exits promptly on cancellation.
func (s *Scheduler) runBarLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		wait := s.untilNextBar()
		if err := s.sleeper.Sleep(ctx, wait); err != nil {
			return // context canceled mid-sleep
		}
		if ctx.Err() != nil {
			return
		}

		lag := s.clock.Now().Unix()%s.tfSeconds - s.bufferSecs
		metrics.ObserveSchedulerLag(float64(lag))

		if err := s.portfolio.Step(ctx); err != nil {
			metrics.IncStepError()
			s.logger.Error("portfolio step failed", zap.Error(err))
			if err := s.sleeper.Sleep(ctx, s.minBackoff); err != nil {
				return
			}
		}
	}
}

// untilNextBar computes the wait duration until the next tfSeconds-
// aligned boundary plus the configured buffer.
func (s *Scheduler) untilNextBar() time.Duration {
	now := s.clock.Now().Unix()
	nextBar := ((now / s.tfSeconds) + 1) * s.tfSeconds
	if now%s.tfSeconds == 0 {
		nextBar = now
	}
	target := nextBar + s.bufferSecs
	wait := target - now
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait) * time.Second
}
