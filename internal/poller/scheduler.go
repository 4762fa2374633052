package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs poll cycles, either on a fixed interval or on demand.
//
// Cycles never overlap: they run one after another on a single goroutine,
// and a busy flag lets [Scheduler.Trigger] report when a request was folded
// into the cycle already in flight. At most one follow-up cycle is queued
// while a cycle runs, regardless of how many triggers or ticks arrive.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	poller    *Poller
	addresses func() []string
	interval  time.Duration
	results   chan Cycle
	trigger   chan struct{}
	busy      atomic.Bool
	logger    *slog.Logger
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a new cycle [Scheduler].
//
// Parameters:
//   - p: Poller used for every cycle
//   - addresses: called at the start of each cycle for the current server list
//   - interval: time between automatic cycles; zero disables the timer
//   - logger: Logger for scheduler events
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Cycles are available via [Scheduler.Results].
func NewScheduler(p *Poller, addresses func() []string, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		poller:    p,
		addresses: addresses,
		interval:  interval,
		results:   make(chan Cycle, 1),
		trigger:   make(chan struct{}, 1),
		logger:    logger,
	}
}

// Results returns a receive-only channel that emits one [Cycle] per
// completed poll cycle.
//
// The channel is closed when the scheduler stops. Consumers should read from
// this channel until it is closed.
func (s *Scheduler) Results() <-chan Cycle {
	return s.results
}

// Busy reports whether a cycle is currently in flight.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

// Trigger requests a cycle outside the timer.
//
// It returns true when a new cycle will start right away, and false when the
// request was coalesced: a cycle is already in flight (a single follow-up is
// queued behind it) or a follow-up is already queued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return !s.busy.Load()
	default:
		return false
	}
}

// Start begins the cycle loop in a background goroutine.
//
// Start is non-blocking. The scheduler runs a cycle immediately, then one per
// interval tick and one per trigger, until [Scheduler.Stop] is called or the
// context is cancelled.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.runCycle(runCtx)

		var tick <-chan time.Time
		if s.interval > 0 {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-runCtx.Done():
				return
			case <-tick:
				s.runCycle(runCtx)
			case <-s.trigger:
				s.runCycle(runCtx)
			}
		}
	}()
}

// Stop halts the scheduler and waits for the in-flight cycle to complete.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	if s.poller != nil {
		s.poller.Close()
	}

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// runCycle polls the current address list once and publishes the result.
func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.busy.Store(true)
	defer s.busy.Store(false)

	addrs := s.addresses()
	s.logger.Debug("poll cycle starting", "servers", len(addrs))
	cycle := s.poller.Poll(ctx, addrs)

	select {
	case s.results <- cycle:
	case <-ctx.Done():
	}
}
