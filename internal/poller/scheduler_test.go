package poller

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// staticAddresses returns an address source with a fixed list.
func staticAddresses(addrs ...string) func() []string {
	return func() []string { return addrs }
}

func newTestScheduler(addrs func() []string, interval time.Duration) *Scheduler {
	p := NewPoller(Config{Timeout: time.Second, Logger: testLogger()})
	return NewScheduler(p, addrs, interval, testLogger())
}

// TestScheduler_StopBeforeStart verifies that calling Stop() on a scheduler
// that was never started does not panic and is a safe no-op.
func TestScheduler_StopBeforeStart(t *testing.T) {
	scheduler := newTestScheduler(staticAddresses("127.0.0.1:1"), time.Minute)

	scheduler.Stop()

	if _, ok := <-scheduler.Results(); ok {
		t.Error("expected results channel to be closed after Stop()")
	}
}

// TestScheduler_StopTwice verifies that Stop() is idempotent.
func TestScheduler_StopTwice(t *testing.T) {
	scheduler := newTestScheduler(staticAddresses(), time.Minute)
	scheduler.Start(context.Background())

	go func() {
		for range scheduler.Results() {
		}
	}()

	scheduler.Stop()
	scheduler.Stop()
}

// TestScheduler_ImmediateCycle verifies that a cycle runs right after Start.
func TestScheduler_ImmediateCycle(t *testing.T) {
	addr := healthyServer(t)
	scheduler := newTestScheduler(staticAddresses(addr), time.Hour)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	select {
	case cycle := <-scheduler.Results():
		if len(cycle.Snapshots) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(cycle.Snapshots))
		}
		if cycle.Snapshots[0].Address != addr {
			t.Errorf("snapshot address = %q, want %q", cycle.Snapshots[0].Address, addr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the first cycle")
	}
}

// TestScheduler_IntervalCycles verifies that cycles repeat on the interval.
func TestScheduler_IntervalCycles(t *testing.T) {
	addr := healthyServer(t)
	scheduler := newTestScheduler(staticAddresses(addr), 50*time.Millisecond)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-scheduler.Results():
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for cycle %d", i+1)
		}
	}
}

// TestScheduler_ZeroIntervalManualOnly verifies that a zero interval only
// polls on start and on Trigger.
func TestScheduler_ZeroIntervalManualOnly(t *testing.T) {
	addr := healthyServer(t)
	scheduler := newTestScheduler(staticAddresses(addr), 0)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	<-scheduler.Results()

	select {
	case <-scheduler.Results():
		t.Fatal("unexpected automatic cycle with a zero interval")
	case <-time.After(150 * time.Millisecond):
	}

	scheduler.Trigger()

	select {
	case <-scheduler.Results():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for triggered cycle")
	}
}

// TestScheduler_ReadsAddressesPerCycle verifies that servers added between
// cycles are picked up by the next cycle.
func TestScheduler_ReadsAddressesPerCycle(t *testing.T) {
	first := healthyServer(t)
	second := healthyServer(t)

	var mu sync.Mutex
	addrs := []string{first}
	source := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), addrs...)
	}

	scheduler := newTestScheduler(source, 0)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	if cycle := <-scheduler.Results(); len(cycle.Snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(cycle.Snapshots))
	}

	mu.Lock()
	addrs = append(addrs, second)
	mu.Unlock()
	scheduler.Trigger()

	select {
	case cycle := <-scheduler.Results():
		if len(cycle.Snapshots) != 2 {
			t.Errorf("expected 2 snapshots, got %d", len(cycle.Snapshots))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for triggered cycle")
	}
}

// TestScheduler_TriggerCoalescesWhileBusy verifies that triggers arriving
// during an in-flight cycle never start overlapping cycles and queue at most
// one follow-up.
func TestScheduler_TriggerCoalescesWhileBusy(t *testing.T) {
	var inFlight, peak, statsHits atomic.Int32
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/system_stats" {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			if n > peak.Load() {
				peak.Store(n)
			}
			if statsHits.Add(1) == 1 {
				<-release
			}
			_, _ = io.WriteString(w, statsBody)
			return
		}
		_, _ = io.WriteString(w, idleQueueBody)
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	scheduler := newTestScheduler(staticAddresses(addr), 0)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	// wait for the first cycle to be blocked inside the server
	deadline := time.Now().Add(2 * time.Second)
	for !scheduler.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never became busy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for i := 0; i < 5; i++ {
		if scheduler.Trigger() {
			t.Errorf("Trigger() #%d = true while busy, want false", i+1)
		}
	}
	close(release)

	// initial cycle plus exactly one follow-up
	for i := 0; i < 2; i++ {
		select {
		case <-scheduler.Results():
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for cycle %d", i+1)
		}
	}
	select {
	case <-scheduler.Results():
		t.Error("expected triggers to coalesce into a single follow-up cycle")
	case <-time.After(150 * time.Millisecond):
	}

	if peak.Load() > 1 {
		t.Errorf("cycles overlapped: peak in-flight = %d", peak.Load())
	}
}

// TestScheduler_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not cause a race condition or panic.
// Run with: go test -race ./internal/poller/...
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 50; i++ {
		scheduler := newTestScheduler(staticAddresses(), time.Minute)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			scheduler.Start(context.Background())
		}()

		go func() {
			defer wg.Done()
			scheduler.Stop()
		}()

		wg.Wait()

		for range scheduler.Results() {
		}
	}
}

// TestScheduler_StopBeforeStartThenStart verifies that Start after Stop is a
// no-op.
func TestScheduler_StopBeforeStartThenStart(t *testing.T) {
	scheduler := newTestScheduler(staticAddresses(), time.Minute)

	scheduler.Stop()
	scheduler.Start(context.TODO())
	scheduler.Stop()
}

// TestScheduler_ContextCancellation verifies that cancelling the parent context
// stops the scheduler gracefully.
func TestScheduler_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := newTestScheduler(staticAddresses(), time.Minute)
	scheduler.Start(ctx)

	go func() {
		for range scheduler.Results() {
		}
	}()

	cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancellation")
	}
}
