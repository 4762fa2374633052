package gpuboard

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for use as a concurrent log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestWithSnapshotCallback_ReceivesSnapshot(t *testing.T) {
	addr := newComfyServer(t, 0)

	var got Snapshot
	var once sync.Once
	done := make(chan struct{})

	b, err := New(
		WithServers(addr),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
		WithSnapshotCallback(func(s Snapshot) {
			once.Do(func() {
				got = s
				close(done)
			})
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, b)
	defer func() { _ = stop() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for callback")
	}

	if got.Address != addr {
		t.Errorf("Address = %q, want %q", got.Address, addr)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want %q", got.Status, StatusOnline)
	}
	if got.CurrentTask != "city at night" {
		t.Errorf("CurrentTask = %q, want %q", got.CurrentTask, "city at night")
	}
	if got.LastUpdate.IsZero() {
		t.Error("LastUpdate should not be zero")
	}
}

func TestWithCycleCallback_ReportsFailures(t *testing.T) {
	healthy := newComfyServer(t, 0)
	broken := newComfyServer(t, http.StatusServiceUnavailable)

	results := make(chan PollResult, 4)

	b, err := New(
		WithServers(healthy, broken),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
		WithCycleCallback(func(r PollResult) {
			select {
			case results <- r:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, b)
	defer func() { _ = stop() }()

	var r PollResult
	select {
	case r = <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for cycle callback")
	}

	if len(r.Snapshots) != 1 {
		t.Errorf("Snapshots = %d, want 1", len(r.Snapshots))
	}
	if len(r.Failures) != 1 || r.Failures[0].Address != broken {
		t.Fatalf("Failures = %+v, want one for %s", r.Failures, broken)
	}
	if r.Failures[0].Kind != FailureProtocol {
		t.Errorf("Kind = %q, want %q", r.Failures[0].Kind, FailureProtocol)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		t.Error("FinishedAt should not be before StartedAt")
	}
}

func TestWithSnapshotCallback_PanicRecovery(t *testing.T) {
	addr := newComfyServer(t, 0)

	var normalCalled atomic.Bool
	logBuf := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuf, nil))

	b, err := New(
		WithServers(addr),
		WithPort(freePort(t)),
		WithLogger(logger),
		WithSnapshotCallback(func(Snapshot) {
			panic("intentional test panic")
		}),
		WithSnapshotCallback(func(Snapshot) {
			normalCalled.Store(true)
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, b)

	if !waitFor(t, 5*time.Second, normalCalled.Load) {
		t.Error("subsequent callbacks should still run after panic")
	}
	if err := stop(); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}

	if !strings.Contains(logBuf.String(), "callback panicked") {
		t.Error("panic should have been logged")
	}
}

func TestWithSnapshotCallback_NilIsSafe(t *testing.T) {
	b, err := New(
		WithServers(newComfyServer(t, 0)),
		WithSnapshotCallback(nil),
		WithCycleCallback(nil),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v, want nil (nil callback should be accepted)", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := b.Start(ctx); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
}

func TestWithSnapshotCallback_NoSharedReferences(t *testing.T) {
	addr := newComfyServer(t, 0)

	var mu sync.Mutex
	var captured []Snapshot
	done := make(chan struct{})

	mutate := func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(s.Workflow) > 0 {
			s.Workflow[0] = 'X'
		}
		if s.GPUTemperatureC != nil {
			*s.GPUTemperatureC = -1
		}
	}
	capture := func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		captured = append(captured, s)
		if len(captured) == 1 {
			close(done)
		}
	}

	b, err := New(
		WithServers(addr),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
		WithSnapshotCallback(mutate),
		WithSnapshotCallback(capture),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, b)
	defer func() { _ = stop() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for callback")
	}

	mu.Lock()
	defer mu.Unlock()

	// both callbacks receive the same value, so mutations through one are
	// visible to the next; the board's own data must stay intact
	board, err := getBoard(t, b.Port())
	if err != nil {
		t.Fatalf("getBoard() error = %v", err)
	}
	if len(board.Servers) != 1 {
		t.Fatalf("Servers = %d, want 1", len(board.Servers))
	}
	row := board.Servers[0]
	if row.GPUTemperatureC == nil || *row.GPUTemperatureC != 61 {
		t.Errorf("stored temperature = %v, want 61", row.GPUTemperatureC)
	}
	if len(row.Workflow) == 0 || row.Workflow[0] != '{' {
		t.Errorf("stored workflow was mutated: %s", row.Workflow)
	}
}

func TestWithSnapshotCallback_ExecutionOrder(t *testing.T) {
	var order []int
	var mu sync.Mutex
	done := make(chan struct{})
	var once sync.Once

	record := func(n int) func(Snapshot) {
		return func(Snapshot) {
			mu.Lock()
			order = append(order, n)
			complete := len(order) >= 3
			mu.Unlock()
			if complete {
				once.Do(func() { close(done) })
			}
		}
	}

	b, err := New(
		WithServers(newComfyServer(t, 0)),
		WithPort(freePort(t)),
		WithLogger(testLogger()),
		WithSnapshotCallback(record(1)),
		WithSnapshotCallback(record(2)),
		WithSnapshotCallback(record(3)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stop := startBoard(t, b)
	defer func() { _ = stop() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for callbacks")
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callback order = %v, want [1 2 3 ...]", order)
	}
}
