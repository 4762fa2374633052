package gpuboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jpalmerr/gpuboard/dashboard"
	"github.com/jpalmerr/gpuboard/internal/poller"
	"github.com/jpalmerr/gpuboard/internal/server"
	"github.com/jpalmerr/gpuboard/internal/serverlist"
	"github.com/jpalmerr/gpuboard/internal/session"
	"github.com/jpalmerr/gpuboard/internal/store"
)

const (
	defaultRefreshInterval = 10 * time.Second
	defaultRequestTimeout  = poller.DefaultTimeout
	defaultPort            = 8080
)

// ErrNotRunning is returned by [Board.AddServers] when the board has not
// been started.
var ErrNotRunning = errors.New("board is not running")

// Board is the main orchestrator for GPU server polling and dashboard serving.
//
// Board polls every configured server, keeps the latest snapshot table and
// serves it as a web dashboard with live updates. It is created using [New]
// with functional options and started with [Board.Start].
//
// The typical lifecycle is:
//
//	b, err := gpuboard.New(gpuboard.WithServers("10.0.0.5:8188"))
//	if err != nil {
//	    slog.Error("failed to create board", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown.
type Board struct {
	title             string
	servers           []string
	serversFile       string
	refreshInterval   time.Duration
	requestTimeout    time.Duration
	port              int
	maxConcurrency    int
	logger            *slog.Logger
	extractor         TaskExtractor
	snapshotCallbacks []func(Snapshot)
	cycleCallbacks    []func(PollResult)

	// run state, set for the duration of Start
	mu    sync.RWMutex
	sess  *session.Session
	sched *poller.Scheduler
}

// New creates a new [Board] instance with the given options.
//
// A board may start with no servers; they can be added from the dashboard
// or through a servers file. Defaults:
//   - Refresh interval: 10 seconds
//   - Request timeout: 10 seconds
//   - Port: 8080
//   - Max concurrency: unbounded
//
// Returns an error if any option or server address is invalid.
//
// Example:
//
//	b, err := gpuboard.New(
//	    gpuboard.WithServers("10.0.0.5:8188", "10.0.0.6:8188"),
//	    gpuboard.WithRefreshInterval(30 * time.Second),
//	    gpuboard.WithPort(9090),
//	)
func New(opts ...Option) (*Board, error) {
	cfg := &boardConfig{
		refreshInterval: defaultRefreshInterval,
		requestTimeout:  defaultRequestTimeout,
		port:            defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	servers := make([]string, 0, len(cfg.servers))
	for _, raw := range cfg.servers {
		addr, err := NormalizeAddress(raw)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(servers, addr) {
			servers = append(servers, addr)
		}
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Board{
		title:             cfg.title,
		servers:           servers,
		serversFile:       cfg.serversFile,
		refreshInterval:   cfg.refreshInterval,
		requestTimeout:    cfg.requestTimeout,
		port:              cfg.port,
		maxConcurrency:    cfg.maxConcurrency,
		logger:            logger,
		extractor:         cfg.extractor,
		snapshotCallbacks: cfg.snapshotCallbacks,
		cycleCallbacks:    cfg.cycleCallbacks,
	}, nil
}

// Start begins polling servers and serving the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - All servers are polled immediately, then at the refresh interval
//   - The HTTP server starts on the configured port
//   - The servers file, if any, is watched for edits
//   - The dashboard is available at http://localhost:<port>
//
// Returns nil on graceful shutdown. Returns an error if the servers file
// cannot be read, if the board is already running, or if the HTTP server
// fails to start.
func (b *Board) Start(ctx context.Context) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	sess, err := b.newSession()
	if err != nil {
		return err
	}

	p := poller.NewPoller(b.pollerConfig())
	sched := poller.NewScheduler(p, sess.Servers, b.refreshInterval, b.logger)

	b.mu.Lock()
	if b.sess != nil {
		b.mu.Unlock()
		p.Close()
		return errors.New("board is already running")
	}
	b.sess, b.sched = sess, sched
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.sess, b.sched = nil, nil
		b.mu.Unlock()
	}()

	b.logger.Info("gpuboard starting", "server_count", len(sess.Servers()))
	if b.refreshInterval > 0 {
		b.logger.Info("refresh configured", "interval", b.refreshInterval.String())
	} else {
		b.logger.Info("automatic refresh disabled")
	}
	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", b.port))

	boardStore := store.NewMemoryStore()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// track the results consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for cycle := range sched.Results() {
			b.handleCycle(cycle, boardStore, sess)
		}
	}()

	var watchDone <-chan struct{}
	if b.serversFile != "" {
		watchDone, err = serverlist.Watch(runCtx, b.serversFile, b.logger, func(addrs []string) {
			if sess.Replace(mergeServers(b.servers, addrs)) {
				b.logger.Info("server list changed", "server_count", len(sess.Servers()))
				sched.Trigger()
			}
		})
		if err != nil {
			b.logger.Warn("servers file will not be watched", "path", b.serversFile, "error", err)
		}
	}

	// cleanup ensures the scheduler is stopped and all cycles are processed
	cleanup := func() {
		cancelRun()
		sched.Stop() // closes results channel
		wg.Wait()
		if watchDone != nil {
			<-watchDone
		}
	}

	sched.Start(runCtx)

	httpServer := server.NewServer(boardStore, b, b.port, dashboard.Assets, b.title, b.logger)
	if err := httpServer.Start(runCtx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	b.logger.Info("gpuboard stopped")
	return nil
}

// PollOnce runs a single poll cycle over the configured servers (including
// the servers file, if any) without starting the dashboard.
//
// Snapshot callbacks are not invoked.
func (b *Board) PollOnce(ctx context.Context) (PollResult, error) {
	sess, err := b.newSession()
	if err != nil {
		return PollResult{}, err
	}

	p := poller.NewPoller(b.pollerConfig())
	defer p.Close()

	return toPollResult(p.Poll(ctx, sess.Servers())), nil
}

// Servers returns the current server list in insertion order.
//
// While the board is running this includes servers added from the dashboard
// and the servers file. The returned slice is a copy.
func (b *Board) Servers() []string {
	b.mu.RLock()
	sess := b.sess
	b.mu.RUnlock()

	if sess != nil {
		return sess.Servers()
	}
	return slices.Clone(b.servers)
}

// AddServers appends addresses to the running board's server list and, when
// a servers file is configured, persists the new list. Addresses already on
// the list are skipped. It returns the addresses actually added.
//
// The new servers are polled in the next cycle; call [Board.Refresh] to
// poll them right away.
func (b *Board) AddServers(addrs ...string) ([]string, error) {
	b.mu.RLock()
	sess := b.sess
	b.mu.RUnlock()

	if sess == nil {
		return nil, ErrNotRunning
	}
	return sess.Add(addrs...)
}

// Refresh requests an immediate poll cycle. It reports whether a new cycle
// was started; false means the request was folded into the cycle already
// in flight, or the board is not running.
func (b *Board) Refresh() bool {
	b.mu.RLock()
	sched := b.sched
	b.mu.RUnlock()

	if sched == nil {
		return false
	}
	return sched.Trigger()
}

// Busy reports whether a poll cycle is in flight.
func (b *Board) Busy() bool {
	b.mu.RLock()
	sched := b.sched
	b.mu.RUnlock()

	return sched != nil && sched.Busy()
}

// Port returns the configured HTTP port for the dashboard server.
func (b *Board) Port() int {
	return b.port
}

// RefreshInterval returns the configured interval between poll cycles.
// Zero means automatic refresh is disabled.
func (b *Board) RefreshInterval() time.Duration {
	return b.refreshInterval
}

// RequestTimeout returns the per-request timeout used when polling.
func (b *Board) RequestTimeout() time.Duration {
	return b.requestTimeout
}

// newSession builds the run's session from the configured servers plus the
// servers file.
func (b *Board) newSession() (*session.Session, error) {
	sess, err := session.New(b.servers, b.serversFile)
	if err != nil {
		return nil, err
	}
	if b.serversFile == "" {
		return sess, nil
	}

	saved, err := serverlist.Load(b.serversFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load servers file: %w", err)
	}
	sess.Replace(mergeServers(b.servers, saved))
	return sess, nil
}

func (b *Board) pollerConfig() poller.Config {
	cfg := poller.Config{
		Timeout:        b.requestTimeout,
		MaxConcurrency: b.maxConcurrency,
		Logger:         b.logger,
	}
	if b.extractor != nil {
		cfg.Extractor = poller.TaskExtractor(b.extractor)
	}
	return cfg
}

// handleCycle publishes a finished cycle and runs the callbacks.
func (b *Board) handleCycle(cycle poller.Cycle, st store.Store, sess *session.Session) {
	// store update first (callbacks fire after data is published)
	st.Publish(cycleToBoard(cycle))
	sess.MarkRefreshed(cycle.FinishedAt)

	for _, s := range cycle.Snapshots {
		b.logger.Debug("server polled",
			"address", s.Address,
			"device", s.DeviceName,
			"vram_free_gb", s.VRAMFreeGB,
			"queue_running", s.QueueRunning,
			"queue_pending", s.QueuePending,
		)
	}

	if len(b.snapshotCallbacks) > 0 {
		for _, s := range cycle.Snapshots {
			snap := toSnapshot(s)
			for _, cb := range b.snapshotCallbacks {
				invokeCallbackSafe(cb, snap, b.logger, "address", s.Address)
			}
		}
	}

	if len(b.cycleCallbacks) > 0 {
		result := toPollResult(cycle)
		for _, cb := range b.cycleCallbacks {
			invokeCallbackSafe(cb, result, b.logger, "cycle_id", cycle.ID)
		}
	}
}

// mergeServers returns configured followed by the saved addresses.
// Duplicates and invalid entries are dropped by the session.
func mergeServers(configured, saved []string) []string {
	merged := make([]string, 0, len(configured)+len(saved))
	merged = append(merged, configured...)
	return append(merged, saved...)
}

// cycleToBoard converts a poller cycle to the dashboard's stored form.
func cycleToBoard(cycle poller.Cycle) store.Board {
	board := store.Board{
		CycleID:     cycle.ID,
		RefreshedAt: cycle.FinishedAt,
		Servers:     make([]store.Row, 0, len(cycle.Snapshots)),
		Warnings:    make([]store.Warning, 0, len(cycle.Failures)),
	}
	for _, s := range cycle.Snapshots {
		board.Servers = append(board.Servers, store.Row{
			Address:         s.Address,
			VRAMTotalGB:     s.VRAMTotalGB,
			VRAMFreeGB:      s.VRAMFreeGB,
			QueueRunning:    s.QueueRunning,
			QueuePending:    s.QueuePending,
			CurrentTask:     s.CurrentTask,
			DeviceName:      s.DeviceName,
			DeviceNameRaw:   s.DeviceNameRaw,
			PythonVersion:   s.PythonVersion,
			LastUpdate:      s.LastUpdate,
			Status:          s.Status,
			Workflow:        copyBytes(s.Workflow),
			GPUTemperatureC: copyFloat(s.GPUTemperatureC),
		})
	}
	for _, f := range cycle.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		board.Warnings = append(board.Warnings, store.Warning{
			Address: f.Address,
			Kind:    string(f.Kind),
			Message: msg,
		})
	}
	return board
}

// toSnapshot converts an internal snapshot to the public type.
// Creates copies of mutable fields to prevent data races.
func toSnapshot(s poller.Snapshot) Snapshot {
	return Snapshot{
		Address:         s.Address,
		VRAMTotalGB:     s.VRAMTotalGB,
		VRAMFreeGB:      s.VRAMFreeGB,
		DeviceName:      s.DeviceName,
		DeviceNameRaw:   s.DeviceNameRaw,
		PythonVersion:   s.PythonVersion,
		QueueRunning:    s.QueueRunning,
		QueuePending:    s.QueuePending,
		CurrentTask:     s.CurrentTask,
		Workflow:        copyBytes(s.Workflow),
		Status:          Status(s.Status),
		LastUpdate:      s.LastUpdate,
		GPUTemperatureC: copyFloat(s.GPUTemperatureC),
	}
}

func toPollResult(cycle poller.Cycle) PollResult {
	result := PollResult{
		CycleID:    cycle.ID,
		StartedAt:  cycle.StartedAt,
		FinishedAt: cycle.FinishedAt,
		Snapshots:  make([]Snapshot, 0, len(cycle.Snapshots)),
		Failures:   make([]Failure, 0, len(cycle.Failures)),
	}
	for _, s := range cycle.Snapshots {
		result.Snapshots = append(result.Snapshots, toSnapshot(s))
	}
	for _, f := range cycle.Failures {
		result.Failures = append(result.Failures, Failure{
			Address: f.Address,
			Kind:    FailureKind(f.Kind),
			Err:     f.Err,
		})
	}
	return result
}

// copyBytes returns a copy of the byte slice, or nil if input is nil.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// invokeCallbackSafe calls a callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe[T any](cb func(T), v T, logger *slog.Logger, attrs ...any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked", append([]any{"panic", r}, attrs...)...)
		}
	}()
	cb(v)
}
