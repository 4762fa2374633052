package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status values carried by [Snapshot.Status].
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Snapshot is one server's polled state at one point in time.
//
// A Snapshot is only produced when both remote calls succeeded and all
// required fields were present; there are no partially filled snapshots.
type Snapshot struct {
	Address         string
	VRAMTotalGB     float64
	VRAMFreeGB      float64
	DeviceName      string
	DeviceNameRaw   string
	PythonVersion   string
	QueueRunning    int
	QueuePending    int
	CurrentTask     string
	Workflow        json.RawMessage
	Status          string
	LastUpdate      time.Time
	GPUTemperatureC *float64
}

// Failure records a server that was dropped from a cycle.
type Failure struct {
	Address string
	Kind    FailureKind
	Err     error
}

// Cycle is the combined result of one fan-out/fan-in pass.
type Cycle struct {
	// ID identifies the cycle in logs.
	ID string

	StartedAt  time.Time
	FinishedAt time.Time

	// Snapshots holds one entry per successfully polled address.
	Snapshots []Snapshot

	// Failures holds one entry per address that was dropped.
	Failures []Failure
}

// TaskExtractor derives the current task from the raw prompt metadata of
// the first running queue entry.
//
// This is the poller-internal version of gpuboard.TaskExtractor, kept
// separate to avoid an import cycle.
type TaskExtractor func(meta []byte) string

// Config configures a [Poller].
type Config struct {
	// Timeout bounds each HTTP request. Zero selects [DefaultTimeout].
	Timeout time.Duration

	// MaxConcurrency caps the number of server pipelines in flight.
	// Zero or negative polls every address at once.
	MaxConcurrency int

	// Extractor overrides the current-task extraction. nil selects
	// [WorkflowTask].
	Extractor TaskExtractor

	// Logger receives per-server warnings and cycle summaries.
	// nil selects slog.Default().
	Logger *slog.Logger
}

// Poller polls GPU servers. A Poller is safe for concurrent use, although
// the [Scheduler] never runs two cycles at once.
type Poller struct {
	client         *Client
	maxConcurrency int
	extractor      TaskExtractor
	logger         *slog.Logger
	now            func() time.Time
}

// NewPoller creates a [Poller] from cfg.
func NewPoller(cfg Config) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:         NewClient(cfg.Timeout),
		maxConcurrency: cfg.MaxConcurrency,
		extractor:      cfg.Extractor,
		logger:         logger,
		now:            time.Now,
	}
}

// Close releases the underlying HTTP client's resources.
func (p *Poller) Close() {
	p.client.Close()
}

// Poll runs one cycle over addresses and waits for every pipeline to finish.
//
// Failed addresses are logged and reported in [Cycle.Failures]; Poll itself
// never fails. Snapshots keep the relative input order of the addresses that
// succeeded. Duplicate addresses are polled once per occurrence.
func (p *Poller) Poll(ctx context.Context, addresses []string) Cycle {
	cycle := Cycle{
		ID:        uuid.NewString(),
		StartedAt: p.now(),
	}

	type slot struct {
		snap Snapshot
		err  error
	}
	slots := make([]slot, len(addresses))

	workers := p.maxConcurrency
	if workers <= 0 || workers > len(addresses) {
		workers = len(addresses)
	}

	jobs := make(chan int, len(addresses))
	for i := range addresses {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				snap, err := p.PollServer(ctx, addresses[i])
				slots[i] = slot{snap: snap, err: err}
			}
		}()
	}
	wg.Wait()

	for i, s := range slots {
		if s.err != nil {
			f := Failure{Address: addresses[i], Kind: KindTransport, Err: s.err}
			var fe *FetchError
			if errors.As(s.err, &fe) {
				f.Kind = fe.Kind
			}
			cycle.Failures = append(cycle.Failures, f)
			p.logger.Warn("server poll failed",
				"cycle_id", cycle.ID,
				"address", f.Address,
				"kind", string(f.Kind),
				"error", s.err.Error(),
			)
			continue
		}
		cycle.Snapshots = append(cycle.Snapshots, s.snap)
	}

	cycle.FinishedAt = p.now()
	p.logger.Info("poll cycle completed",
		"cycle_id", cycle.ID,
		"servers", len(addresses),
		"online", len(cycle.Snapshots),
		"failed", len(cycle.Failures),
		"duration_ms", cycle.FinishedAt.Sub(cycle.StartedAt).Milliseconds(),
	)

	return cycle
}

// PollServer runs the pipeline for a single address: GET /system_stats,
// then GET /queue, then assembly. Any failure returns a *[FetchError].
func (p *Poller) PollServer(ctx context.Context, address string) (Snapshot, error) {
	base, err := BaseURL(address)
	if err != nil {
		return Snapshot{}, &FetchError{Address: address, Kind: KindTransport, Err: err}
	}

	body, err := p.fetch(ctx, address, base, "/system_stats")
	if err != nil {
		return Snapshot{}, err
	}
	stats, err := parseSystemStats(body)
	if err != nil {
		return Snapshot{}, &FetchError{Address: address, Path: "/system_stats", Kind: KindSchema, Err: err}
	}

	body, err = p.fetch(ctx, address, base, "/queue")
	if err != nil {
		return Snapshot{}, err
	}
	queue, err := parseQueue(body)
	if err != nil {
		return Snapshot{}, &FetchError{Address: address, Path: "/queue", Kind: KindSchema, Err: err}
	}

	snap := Snapshot{
		Address:         address,
		VRAMTotalGB:     stats.vramTotalGB,
		VRAMFreeGB:      stats.vramFreeGB,
		DeviceName:      stats.deviceName,
		DeviceNameRaw:   stats.deviceNameRaw,
		PythonVersion:   stats.pythonVersion,
		QueueRunning:    queue.running,
		QueuePending:    queue.pending,
		Status:          StatusOnline,
		GPUTemperatureC: stats.gpuTemperature,
	}
	if queue.meta != nil {
		snap.CurrentTask = p.currentTask(address, queue.meta)
		snap.Workflow = Workflow(queue.meta)
	}
	snap.LastUpdate = p.now()

	return snap, nil
}

// fetch performs one GET and classifies transport and protocol failures.
func (p *Poller) fetch(ctx context.Context, address, base, path string) ([]byte, error) {
	resp := p.client.Get(ctx, base+path)
	if resp.Error != nil {
		return nil, &FetchError{Address: address, Path: path, Kind: KindTransport, Err: resp.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Address:    address,
			Path:       path,
			Kind:       KindProtocol,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	return resp.Body, nil
}

// currentTask runs the configured extractor with panic recovery.
// If the extractor panics, it logs the full stack trace with a correlation ID
// and the task degrades to "".
func (p *Poller) currentTask(address string, meta []byte) (task string) {
	if p.extractor == nil {
		return WorkflowTask(meta)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task extractor panic",
				"correlation_id", uuid.NewString(),
				"address", address,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			task = ""
		}
	}()
	return p.extractor(meta)
}
