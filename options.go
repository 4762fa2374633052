package gpuboard

import (
	"errors"
	"log/slog"
	"time"
)

// boardConfig holds mutable state during Board construction.
type boardConfig struct {
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
}

// Option is a function that configures a [Board] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*boardConfig) error

// WithServers adds server addresses ("host:port") to the polling list.
//
// Can be called multiple times. Addresses are normalised with
// [NormalizeAddress] when the board is created; duplicates keep their first
// position.
//
// Example:
//
//	b, err := gpuboard.New(
//	    gpuboard.WithServers("10.0.0.5:8188", "10.0.0.6:8188"),
//	)
func WithServers(addrs ...string) Option {
	return func(cfg *boardConfig) error {
		cfg.servers = append(cfg.servers, addrs...)
		return nil
	}
}

// WithServersFile persists the server list as a JSON array at path.
//
// Addresses found in the file are polled alongside those given with
// [WithServers], servers added from the dashboard are written back, and
// hand edits to the file are picked up while the board runs.
func WithServersFile(path string) Option {
	return func(cfg *boardConfig) error {
		if path == "" {
			return errors.New("servers file path cannot be empty")
		}
		cfg.serversFile = path
		return nil
	}
}

// WithRefreshInterval sets how often all servers are polled.
//
// Defaults to 10 seconds. Zero disables automatic refresh; cycles then run
// only at start and on manual refresh.
//
// Returns an error if the duration is negative or between zero and one
// second.
func WithRefreshInterval(d time.Duration) Option {
	return func(cfg *boardConfig) error {
		if d < 0 {
			return errors.New("refresh interval cannot be negative")
		}
		if d > 0 && d < time.Second {
			return errors.New("refresh interval must be at least 1 second")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithRequestTimeout bounds each HTTP request to a GPU server.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *boardConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *boardConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency caps how many servers are polled at once.
//
// By default every server gets its own goroutine. Use this for large farms
// or constrained networks.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *boardConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Board instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *boardConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTaskExtractor overrides how the "current task" column is derived.
// If not specified, [DefaultTaskExtractor] is used.
//
// Example:
//
//	b, err := gpuboard.New(
//	    gpuboard.WithServers(addrs...),
//	    gpuboard.WithTaskExtractor(gpuboard.JSONPathTaskExtractor("client_id")),
//	)
//
// Returns an error if the extractor is nil.
func WithTaskExtractor(e TaskExtractor) Option {
	return func(cfg *boardConfig) error {
		if e == nil {
			return errors.New("task extractor cannot be nil")
		}
		cfg.extractor = e
		return nil
	}
}

// WithSnapshotCallback registers a function called for every snapshot of
// every completed cycle, in cycle order.
//
// Callbacks run after the dashboard has been updated, synchronously from a
// single goroutine, and must not block. Panics within callbacks are recovered
// and logged.
//
// Example:
//
//	gpuboard.WithSnapshotCallback(func(s gpuboard.Snapshot) {
//	    if s.VRAMFreeGB < 1 {
//	        log.Printf("%s is out of VRAM", s.Address)
//	    }
//	})
//
// Nil callbacks are silently ignored.
func WithSnapshotCallback(cb func(Snapshot)) Option {
	return func(cfg *boardConfig) error {
		if cb == nil {
			return nil
		}
		cfg.snapshotCallbacks = append(cfg.snapshotCallbacks, cb)
		return nil
	}
}

// WithCycleCallback registers a function called once per completed cycle
// with its full result, including failures. The same rules as
// [WithSnapshotCallback] apply.
//
// Nil callbacks are silently ignored.
func WithCycleCallback(cb func(PollResult)) Option {
	return func(cfg *boardConfig) error {
		if cb == nil {
			return nil
		}
		cfg.cycleCallbacks = append(cfg.cycleCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "GPUBoard".
func WithTitle(title string) Option {
	return func(cfg *boardConfig) error {
		cfg.title = title
		return nil
	}
}
