package gpuboard

import (
	"encoding/json"
	"time"

	"github.com/jpalmerr/gpuboard/internal/humanize"
)

// Status represents whether a GPU server answered a poll cycle.
//
// Status is a string type so it serialises and logs readably. Servers that
// fail to answer are dropped from a cycle rather than reported offline, so
// every [Snapshot] a caller sees carries [StatusOnline]; [StatusOffline]
// exists for consumers that keep their own history.
type Status string

const (
	// StatusOnline indicates both the system stats and queue calls succeeded.
	StatusOnline Status = "online"

	// StatusOffline indicates the server did not answer.
	StatusOffline Status = "offline"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// FailureKind classifies why a server was dropped from a cycle.
type FailureKind string

const (
	// FailureTransport covers connection errors, timeouts and unreadable bodies.
	FailureTransport FailureKind = "transport"

	// FailureProtocol covers non-200 responses.
	FailureProtocol FailureKind = "protocol"

	// FailureSchema covers invalid JSON and missing required fields.
	FailureSchema FailureKind = "schema"
)

// Snapshot is the polled state of one GPU server at one point in time.
//
// A Snapshot is only produced when the server answered both calls and
// reported every required field; there are no partially filled snapshots.
type Snapshot struct {
	// Address is the server's host:port, as configured.
	Address string

	// VRAMTotalGB and VRAMFreeGB are in GiB, rounded to two decimals.
	VRAMTotalGB float64
	VRAMFreeGB  float64

	// DeviceName is the shortened model name ("4090" for "NVIDIA GeForce
	// RTX 4090"); DeviceNameRaw is the name as reported.
	DeviceName    string
	DeviceNameRaw string

	// PythonVersion is empty when the server does not report it.
	PythonVersion string

	QueueRunning int
	QueuePending int

	// CurrentTask is empty when nothing is running or no task was found.
	CurrentTask string

	// Workflow is the workflow object of the running prompt, nil if absent.
	Workflow json.RawMessage

	Status Status

	// LastUpdate is the moment the snapshot was assembled.
	LastUpdate time.Time

	// GPUTemperatureC is nil when the server does not report a temperature.
	GPUTemperatureC *float64
}

// Failure describes a server dropped from a poll cycle.
type Failure struct {
	Address string
	Kind    FailureKind
	Err     error
}

// PollResult is the outcome of one poll cycle over every configured server.
type PollResult struct {
	// CycleID identifies the cycle in logs.
	CycleID string

	StartedAt  time.Time
	FinishedAt time.Time

	// Snapshots holds one entry per server that answered.
	Snapshots []Snapshot

	// Failures holds one entry per server that was dropped.
	Failures []Failure
}

// Humanize renders an elapsed duration the way the dashboard's Update
// column does: "45 sn önce", "2 dk önce", "2 saat önce", "1 gün önce".
func Humanize(d time.Duration) string {
	return humanize.Duration(d)
}
