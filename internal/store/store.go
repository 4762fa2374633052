package store

import (
	"encoding/json"
	"time"
)

// Row is one line of the dashboard table: a server snapshot in its storage
// form, optimised for JSON serialisation (used by the REST API and SSE). It
// is decoupled from the poller's internal types to allow independent
// evolution.
type Row struct {
	// Address is the server's host:port.
	Address string `json:"address"`

	VRAMTotalGB  float64 `json:"vram_total_gb"`
	VRAMFreeGB   float64 `json:"vram_free_gb"`
	QueueRunning int     `json:"queue_running"`
	QueuePending int     `json:"queue_pending"`

	// CurrentTask is empty when nothing is running or no task was found.
	CurrentTask string `json:"current_task"`

	DeviceName    string `json:"device_name"`
	DeviceNameRaw string `json:"device_name_raw"`
	PythonVersion string `json:"python_version"`

	// LastUpdate is when the snapshot was assembled.
	LastUpdate time.Time `json:"last_update"`

	// Update is LastUpdate in humanized form. It is filled in by readers at
	// render time and is empty in stored rows.
	Update string `json:"update,omitempty"`

	// Status is "online" or "offline".
	Status string `json:"status"`

	// Workflow is the raw workflow object of the running prompt, if any.
	Workflow json.RawMessage `json:"workflow,omitempty"`

	// GPUTemperatureC is nil when the server does not report a temperature.
	GPUTemperatureC *float64 `json:"gpu_temperature_c"`
}

// Warning is an operator-facing message about a server dropped from the
// last cycle.
type Warning struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Board is the full dashboard state after a poll cycle.
type Board struct {
	// CycleID identifies the cycle that produced this board.
	CycleID string `json:"cycle_id"`

	// RefreshedAt is when the cycle finished; zero before the first cycle.
	RefreshedAt time.Time `json:"refreshed_at"`

	// Servers holds the rows of every server that answered, sorted by address.
	Servers []Row `json:"servers"`

	// Warnings holds the servers that were dropped from the cycle.
	Warnings []Warning `json:"warnings"`

	// Refreshing reports a cycle in flight. Like Row.Update it is filled
	// in by readers.
	Refreshing bool `json:"refreshing"`
}

// Store defines the interface for storing and subscribing to board updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Publish replaces the current board and notifies all subscribers.
	// Servers missing from the new board disappear from the table.
	Publish(board Board)

	// Get returns the current board.
	// The returned value is a copy; modifications do not affect the store.
	Get() Board

	// Subscribe returns a channel that receives board updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Board

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Board)
}
