// Package poller provides the concurrent GPU server polling used by GPUBoard.
//
// This package is internal to GPUBoard. A poll cycle fans out one pipeline
// per server address (GET /system_stats, then GET /queue), parses both
// responses into a flat [Snapshot], and joins all pipelines before returning
// a [Cycle]. Servers that fail at any step are dropped from the snapshot set
// and reported as a [Failure]; a cycle itself never fails.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper (TLS verification off, no keep-alives, size limit)
//   - [Poller]: fan-out/fan-in poll of a list of addresses
//   - [Scheduler]: runs cycles on a timer or on demand, one cycle at a time
//   - [FetchError]: classified per-server failure (transport, protocol, schema)
//
// Users of the gpuboard library should not need to interact with this
// package directly. Configuration is done through the main gpuboard package.
package poller
