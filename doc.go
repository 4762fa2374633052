// Package gpuboard provides an embeddable dashboard for monitoring a farm of
// ComfyUI GPU servers in real time.
//
// A [Board] polls every server's /system_stats and /queue endpoints, turns
// the answers into one [Snapshot] per server and serves the resulting table
// as a web page that updates itself over Server-Sent Events. Servers that
// cannot be reached are listed as warnings instead of rows.
//
// # Quick Start
//
// Create a board and start it with graceful shutdown:
//
//	b, _ := gpuboard.New(gpuboard.WithServers("10.0.0.5:8188", "10.0.0.6:8188"))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// GPUBoard uses the functional options pattern for configuration:
//
//	b, err := gpuboard.New(
//	    gpuboard.WithServers(addrs...),
//	    gpuboard.WithServersFile("servers.json"),
//	    gpuboard.WithRefreshInterval(30 * time.Second),
//	    gpuboard.WithRequestTimeout(5 * time.Second),
//	    gpuboard.WithPort(9090),
//	)
//
// Large farms with regular naming can be described with [NewServerGrid]:
//
//	addrs, err := gpuboard.NewServerGrid(
//	    gpuboard.WithHosts("10.0.0.5", "10.0.0.6"),
//	    gpuboard.WithPorts(8188, 8189),
//	)
//
// # Servers File
//
// With [WithServersFile] the server list is kept in a JSON array of
// addresses. Servers added from the dashboard are written back to it, and
// edits made by hand are picked up while the board runs.
//
// # Task Extractors
//
// The "current task" column is derived from the metadata of the first
// running queue item. Built-in extractors:
//
//   - [WorkflowTaskExtractor]: First widget value of the last workflow node
//   - [JSONPathTaskExtractor]: A value selected with a gjson path
//   - [RegexTaskExtractor]: The first capture group of a pattern
//   - [FirstMatch]: Tries several extractors in order
//   - [DefaultTaskExtractor]: The workflow extractor
//
// # One-off Polling
//
// [Board.PollOnce] runs a single cycle without the dashboard, which suits
// scripts and command-line use.
//
// # Architecture
//
// GPUBoard consists of several internal packages (under internal/):
//
//   - internal/poller: ComfyUI client, concurrent polling and the refresh scheduler
//   - internal/store: In-memory board with pub/sub for real-time updates
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - internal/session: The live server list of a running board
//   - internal/serverlist: Servers file persistence and watching
//   - internal/humanize: Relative "time ago" labels
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package gpuboard
