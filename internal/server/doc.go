// Package server provides the HTTP server for the GPUBoard dashboard and API.
//
// This package is internal to GPUBoard and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: board, server list and manual refresh under "/api"
//   - Server-Sent Events: Real-time board updates at "/api/sse"
//
// Relative "update" times are rendered per request so that a board that has
// not been refreshed for a while still reads correctly.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the gpuboard library should not need to interact with this
// package directly. The server is started automatically by [gpuboard.Board.Start].
package server
