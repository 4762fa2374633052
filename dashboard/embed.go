// Package dashboard provides the embedded web UI assets for GPUBoard.
//
// This package uses Go's embed directive to include the dashboard HTML, CSS,
// and JavaScript at compile time. This enables single-binary deployment
// without external asset files.
//
// The embedded assets are served by the server package at the root path ("/").
// Users of the gpuboard library should not need to interact with this
// package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Server table page with inline CSS and JavaScript
//
// The page reads /api/board, follows /api/sse for updates and posts to
// /api/servers and /api/refresh. The "{{.Title}}" marker is replaced with
// the configured title when served.
//
//go:embed assets/*
var Assets embed.FS
