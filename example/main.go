package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/gpuboard"
)

func main() {
	// start mock GPU servers (see mock_server.go)
	go StartMockComfyServer(":8188", "NVIDIA GeForce RTX 4090", 24)
	go StartMockComfyServer(":8189", "NVIDIA GeForce RTX 3090", 24)
	go StartMockComfyServer(":8190", "NVIDIA RTX A6000", 48)
	time.Sleep(100 * time.Millisecond)

	// grid API: 1 host × 3 ports from one declaration
	servers, err := gpuboard.NewServerGrid(
		gpuboard.WithHosts("localhost"),
		gpuboard.WithPorts(8188, 8189, 8190),
	)
	if err != nil {
		slog.Error("failed to create server grid", "error", err)
		os.Exit(1)
	}

	// start the dashboard; the last server is offline and shows as a warning
	b, err := gpuboard.New(
		gpuboard.WithServers(servers...),
		gpuboard.WithServers("localhost:8191"),
		gpuboard.WithRefreshInterval(5*time.Second),
		gpuboard.WithRequestTimeout(2*time.Second),
		gpuboard.WithPort(8080),
		gpuboard.WithSnapshotCallback(func(s gpuboard.Snapshot) {
			if s.VRAMFreeGB < 2 {
				slog.Warn("low VRAM", "address", s.Address, "free_gb", s.VRAMFreeGB)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create gpuboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   GPUBoard Demo                                       ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Servers:                                            ║")
	fmt.Println("  ║   • 3 mock ComfyUI servers (ports 8188-8190)          ║")
	fmt.Println("  ║   • 1 offline server (port 8191)                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		slog.Error("gpuboard error", "error", err)
		os.Exit(1)
	}
}
