// Standalone mock ComfyUI server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver -addr :8188
//
// Then in another terminal:
//
//	go run ./cmd/gpuboard serve -c example/config.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
)

func main() {
	addr := flag.String("addr", ":8188", "listen address")
	device := flag.String("device", "NVIDIA GeForce RTX 4090", "reported device name")
	flag.Parse()

	fmt.Printf("Mock ComfyUI server starting on %s (%s)\n", *addr, *device)
	fmt.Println("Each /queue call advances the queue by one step")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var step atomic.Int64

	http.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		free := int64(20-step.Load()%16) << 30
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"system": map[string]any{"python_version": "3.11.9 (main, Apr 2 2024)"},
			"devices": []map[string]any{{
				"name":            "cuda:0 " + *device + " : cudaMallocAsync",
				"vram_total":      int64(24) << 30,
				"vram_free":       free,
				"gpu_temperature": 45 + step.Load()%20,
			}},
		})
	})

	http.HandleFunc("/queue", func(w http.ResponseWriter, r *http.Request) {
		n := step.Add(1)
		running := []any{}
		if n%4 != 0 {
			running = append(running, []any{n, fmt.Sprintf("prompt-%d", n), map[string]any{
				"extra_pnginfo": map[string]any{"workflow": map[string]any{"nodes": []any{
					map[string]any{"widgets_values": []any{"sdxl_base.safetensors"}},
					map[string]any{"widgets_values": []any{fmt.Sprintf("batch %d, studio portrait", n)}},
				}}},
			}})
		}
		pending := []any{}
		for i := int64(0); i < n%3; i++ {
			pending = append(pending, []any{n + i + 1, "pending", map[string]any{}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"queue_running": running,
			"queue_pending": pending,
		})
	})

	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
