package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockGPU tracks the simulated load of one fake GPU server.
type mockGPU struct {
	mu        sync.Mutex
	device    string
	totalGB   int64
	usedGB    int64
	running   int
	pending   int
	prompt    string
	nextJobAt time.Time
}

var prompts = []string{
	"a lighthouse at dusk, oil painting",
	"city at night, neon, rain",
	"portrait of an astronaut, studio lighting",
	"isometric village, low poly",
}

// StartMockComfyServer runs a fake ComfyUI server whose queue and VRAM use
// change every 10-30 seconds.
// Call this in a goroutine before starting the board.
func StartMockComfyServer(addr, device string, totalGB int64) {
	gpu := &mockGPU{device: device, totalGB: totalGB}

	mux := http.NewServeMux()
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		gpu.tick()
		gpu.mu.Lock()
		resp := map[string]any{
			"system": map[string]any{"python_version": "3.10.12 (main, Nov 20 2023, 15:14:05) [GCC 11.4.0]"},
			"devices": []map[string]any{{
				"name":            "cuda:0 " + gpu.device + " : cudaMallocAsync",
				"vram_total":      gpu.totalGB << 30,
				"vram_free":       (gpu.totalGB - gpu.usedGB) << 30,
				"gpu_temperature": 40 + 10*gpu.running + rand.Intn(5),
			}},
		}
		gpu.mu.Unlock()
		writeMockJSON(w, resp)
	})
	mux.HandleFunc("/queue", func(w http.ResponseWriter, r *http.Request) {
		gpu.tick()
		gpu.mu.Lock()
		running := make([]any, 0, gpu.running)
		if gpu.running > 0 {
			running = append(running, []any{1, "prompt-1", map[string]any{
				"extra_pnginfo": map[string]any{"workflow": map[string]any{"nodes": []any{
					map[string]any{"type": "CheckpointLoaderSimple", "widgets_values": []any{"sdxl_base.safetensors"}},
					map[string]any{"type": "CLIPTextEncode", "widgets_values": []any{gpu.prompt}},
				}}},
			}})
		}
		pending := make([]any, 0, gpu.pending)
		for i := 0; i < gpu.pending; i++ {
			pending = append(pending, []any{i + 2, "prompt-pending", map[string]any{}})
		}
		gpu.mu.Unlock()
		writeMockJSON(w, map[string]any{"queue_running": running, "queue_pending": pending})
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "addr", addr, "error", err)
	}
}

// tick moves the simulated queue forward when its time has come.
func (g *mockGPU) tick() {
	// simulate small latency variance
	time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Now().Before(g.nextJobAt) {
		return
	}
	g.nextJobAt = time.Now().Add(time.Duration(10+rand.Intn(21)) * time.Second)
	g.pending = rand.Intn(4)
	if rand.Intn(3) == 0 {
		g.running = 0
		g.usedGB = 1
		g.prompt = ""
	} else {
		g.running = 1
		g.usedGB = 4 + rand.Int63n(g.totalGB-4)
		g.prompt = prompts[rand.Intn(len(prompts))]
	}
	slog.Info("mock queue changed", "device", g.device, "running", g.running, "pending", g.pending)
}

func writeMockJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
