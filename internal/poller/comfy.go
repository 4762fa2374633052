package poller

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

const bytesPerGiB = 1 << 30

// device name markers, checked in order
var deviceMarkers = []string{"RTX", "RXT"}

// systemStats is the part of GET /system_stats a snapshot needs.
type systemStats struct {
	vramTotalGB    float64
	vramFreeGB     float64
	deviceName     string
	deviceNameRaw  string
	pythonVersion  string
	gpuTemperature *float64
}

// queueStats is the part of GET /queue a snapshot needs.
type queueStats struct {
	running int
	pending int

	// meta is the raw prompt metadata of the first running entry, nil when
	// nothing is running or the entry has no third element.
	meta []byte
}

// parseSystemStats reads the first device of a /system_stats body.
//
// devices[0].vram_total, vram_free and name are required; gpu_temperature and
// system.python_version are optional.
func parseSystemStats(body []byte) (systemStats, error) {
	if !gjson.ValidBytes(body) {
		return systemStats{}, errors.New("body is not valid JSON")
	}

	devices := gjson.GetBytes(body, "devices")
	if !devices.IsArray() {
		return systemStats{}, errors.New("devices is missing or not a list")
	}
	list := devices.Array()
	if len(list) == 0 {
		return systemStats{}, errors.New("devices is empty")
	}
	dev := list[0]

	total, err := requireNumber(dev, "vram_total")
	if err != nil {
		return systemStats{}, err
	}
	free, err := requireNumber(dev, "vram_free")
	if err != nil {
		return systemStats{}, err
	}
	name := dev.Get("name")
	if name.Type != gjson.String {
		return systemStats{}, errors.New("devices[0].name is missing or not a string")
	}

	stats := systemStats{
		vramTotalGB:   BytesToGB(total),
		vramFreeGB:    BytesToGB(free),
		deviceName:    ShortDeviceName(name.Str),
		deviceNameRaw: name.Str,
	}

	if temp := dev.Get("gpu_temperature"); temp.Type == gjson.Number {
		v := temp.Num
		stats.gpuTemperature = &v
	}
	if pv := gjson.GetBytes(body, "system.python_version"); pv.Type == gjson.String {
		if fields := strings.Fields(pv.Str); len(fields) > 0 {
			stats.pythonVersion = fields[0]
		}
	}

	return stats, nil
}

// parseQueue reads the queue lengths of a /queue body and picks out the
// prompt metadata of the first running entry.
func parseQueue(body []byte) (queueStats, error) {
	if !gjson.ValidBytes(body) {
		return queueStats{}, errors.New("body is not valid JSON")
	}

	running := gjson.GetBytes(body, "queue_running")
	if !running.IsArray() {
		return queueStats{}, errors.New("queue_running is missing or not a list")
	}
	pending := gjson.GetBytes(body, "queue_pending")
	if !pending.IsArray() {
		return queueStats{}, errors.New("queue_pending is missing or not a list")
	}

	runningList := running.Array()
	q := queueStats{
		running: len(runningList),
		pending: len(pending.Array()),
	}

	if len(runningList) > 0 {
		if meta := runningList[0].Get("2"); meta.Exists() && runningList[0].IsArray() {
			q.meta = []byte(meta.Raw)
		}
	}

	return q, nil
}

// WorkflowTask returns widgets_values[0] of the last workflow node found at
// extra_pnginfo.workflow.nodes in the prompt metadata, or "" if any level is
// missing.
func WorkflowTask(meta []byte) string {
	nodes := lookup(meta, "extra_pnginfo", "workflow", "nodes")
	if !nodes.IsArray() {
		return ""
	}
	list := nodes.Array()
	if len(list) == 0 {
		return ""
	}
	return ScalarString(list[len(list)-1].Get("widgets_values.0"))
}

// Workflow returns the raw extra_pnginfo.workflow object, or nil if it is
// missing or not an object.
func Workflow(meta []byte) json.RawMessage {
	wf := lookup(meta, "extra_pnginfo", "workflow")
	if !wf.IsObject() {
		return nil
	}
	return json.RawMessage(wf.Raw)
}

// lookup walks object keys one level at a time and stops at the first
// missing level, returning an empty result instead of failing.
func lookup(doc []byte, keys ...string) gjson.Result {
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		return gjson.Result{}
	}
	cur := gjson.ParseBytes(doc)
	for _, key := range keys {
		if !cur.IsObject() {
			return gjson.Result{}
		}
		cur = cur.Get(gjson.Escape(key))
		if !cur.Exists() {
			return gjson.Result{}
		}
	}
	return cur
}

// ScalarString renders a JSON scalar for the task column. Strings are kept
// as-is, numbers keep their literal form, objects and arrays yield "".
func ScalarString(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	default:
		return ""
	}
}

// ShortDeviceName cuts a raw device name like "cuda:0 NVIDIA GeForce RTX 4090
// : cudaMallocAsync" down to the model ("4090"). The text after the first
// "RTX" (or, failing that, "RXT") up to its next occurrence is taken, capped
// at 6 characters and trimmed. Names without a marker are returned unchanged.
func ShortDeviceName(raw string) string {
	for _, marker := range deviceMarkers {
		idx := strings.Index(raw, marker)
		if idx < 0 {
			continue
		}
		rest := raw[idx+len(marker):]
		if next := strings.Index(rest, marker); next >= 0 {
			rest = rest[:next]
		}
		if runes := []rune(rest); len(runes) > 6 {
			rest = string(runes[:6])
		}
		return strings.TrimSpace(rest)
	}
	return raw
}

// BytesToGB converts a byte count to GiB rounded to two decimals.
func BytesToGB(b float64) float64 {
	return math.Round(b/bytesPerGiB*100) / 100
}

func requireNumber(obj gjson.Result, key string) (float64, error) {
	v := obj.Get(key)
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("devices[0].%s is missing or not a number", key)
	}
	return v.Num, nil
}
