package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestShortDeviceName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain RTX", "NVIDIA RTX 3090", "3090"},
		{"comfy cuda prefix", "cuda:0 NVIDIA GeForce RTX 4090 : cudaMallocAsync", "4090"},
		{"capped at six characters", "NVIDIA RTX A6000 Ada Generation", "A6000"},
		{"typo marker RXT", "NVIDIA GeForce RXT 3060 Ti", "3060"},
		{"RTX preferred over RXT", "RXT 1111 RTX 2222", "2222"},
		{"cut at second occurrence", "RTXRTX 3090", ""},
		{"no marker", "Tesla V100-SXM2-16GB", "Tesla V100-SXM2-16GB"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortDeviceName(tt.raw))
		})
	}
}

func TestBytesToGB(t *testing.T) {
	assert.Equal(t, 24.0, BytesToGB(24*bytesPerGiB))
	assert.Equal(t, 23.65, BytesToGB(25393692672))
	assert.Equal(t, 0.0, BytesToGB(0))
	assert.Equal(t, 1.5, BytesToGB(1.5*bytesPerGiB))
}

func TestParseSystemStats(t *testing.T) {
	body := []byte(`{
		"system": {"os": "posix", "python_version": "3.10.12 (main, Nov 20 2023, 15:14:05) [GCC 11.4.0]"},
		"devices": [
			{"name": "cuda:0 NVIDIA GeForce RTX 4090 : cudaMallocAsync", "type": "cuda", "index": 0,
			 "vram_total": 25393692672, "vram_free": 12884901888, "gpu_temperature": 61.5}
		]
	}`)

	stats, err := parseSystemStats(body)
	require.NoError(t, err)

	assert.Equal(t, 23.65, stats.vramTotalGB)
	assert.Equal(t, 12.0, stats.vramFreeGB)
	assert.Equal(t, "4090", stats.deviceName)
	assert.Equal(t, "cuda:0 NVIDIA GeForce RTX 4090 : cudaMallocAsync", stats.deviceNameRaw)
	assert.Equal(t, "3.10.12", stats.pythonVersion)
	require.NotNil(t, stats.gpuTemperature)
	assert.Equal(t, 61.5, *stats.gpuTemperature)
}

func TestParseSystemStats_OptionalFieldsAbsent(t *testing.T) {
	body := []byte(`{"devices": [{"name": "Tesla T4", "vram_total": 1073741824, "vram_free": 536870912}]}`)

	stats, err := parseSystemStats(body)
	require.NoError(t, err)

	assert.Nil(t, stats.gpuTemperature)
	assert.Empty(t, stats.pythonVersion)
	assert.Equal(t, "Tesla T4", stats.deviceName)
	assert.Equal(t, 0.5, stats.vramFreeGB)
}

func TestParseSystemStats_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `not json`},
		{"empty body", ``},
		{"devices missing", `{"system": {}}`},
		{"devices not a list", `{"devices": {"name": "x"}}`},
		{"devices empty", `{"devices": []}`},
		{"vram_total missing", `{"devices": [{"name": "x", "vram_free": 1}]}`},
		{"vram_free not a number", `{"devices": [{"name": "x", "vram_total": 1, "vram_free": "1"}]}`},
		{"name missing", `{"devices": [{"vram_total": 1, "vram_free": 1}]}`},
		{"name not a string", `{"devices": [{"name": 4090, "vram_total": 1, "vram_free": 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSystemStats([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParseQueue(t *testing.T) {
	body := []byte(`{
		"queue_running": [[3, "prompt-id", {"extra_pnginfo": {"workflow": {"nodes": [
			{"id": 1, "widgets_values": ["first"]},
			{"id": 9, "widgets_values": ["portrait_batch", 42]}
		]}}}, {}, []]],
		"queue_pending": [[4, "a", {}], [5, "b", {}]]
	}`)

	q, err := parseQueue(body)
	require.NoError(t, err)

	assert.Equal(t, 1, q.running)
	assert.Equal(t, 2, q.pending)
	require.NotNil(t, q.meta)
	assert.Equal(t, "portrait_batch", WorkflowTask(q.meta))
	assert.JSONEq(t, `{"nodes": [
		{"id": 1, "widgets_values": ["first"]},
		{"id": 9, "widgets_values": ["portrait_batch", 42]}
	]}`, string(Workflow(q.meta)))
}

func TestParseQueue_EmptyRunning(t *testing.T) {
	q, err := parseQueue([]byte(`{"queue_running": [], "queue_pending": []}`))
	require.NoError(t, err)

	assert.Zero(t, q.running)
	assert.Zero(t, q.pending)
	assert.Nil(t, q.meta)
	assert.Empty(t, WorkflowTask(q.meta))
	assert.Nil(t, Workflow(q.meta))
}

func TestParseQueue_ShortEntry(t *testing.T) {
	q, err := parseQueue([]byte(`{"queue_running": [[1, "id"]], "queue_pending": []}`))
	require.NoError(t, err)

	assert.Equal(t, 1, q.running)
	assert.Nil(t, q.meta)
}

func TestParseQueue_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"running missing", `{"queue_pending": []}`},
		{"pending missing", `{"queue_running": []}`},
		{"running not a list", `{"queue_running": 3, "queue_pending": []}`},
		{"pending not a list", `{"queue_running": [], "queue_pending": "none"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseQueue([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestWorkflowTask_MissingLevels(t *testing.T) {
	tests := []struct {
		name string
		meta string
	}{
		{"empty meta", ``},
		{"not json", `garbage`},
		{"meta is a list", `[1, 2]`},
		{"no extra_pnginfo", `{"client_id": "abc"}`},
		{"extra_pnginfo not object", `{"extra_pnginfo": "x"}`},
		{"no workflow", `{"extra_pnginfo": {}}`},
		{"workflow not object", `{"extra_pnginfo": {"workflow": []}}`},
		{"no nodes", `{"extra_pnginfo": {"workflow": {}}}`},
		{"nodes not list", `{"extra_pnginfo": {"workflow": {"nodes": {}}}}`},
		{"nodes empty", `{"extra_pnginfo": {"workflow": {"nodes": []}}}`},
		{"last node without widgets", `{"extra_pnginfo": {"workflow": {"nodes": [{"widgets_values": ["x"]}, {}]}}}`},
		{"widgets empty", `{"extra_pnginfo": {"workflow": {"nodes": [{"widgets_values": []}]}}}`},
		{"widget is object", `{"extra_pnginfo": {"workflow": {"nodes": [{"widgets_values": [{"a": 1}]}]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Empty(t, WorkflowTask([]byte(tt.meta)))
			})
		})
	}
}

func TestWorkflowTask_ScalarValues(t *testing.T) {
	meta := func(v string) []byte {
		return []byte(`{"extra_pnginfo": {"workflow": {"nodes": [{"widgets_values": [` + v + `]}]}}}`)
	}

	assert.Equal(t, "123456789012", WorkflowTask(meta(`123456789012`)))
	assert.Equal(t, "0.75", WorkflowTask(meta(`0.75`)))
	assert.Equal(t, "true", WorkflowTask(meta(`true`)))
	assert.Equal(t, "", WorkflowTask(meta(`null`)))
}

func TestScalarString(t *testing.T) {
	assert.Equal(t, "x", ScalarString(gjson.Parse(`"x"`)))
	assert.Equal(t, "false", ScalarString(gjson.Parse(`false`)))
	assert.Equal(t, "", ScalarString(gjson.Parse(`[1]`)))
	assert.Equal(t, "", ScalarString(gjson.Result{}))
}
