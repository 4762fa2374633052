package gpuboard

import (
	"fmt"
	"slices"
	"strings"
	"testing"
)

// =============================================================================
// Cartesian Product Tests
// =============================================================================

func TestCartesianProduct_TwoDimensions(t *testing.T) {
	dims := map[string][]string{
		"x": {"a", "b"},
		"y": {"1", "2"},
	}

	result := cartesianProduct(dims)

	if len(result) != 4 {
		t.Fatalf("cartesianProduct() returned %d combinations, want 4", len(result))
	}

	// verify sorted key order (x, y) and preserved value order
	expected := []map[string]string{
		{"x": "a", "y": "1"},
		{"x": "a", "y": "2"},
		{"x": "b", "y": "1"},
		{"x": "b", "y": "2"},
	}

	for i, want := range expected {
		if result[i]["x"] != want["x"] || result[i]["y"] != want["y"] {
			t.Errorf("combination[%d] = %v, want %v", i, result[i], want)
		}
	}
}

func TestCartesianProduct_ThreeDimensions(t *testing.T) {
	dims := map[string][]string{
		"a": {"1", "2"},
		"b": {"x", "y"},
		"c": {"p", "q"},
	}

	result := cartesianProduct(dims)

	if len(result) != 8 {
		t.Fatalf("cartesianProduct() returned %d combinations, want 8 (2x2x2)", len(result))
	}

	first := result[0]
	if first["a"] != "1" || first["b"] != "x" || first["c"] != "p" {
		t.Errorf("first combination = %v, want {a:1, b:x, c:p}", first)
	}
}

func TestCartesianProduct_EmptyDimension(t *testing.T) {
	dims := map[string][]string{
		"x": {"a"},
		"y": {},
	}
	if result := cartesianProduct(dims); result != nil {
		t.Errorf("cartesianProduct() with empty dimension = %v, want nil", result)
	}
}

func TestCartesianProduct_EmptyMap(t *testing.T) {
	if result := cartesianProduct(map[string][]string{}); result != nil {
		t.Errorf("cartesianProduct({}) = %v, want nil", result)
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestWithAddressTemplate_Empty(t *testing.T) {
	cfg := &gridConfig{}
	if err := WithAddressTemplate("  ")(cfg); err == nil {
		t.Error("WithAddressTemplate(\"  \") should return error")
	}
}

func TestWithHosts_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		hosts []string
	}{
		{"none", nil},
		{"blank", []string{"10.0.0.1", " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := WithHosts(tt.hosts...)(&gridConfig{}); err == nil {
				t.Errorf("WithHosts(%v) should return error", tt.hosts)
			}
		})
	}
}

func TestWithPorts_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		ports []int
	}{
		{"none", nil},
		{"zero", []int{0}},
		{"too large", []int{8188, 70000}},
		{"negative", []int{-1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := WithPorts(tt.ports...)(&gridConfig{}); err == nil {
				t.Errorf("WithPorts(%v) should return error", tt.ports)
			}
		})
	}
}

func TestWithDimensions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		dims map[string][]string
	}{
		{"empty map", map[string][]string{}},
		{"empty values", map[string][]string{"rack": {}}},
		{"empty string value", map[string][]string{"rack": {"a", ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := WithDimensions(tt.dims)(&gridConfig{}); err == nil {
				t.Errorf("WithDimensions(%v) should return error", tt.dims)
			}
		})
	}
}

func TestWithDimensions_CopiesValues(t *testing.T) {
	vals := []string{"a", "b"}
	cfg := &gridConfig{}
	if err := WithDimensions(map[string][]string{"rack": vals})(cfg); err != nil {
		t.Fatalf("WithDimensions() error: %v", err)
	}
	vals[0] = "mutated"
	if cfg.dimensions["rack"][0] != "a" {
		t.Error("WithDimensions() should copy the value slice")
	}
}

// =============================================================================
// NewServerGrid Tests
// =============================================================================

func TestNewServerGrid_HostsAndPorts(t *testing.T) {
	addrs, err := NewServerGrid(
		WithHosts("10.0.0.10", "10.0.0.11"),
		WithPorts(8188, 8189),
	)
	if err != nil {
		t.Fatalf("NewServerGrid() error: %v", err)
	}

	want := []string{
		"10.0.0.10:8188",
		"10.0.0.10:8189",
		"10.0.0.11:8188",
		"10.0.0.11:8189",
	}
	if !slices.Equal(addrs, want) {
		t.Errorf("NewServerGrid() = %v, want %v", addrs, want)
	}
}

func TestNewServerGrid_CustomTemplate(t *testing.T) {
	addrs, err := NewServerGrid(
		WithAddressTemplate("https://gpu-{{.rack}}{{.slot}}.internal:{{.port}}"),
		WithDimensions(map[string][]string{
			"rack": {"a", "b"},
			"slot": {"1"},
		}),
		WithPorts(443),
	)
	if err != nil {
		t.Fatalf("NewServerGrid() error: %v", err)
	}

	want := []string{
		"https://gpu-a1.internal:443",
		"https://gpu-b1.internal:443",
	}
	if !slices.Equal(addrs, want) {
		t.Errorf("NewServerGrid() = %v, want %v", addrs, want)
	}
}

func TestNewServerGrid_TemplateWithConditional(t *testing.T) {
	addrs, err := NewServerGrid(
		WithAddressTemplate(`{{.host}}:{{if eq .tier "fast"}}8188{{else}}8288{{end}}`),
		WithHosts("render"),
		WithDimensions(map[string][]string{"tier": {"fast", "slow"}}),
	)
	if err != nil {
		t.Fatalf("NewServerGrid() error: %v", err)
	}

	want := []string{"render:8188", "render:8288"}
	if !slices.Equal(addrs, want) {
		t.Errorf("NewServerGrid() = %v, want %v", addrs, want)
	}
}

func TestNewServerGrid_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    []GridOption
		wantMsg string
	}{
		{
			name:    "no dimensions",
			opts:    nil,
			wantMsg: "at least one dimension",
		},
		{
			name:    "missing port for default template",
			opts:    []GridOption{WithHosts("10.0.0.1")},
			wantMsg: "template execution failed",
		},
		{
			name:    "invalid template syntax",
			opts:    []GridOption{WithAddressTemplate("{{.host"), WithHosts("10.0.0.1")},
			wantMsg: "invalid address template",
		},
		{
			name:    "rendered address has a path",
			opts:    []GridOption{WithAddressTemplate("{{.host}}/api"), WithHosts("10.0.0.1")},
			wantMsg: "host=10.0.0.1",
		},
		{
			name:    "option error propagates",
			opts:    []GridOption{WithPorts(0)},
			wantMsg: "port must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServerGrid(tt.opts...)
			if err == nil {
				t.Fatal("NewServerGrid() should return error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestNewServerGrid_ComposableWithOptions(t *testing.T) {
	addrs, err := NewServerGrid(WithHosts("10.0.0.1"), WithPorts(8188, 8189))
	if err != nil {
		t.Fatalf("NewServerGrid() error: %v", err)
	}

	b, err := New(WithServers(addrs...), WithServers("10.0.0.2:8188"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := len(b.Servers()); got != 3 {
		t.Errorf("Servers() = %d entries, want 3", got)
	}
}

func TestNewServerGrid_Large(t *testing.T) {
	hosts := make([]string, 20)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("10.0.1.%d", i+1)
	}
	ports := []int{8188, 8189, 8190, 8191}

	addrs, err := NewServerGrid(WithHosts(hosts...), WithPorts(ports...))
	if err != nil {
		t.Fatalf("NewServerGrid() error: %v", err)
	}
	if len(addrs) != 80 {
		t.Errorf("NewServerGrid() returned %d addresses, want 80", len(addrs))
	}
}

func BenchmarkCartesianProduct_Medium(b *testing.B) {
	dims := map[string][]string{
		"host": {"h1", "h2", "h3", "h4", "h5", "h6", "h7", "h8", "h9", "h10"},
		"port": {"8188", "8189", "8190", "8191"},
		"rack": {"a", "b", "c"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cartesianProduct(dims)
	}
}
