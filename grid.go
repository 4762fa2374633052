package gpuboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// DefaultAddressTemplate renders a grid combination as host:port.
const DefaultAddressTemplate = "{{.host}}:{{.port}}"

// NewServerGrid expands a set of hosts and ports (plus any extra dimensions)
// into server addresses using cartesian product expansion.
//
// GPU rigs often run one ComfyUI instance per card on consecutive ports, so
// a grid of hosts × ports covers a farm in one declaration. The address
// template uses Go's text/template syntax; missing template keys cause an
// error (fail-fast). Every rendered address is normalised with
// [NormalizeAddress].
//
// Addresses are ordered by sorted dimension keys ("host" before "port"), so
// all ports of the first host come first.
//
// Example:
//
//	addrs, err := gpuboard.NewServerGrid(
//	    gpuboard.WithHosts("10.0.0.10", "10.0.0.11"),
//	    gpuboard.WithPorts(8188, 8189),
//	)
//	// 10.0.0.10:8188, 10.0.0.10:8189, 10.0.0.11:8188, 10.0.0.11:8189
func NewServerGrid(opts ...GridOption) ([]string, error) {
	cfg := &gridConfig{
		addressTemplate: DefaultAddressTemplate,
		dimensions:      make(map[string][]string),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	// parse template with missingkey=error for fail-fast behaviour
	tmpl, err := template.New("address").Option("missingkey=error").Parse(cfg.addressTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid address template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	addrs := make([]string, 0, len(combinations))
	for _, combo := range combinations {
		rendered, err := executeTemplate(tmpl, combo)
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}
		addr, err := NormalizeAddress(rendered)
		if err != nil {
			return nil, fmt.Errorf("grid combination %s: %w", formatCombination(combo), err)
		}
		addrs = append(addrs, addr)
	}

	return addrs, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)

	// empty dimensions are rejected by the options too
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)

	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatCombination renders a combination as "key=value, ..." in key order.
func formatCombination(combo map[string]string) string {
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + combo[k]
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
