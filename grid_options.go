package gpuboard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// gridConfig holds configuration during server grid construction.
type gridConfig struct {
	addressTemplate string
	dimensions      map[string][]string
}

// GridOption configures server grid generation.
// GridOption implements the functional options pattern for [NewServerGrid].
type GridOption func(*gridConfig) error

// WithAddressTemplate overrides [DefaultAddressTemplate]. The template uses
// Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithAddressTemplate("https://{{.host}}.gpu.internal:{{.port}}")
//
// Returns an error if the template string is empty.
func WithAddressTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if strings.TrimSpace(tmpl) == "" {
			return errors.New("address template required")
		}
		cfg.addressTemplate = tmpl
		return nil
	}
}

// WithHosts sets the "host" dimension.
//
// Returns an error if no hosts are given or any host is blank.
func WithHosts(hosts ...string) GridOption {
	return func(cfg *gridConfig) error {
		return setDimension(cfg, "host", hosts)
	}
}

// WithPorts sets the "port" dimension.
//
// Returns an error if no ports are given or any port is outside 1-65535.
func WithPorts(ports ...int) GridOption {
	return func(cfg *gridConfig) error {
		vals := make([]string, len(ports))
		for i, p := range ports {
			if p < 1 || p > 65535 {
				return fmt.Errorf("port must be between 1 and 65535, got %d", p)
			}
			vals[i] = strconv.Itoa(p)
		}
		return setDimension(cfg, "port", vals)
	}
}

// WithDimensions adds arbitrary dimensions for use in a custom address
// template. Keys "host" and "port" may be set here as well.
//
// Example:
//
//	WithDimensions(map[string][]string{
//	    "rack": {"a", "b"},
//	    "slot": {"1", "2", "3"},
//	})
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is blank.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if err := setDimension(cfg, k, vals); err != nil {
				return err
			}
		}
		return nil
	}
}

func setDimension(cfg *gridConfig, key string, vals []string) error {
	if len(vals) == 0 {
		return fmt.Errorf("dimension '%s' has no values", key)
	}
	for i, v := range vals {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("dimension '%s' contains empty value at index %d", key, i)
		}
	}
	if cfg.dimensions == nil {
		cfg.dimensions = make(map[string][]string)
	}
	cfg.dimensions[key] = append([]string(nil), vals...)
	return nil
}
