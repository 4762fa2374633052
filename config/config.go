// Package config provides YAML configuration parsing for GPUBoard.
//
// This package enables running GPUBoard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Render Farm
//	port: 8080
//	refresh_interval: 10s
//	request_timeout: 5s
//	servers_file: servers.json
//
//	servers:
//	  - 10.0.0.5:8188
//	  - ${EXTRA_GPU:-10.0.0.6:8188}
//
//	grids:
//	  - name: rack-a
//	    hosts: [10.0.1.10, 10.0.1.11]
//	    ports: [8188, 8189]
//
//	task_extractor: json:extra_pnginfo.workflow.nodes.1.widgets_values.0
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/jpalmerr/gpuboard"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultRefreshInterval = 10 * time.Second
	defaultRequestTimeout  = 10 * time.Second

	// minRefreshInterval keeps a misconfigured board from hammering its servers.
	minRefreshInterval = 1 * time.Second
)

// Config is the root configuration structure for GPUBoard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "GPUBoard" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// RefreshInterval is the time between poll cycles.
	// Accepts duration strings like "10s" or "1m". "0s" disables automatic
	// refresh. Defaults to 10s when omitted.
	RefreshInterval *Duration `yaml:"refresh_interval"`

	// RequestTimeout bounds each request to a GPU server. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxConcurrency caps parallel requests. 0 means one goroutine per server.
	MaxConcurrency int `yaml:"max_concurrency"`

	// ServersFile is an optional JSON file the server list is persisted to.
	// Supports environment variable substitution.
	ServersFile string `yaml:"servers_file"`

	// Servers lists "host:port" addresses.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Servers []string `yaml:"servers"`

	// Grids defines server grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`

	// TaskExtractor selects how the "current task" column is derived.
	TaskExtractor ExtractorConfig `yaml:"task_extractor"`
}

// GridConfig defines a server grid that expands via cartesian product.
//
// For example, hosts [a, b] and ports [8188, 8189] expand to four servers.
type GridConfig struct {
	// Name identifies the grid in error messages. Optional.
	Name string `yaml:"name"`

	// Hosts are the host names or IPs of the grid.
	// Supports environment variable substitution.
	Hosts []string `yaml:"hosts"`

	// Ports are the ports every host is polled on.
	Ports []int `yaml:"ports"`

	// Template is a Go template producing each address. Defaults to
	// "{{.host}}:{{.port}}". Extra dimensions are available by name.
	Template string `yaml:"template"`

	// Dimensions are additional template variables.
	Dimensions map[string][]string `yaml:"dimensions"`
}

// ExtractorConfig specifies how the current task is read from queue metadata.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	task_extractor: default
//	task_extractor: json:extra_pnginfo.workflow.nodes.0.widgets_values.0
//	task_extractor: regex:"text":\s*"([^"]+)"
//
// Structured object:
//
//	task_extractor:
//	  type: json
//	  path: client_id
type ExtractorConfig struct {
	// Type is the extractor type: "default", "json" or "regex".
	Type string

	// Path is the gjson path (for type: json).
	Path string

	// Pattern is the regular expression (for type: regex).
	Pattern string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string `yaml:"type"`
			Path    string `yaml:"path"`
			Pattern string `yaml:"pattern"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.Type = raw.Type
		e.Path = raw.Path
		e.Pattern = raw.Pattern
		return nil
	}

	return fmt.Errorf("task_extractor must be a string or object, got %v", node.Kind)
}

// parseShorthand parses extractor shorthand syntax.
//
// Supported formats:
//   - "default" → workflow extractor
//   - "json:path" → value at a gjson path
//   - "regex:pattern" → first capture group of pattern
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		e.Type = s[:idx]
		value := s[idx+1:]

		switch e.Type {
		case "json":
			e.Path = value
		case "regex":
			e.Pattern = value
		default:
			return fmt.Errorf("unknown task extractor type %q", e.Type)
		}
		return nil
	}

	if s != "default" {
		return fmt.Errorf("unknown task extractor %q (expected 'default', 'json:path', or 'regex:pattern')", s)
	}
	e.Type = s
	return nil
}

// String renders the extractor in shorthand form, as accepted by
// [gpuboard.ParseTaskExtractor].
func (e ExtractorConfig) String() string {
	switch e.Type {
	case "json":
		return "json:" + e.Path
	case "regex":
		return "regex:" + e.Pattern
	case "":
		return "default"
	default:
		return e.Type
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// lookupFunc resolves an environment variable.
type lookupFunc func(string) (string, bool)

// newLookup resolves from the process environment first, then from vars.
func newLookup(vars map[string]string) lookupFunc {
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := vars[name]
		return v, ok
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns using lookup.
func expandEnvVars(s string, lookup lookupFunc) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := lookup(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is like [Load] but also resolves variables from vars, typically
// read with [LoadEnvFile]. The process environment takes precedence.
func LoadWithEnv(path string, vars map[string]string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseWithEnv(data, vars)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in Servers, ServersFile and grid Hosts
// and Template values. Defaults are applied for Port (8080),
// RefreshInterval (10s) and RequestTimeout (10s).
func Parse(data []byte) (*Config, error) {
	return ParseWithEnv(data, nil)
}

// ParseWithEnv is like [Parse] with additional variables for expansion.
func ParseWithEnv(data []byte, vars map[string]string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.RefreshInterval == nil {
		d := Duration(defaultRefreshInterval)
		cfg.RefreshInterval = &d
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = Duration(defaultRequestTimeout)
	}

	if err := cfg.expandAndValidate(newLookup(vars)); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate(lookup lookupFunc) error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	refresh := c.RefreshInterval.Duration()
	if refresh < 0 {
		return fmt.Errorf("refresh_interval cannot be negative, got %s", refresh)
	}
	if refresh > 0 && refresh < minRefreshInterval {
		return fmt.Errorf("refresh_interval must be 0 or at least %s, got %s", minRefreshInterval, refresh)
	}

	if c.RequestTimeout.Duration() < 0 {
		return fmt.Errorf("request_timeout cannot be negative, got %s", c.RequestTimeout.Duration())
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	if c.ServersFile != "" {
		expanded, err := expandEnvVars(c.ServersFile, lookup)
		if err != nil {
			return fmt.Errorf("servers_file: %w", err)
		}
		c.ServersFile = expanded
	}

	for i, raw := range c.Servers {
		expanded, err := expandEnvVars(raw, lookup)
		if err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		addr, err := gpuboard.NormalizeAddress(expanded)
		if err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		c.Servers[i] = addr
	}

	for i := range c.Grids {
		if err := c.Grids[i].expandAndValidate(i, lookup); err != nil {
			return err
		}
	}

	if err := validateExtractor(c.TaskExtractor); err != nil {
		return fmt.Errorf("task_extractor: %w", err)
	}

	return nil
}

func (g *GridConfig) expandAndValidate(i int, lookup lookupFunc) error {
	label := fmt.Sprintf("grids[%d]", i)
	if g.Name != "" {
		label = fmt.Sprintf("grids[%d] (%s)", i, g.Name)
	}

	if len(g.Hosts) == 0 {
		return fmt.Errorf("%s: at least one host is required", label)
	}
	seen := make(map[string]struct{}, len(g.Hosts))
	for j, h := range g.Hosts {
		expanded, err := expandEnvVars(h, lookup)
		if err != nil {
			return fmt.Errorf("%s: hosts[%d]: %w", label, j, err)
		}
		expanded = strings.TrimSpace(expanded)
		if expanded == "" {
			return fmt.Errorf("%s: hosts[%d] is empty", label, j)
		}
		if _, exists := seen[expanded]; exists {
			return fmt.Errorf("%s: duplicate host %q", label, expanded)
		}
		seen[expanded] = struct{}{}
		g.Hosts[j] = expanded
	}

	if len(g.Ports) == 0 {
		return fmt.Errorf("%s: at least one port is required", label)
	}
	for _, p := range g.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%s: port must be between 1 and 65535, got %d", label, p)
		}
	}

	if g.Template != "" {
		expanded, err := expandEnvVars(g.Template, lookup)
		if err != nil {
			return fmt.Errorf("%s: template: %w", label, err)
		}
		g.Template = expanded

		// fail fast before SDK tries to use invalid template
		if _, err := template.New("").Parse(g.Template); err != nil {
			return fmt.Errorf("%s: invalid template: %w", label, err)
		}
	}

	for name, values := range g.Dimensions {
		if name == "host" || name == "port" {
			return fmt.Errorf("%s: dimension %q is reserved", label, name)
		}
		if len(values) == 0 {
			return fmt.Errorf("%s: dimension %q has no values", label, name)
		}
	}

	return nil
}

// validateExtractor validates an extractor configuration.
func validateExtractor(e ExtractorConfig) error {
	switch e.Type {
	case "", "default":
		return nil
	case "json":
		if e.Path == "" {
			return errors.New("extractor type 'json' requires a path")
		}
	case "regex":
		if e.Pattern == "" {
			return errors.New("extractor type 'regex' requires a pattern")
		}
	default:
		return fmt.Errorf("unknown extractor type %q", e.Type)
	}

	// compile regex and check the capture group up front
	_, err := gpuboard.ParseTaskExtractor(e.String())
	return err
}
