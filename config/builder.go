package config

import (
	"fmt"

	"github.com/jpalmerr/gpuboard"
)

// BuildServers returns the configured addresses followed by every grid's
// expansion, in file order.
//
// Grid dimensions are expanded via cartesian product. Duplicates are kept;
// [gpuboard.New] removes them.
func BuildServers(cfg *Config) ([]string, error) {
	servers := append([]string(nil), cfg.Servers...)

	for i, gc := range cfg.Grids {
		addrs, err := buildGridServers(gc)
		if err != nil {
			if gc.Name != "" {
				return nil, fmt.Errorf("grids[%d] (%s): %w", i, gc.Name, err)
			}
			return nil, fmt.Errorf("grids[%d]: %w", i, err)
		}
		servers = append(servers, addrs...)
	}

	return servers, nil
}

// buildGridServers expands a GridConfig into addresses.
func buildGridServers(gc GridConfig) ([]string, error) {
	opts := []gpuboard.GridOption{
		gpuboard.WithHosts(gc.Hosts...),
		gpuboard.WithPorts(gc.Ports...),
	}
	if gc.Template != "" {
		opts = append(opts, gpuboard.WithAddressTemplate(gc.Template))
	}
	if len(gc.Dimensions) > 0 {
		opts = append(opts, gpuboard.WithDimensions(gc.Dimensions))
	}
	return gpuboard.NewServerGrid(opts...)
}

// BuildOptions converts parsed configuration into SDK options for
// [gpuboard.New]. The caller appends its own options, such as a logger.
func BuildOptions(cfg *Config) ([]gpuboard.Option, error) {
	servers, err := BuildServers(cfg)
	if err != nil {
		return nil, err
	}

	opts := []gpuboard.Option{
		gpuboard.WithServers(servers...),
		gpuboard.WithPort(cfg.Port),
		gpuboard.WithRequestTimeout(cfg.RequestTimeout.Duration()),
	}

	if cfg.Title != "" {
		opts = append(opts, gpuboard.WithTitle(cfg.Title))
	}
	if cfg.RefreshInterval != nil {
		opts = append(opts, gpuboard.WithRefreshInterval(cfg.RefreshInterval.Duration()))
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, gpuboard.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if cfg.ServersFile != "" {
		opts = append(opts, gpuboard.WithServersFile(cfg.ServersFile))
	}

	extractor, err := buildExtractor(cfg.TaskExtractor)
	if err != nil {
		return nil, fmt.Errorf("task_extractor: %w", err)
	}
	if extractor != nil {
		opts = append(opts, gpuboard.WithTaskExtractor(extractor))
	}

	return opts, nil
}

// buildExtractor converts ExtractorConfig to a TaskExtractor.
// Returns nil for default/empty extractors (SDK uses DefaultTaskExtractor).
func buildExtractor(ec ExtractorConfig) (gpuboard.TaskExtractor, error) {
	switch ec.Type {
	case "", "default":
		// nil signals SDK to use its default
		return nil, nil
	default:
		return gpuboard.ParseTaskExtractor(ec.String())
	}
}
