package main

import (
	"fmt"

	"github.com/jpalmerr/gpuboard/config"
	"github.com/spf13/cobra"
)

// newValidateCmd validates a config file without starting the server.
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a GPUBoard configuration file without starting the server.

This command parses the YAML, expands environment variables, expands grids
and validates every address. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  gpuboard validate -c config.yaml
  gpuboard validate --config /etc/gpuboard/config.yaml`,
		RunE: runValidate,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	cmd.Flags().String("env-file", "", "dotenv file with variables for ${VAR} expansion")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	servers, err := config.BuildServers(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Servers)
	fromGrids := len(servers) - direct

	refresh := "disabled"
	if d := cfg.RefreshInterval.Duration(); d > 0 {
		refresh = d.String()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:             %d\n", cfg.Port)
	fmt.Fprintf(out, "  Refresh interval: %s\n", refresh)
	fmt.Fprintf(out, "  Request timeout:  %s\n", cfg.RequestTimeout.Duration())
	fmt.Fprintf(out, "  Task extractor:   %s\n", cfg.TaskExtractor)
	fmt.Fprintf(out, "  Servers:          %d direct + %d from grids = %d total\n",
		direct, fromGrids, len(servers))
	if cfg.ServersFile != "" {
		fmt.Fprintf(out, "  Servers file:     %s\n", cfg.ServersFile)
	}

	return nil
}
