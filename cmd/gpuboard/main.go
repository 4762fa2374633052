// Package main is the entry point for the gpuboard CLI.
//
// GPUBoard can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	gpuboard serve -c config.yaml     # Start the dashboard
//	gpuboard validate -c config.yaml  # Validate configuration
//	gpuboard poll -s 10.0.0.5:8188    # Poll once and print a table
//	gpuboard version                  # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree. The base command just displays help;
// actual functionality is in subcommands.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gpuboard",
		Short: "A live dashboard for ComfyUI GPU servers",
		Long: `GPUBoard is a real-time dashboard for a farm of ComfyUI GPU servers.

It polls every server's /system_stats and /queue endpoints and shows VRAM,
queue lengths, the running task and the GPU in a web UI that updates over
Server-Sent Events.

Quick start:
  1. Create a config file (gpuboard.yaml)
  2. Run: gpuboard serve -c gpuboard.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  refresh_interval: 10s
  servers:
    - 10.0.0.5:8188
    - 10.0.0.6:8188`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newPollCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this gpuboard binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gpuboard %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// newLogger creates a JSON logger on stderr at the level named by the
// --log-level flag.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", name, err)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}
