package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/gpuboard"
	"github.com/jpalmerr/gpuboard/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newServeCmd starts the GPUBoard dashboard server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Long: `Start the GPUBoard dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Poll all configured GPU servers at the refresh interval
  - Serve the dashboard UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  gpuboard serve -c config.yaml
  gpuboard serve --config /etc/gpuboard/config.yaml --env-file /etc/gpuboard/.env`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	cmd.Flags().String("env-file", "", "dotenv file with variables for ${VAR} expansion")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// loadConfig reads the --config file, resolving variables from --env-file
// when given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	var vars map[string]string
	if envFile != "" {
		var err error
		vars, err = config.LoadEnvFile(envFile)
		if err != nil {
			return nil, err
		}
	}
	return config.LoadWithEnv(configFile, vars)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"servers", len(cfg.Servers),
		"grids", len(cfg.Grids),
		"servers_file", cfg.ServersFile,
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build servers: %w", err)
	}
	opts = append(opts, gpuboard.WithLogger(logger))

	b, err := gpuboard.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create GPUBoard: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- b.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
