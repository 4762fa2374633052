package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jpalmerr/gpuboard"
	"github.com/jpalmerr/gpuboard/config"
	"github.com/spf13/cobra"
)

// newPollCmd runs a single poll cycle and prints the result.
func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll servers once and print a table",
		Long: `Poll GPU servers once and print the result without starting the dashboard.

Servers come from --server flags, a config file, or both. Servers that fail
are reported on stderr.

Exit codes:
  0 - At least one server answered, or none were given
  1 - Every server failed, or the configuration is invalid

Example:
  gpuboard poll -s 10.0.0.5:8188 -s 10.0.0.6:8188
  gpuboard poll -c config.yaml --json`,
		RunE: runPoll,
	}

	cmd.Flags().StringArrayP("server", "s", nil, "server address (host:port), repeatable")
	cmd.Flags().StringP("config", "c", "", "path to config file")
	cmd.Flags().String("env-file", "", "dotenv file with variables for ${VAR} expansion")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	cmd.Flags().Duration("timeout", 0, "per-request timeout (default from config, or 10s)")
	return cmd
}

func runPoll(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	servers, _ := cmd.Flags().GetStringArray("server")
	configFile, _ := cmd.Flags().GetString("config")
	asJSON, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var opts []gpuboard.Option
	if configFile != "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		opts, err = config.BuildOptions(cfg)
		if err != nil {
			return fmt.Errorf("failed to build servers: %w", err)
		}
	}
	opts = append(opts, gpuboard.WithServers(servers...), gpuboard.WithLogger(logger))
	if timeout > 0 {
		opts = append(opts, gpuboard.WithRequestTimeout(timeout))
	}

	b, err := gpuboard.New(opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := b.PollOnce(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		err = writeJSONResult(cmd.OutOrStdout(), result)
	} else {
		err = writeTable(cmd.OutOrStdout(), result, time.Now())
	}
	if err != nil {
		return err
	}

	for _, f := range result.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s (%s): %v\n", f.Address, f.Kind, f.Err)
	}

	if len(result.Snapshots) == 0 && len(result.Failures) > 0 {
		return errors.New("no server answered")
	}
	return nil
}

// writeTable prints one row per snapshot, in the dashboard's column order.
func writeTable(w io.Writer, result gpuboard.PollResult, now time.Time) error {
	if len(result.Snapshots) == 0 {
		_, err := fmt.Fprintln(w, "No server data available.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tTOTAL VRAM\tFREE VRAM\tRUNNING\tPENDING\tTASK\tDEVICE\tPYTHON\tUPDATE\tSTATUS\tGPU TEMP")
	for _, s := range result.Snapshots {
		temp := "-"
		if s.GPUTemperatureC != nil {
			temp = strconv.FormatFloat(*s.GPUTemperatureC, 'f', -1, 64) + "°C"
		}
		fmt.Fprintf(tw, "%s\t%.2f GB\t%.2f GB\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Address,
			s.VRAMTotalGB,
			s.VRAMFreeGB,
			s.QueueRunning,
			s.QueuePending,
			orDash(s.CurrentTask),
			s.DeviceName,
			orDash(s.PythonVersion),
			gpuboard.Humanize(now.Sub(s.LastUpdate)),
			s.Status,
			temp,
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// jsonSnapshot is the --json form of a snapshot.
type jsonSnapshot struct {
	Address         string          `json:"address"`
	VRAMTotalGB     float64         `json:"vram_total_gb"`
	VRAMFreeGB      float64         `json:"vram_free_gb"`
	QueueRunning    int             `json:"queue_running"`
	QueuePending    int             `json:"queue_pending"`
	CurrentTask     string          `json:"current_task"`
	DeviceName      string          `json:"device_name"`
	DeviceNameRaw   string          `json:"device_name_raw"`
	PythonVersion   string          `json:"python_version"`
	LastUpdate      time.Time       `json:"last_update"`
	Status          string          `json:"status"`
	Workflow        json.RawMessage `json:"workflow,omitempty"`
	GPUTemperatureC *float64        `json:"gpu_temperature_c,omitempty"`
}

type jsonFailure struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

type jsonResult struct {
	CycleID  string         `json:"cycle_id"`
	Servers  []jsonSnapshot `json:"servers"`
	Warnings []jsonFailure  `json:"warnings"`
}

func writeJSONResult(w io.Writer, result gpuboard.PollResult) error {
	out := jsonResult{
		CycleID:  result.CycleID,
		Servers:  make([]jsonSnapshot, 0, len(result.Snapshots)),
		Warnings: make([]jsonFailure, 0, len(result.Failures)),
	}
	for _, s := range result.Snapshots {
		out.Servers = append(out.Servers, jsonSnapshot{
			Address:         s.Address,
			VRAMTotalGB:     s.VRAMTotalGB,
			VRAMFreeGB:      s.VRAMFreeGB,
			QueueRunning:    s.QueueRunning,
			QueuePending:    s.QueuePending,
			CurrentTask:     s.CurrentTask,
			DeviceName:      s.DeviceName,
			DeviceNameRaw:   s.DeviceNameRaw,
			PythonVersion:   s.PythonVersion,
			LastUpdate:      s.LastUpdate,
			Status:          s.Status.String(),
			Workflow:        s.Workflow,
			GPUTemperatureC: s.GPUTemperatureC,
		})
	}
	for _, f := range result.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out.Warnings = append(out.Warnings, jsonFailure{
			Address: f.Address,
			Kind:    string(f.Kind),
			Error:   msg,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
