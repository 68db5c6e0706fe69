package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gameshelf/internal/daemon"
	"gameshelf/internal/daemonctl"
	"gameshelf/internal/daemonrun"
	"gameshelf/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gameshelf daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the gameshelf daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, catalog, and provider status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd, status)
			return nil
		},
	}
	addJSONFlag(statusCmd)

	return []*cobra.Command{startCmd, stopCmd, statusCmd, newDaemonCommand(ctx)}
}

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon process utilities",
	}

	var logLevel string
	var development bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts := daemonrun.Options{LogLevel: logLevel, Development: development}
			if ctx.socketFlag != nil {
				opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	runCmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}

func renderStatus(cmd *cobra.Command, status daemon.Status) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	printSection(stdout, "Daemon", colorize)
	if status.Running {
		detail := fmt.Sprintf("pid %d, up since %s", status.PID, humanize.Time(status.StartedAt))
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, detail, colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	if status.Running {
		fmt.Fprintln(stdout, renderStatusLine("Watcher", statusInfo, yesNo(status.WatcherEnabled), colorize))
		next := "disabled"
		if !status.NextScheduled.IsZero() {
			next = humanize.Time(status.NextScheduled)
		}
		fmt.Fprintln(stdout, renderStatusLine("Next full scan", statusInfo, next, colorize))
		active := "none"
		if len(status.ActiveScans) > 0 {
			active = fmt.Sprintf("%d unit(s)", len(status.ActiveScans))
		}
		fmt.Fprintln(stdout, renderStatusLine("Active scans", statusInfo, active, colorize))
	}
	fmt.Fprintln(stdout)

	printSection(stdout, "Catalog", colorize)
	rows := [][]string{
		{"Units", humanize.Comma(int64(status.Stats.Units))},
		{"Entries", humanize.Comma(int64(status.Stats.Entries))},
		{"Unmatched", humanize.Comma(int64(status.Stats.Unmatched))},
		{"Ignored", humanize.Comma(int64(status.Stats.Ignored))},
		{"Total size", humanize.IBytes(uint64(max(status.Stats.TotalSize, 0)))},
	}
	fmt.Fprintln(stdout, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(status.Providers) > 0 {
		fmt.Fprintln(stdout)
		printSection(stdout, "Providers", colorize)
		for _, provider := range status.Providers {
			fmt.Fprintln(stdout, renderStatusLine(provider.ID, statusInfo, fmt.Sprintf("priority %d", provider.Priority), colorize))
		}
	}

	if len(status.Checks) > 0 {
		fmt.Fprintln(stdout)
		printSection(stdout, "Checks", colorize)
		for _, line := range checkLines(status.Checks, colorize) {
			fmt.Fprintln(stdout, line)
		}
	}
}

func checkLines(checks []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(checks))
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	return opts
}
