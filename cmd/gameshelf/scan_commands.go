package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gameshelf/internal/ipc"
	"gameshelf/internal/scan"
)

const scanPollInterval = 500 * time.Millisecond

func newScanCommand(ctx *commandContext) *cobra.Command {
	var full bool
	var wait bool

	scanCmd := &cobra.Command{
		Use:   "scan [unit-id...]",
		Short: "Scan units for new, removed, and changed game files",
		Long: "Scan compares each unit's directories with the catalog. A quick scan only\n" +
			"identifies new files and drops missing ones; --full also refreshes provider\n" +
			"metadata for every existing entry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			kind := scan.KindQuick
			if full {
				kind = scan.KindFull
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TriggerScan(string(kind), ids)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				for _, id := range resp.Skipped {
					fmt.Fprintf(stdout, "Unit %d is already being scanned\n", id)
				}
				if len(resp.Started) == 0 {
					fmt.Fprintln(stdout, "No scans started")
					return nil
				}
				for _, started := range resp.Started {
					fmt.Fprintf(stdout, "Started %s scan of unit %d (%s)\n", kind, started.UnitID, started.ScanID)
				}
				if !wait {
					return nil
				}
				return waitForScans(cmd, client, resp.Started)
			})
		},
	}
	scanCmd.Flags().BoolVar(&full, "full", false, "Refresh metadata of existing entries as well")
	scanCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the scans to finish and print results")

	progressCmd := &cobra.Command{
		Use:   "progress [unit-id]",
		Short: "Show the latest scan progress per unit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var unitID int64
			if len(args) == 1 {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				unitID = ids[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ScanProgress(unitID)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(cmd, resp.Progress)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Progress) == 0 {
					fmt.Fprintln(stdout, "No scans recorded")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Unit", "Kind", "Status", "Step", "Progress", "Started", "Result"},
					progressRows(resp.Progress),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	addJSONFlag(progressCmd)
	scanCmd.AddCommand(progressCmd)
	return scanCmd
}

func waitForScans(cmd *cobra.Command, client *ipc.Client, started []scan.Started) error {
	stdout := cmd.OutOrStdout()
	pending := make(map[string]int64, len(started))
	for _, s := range started {
		pending[s.ScanID] = s.UnitID
	}
	lastStep := make(map[string]string, len(started))
	var failed int
	for len(pending) > 0 {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(scanPollInterval):
		}
		resp, err := client.ScanProgress(0)
		if err != nil {
			return err
		}
		for _, p := range resp.Progress {
			if _, ok := pending[p.ScanID]; !ok {
				continue
			}
			if p.Step.Description != lastStep[p.ScanID] {
				lastStep[p.ScanID] = p.Step.Description
				fmt.Fprintf(stdout, "  %s: %s\n", unitLabel(p), p.Step.Description)
			}
			if !p.Terminal() {
				continue
			}
			delete(pending, p.ScanID)
			printScanOutcome(stdout, p)
			if p.Status == scan.StatusFailed {
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d scan(s) failed", failed)
	}
	return nil
}

func printScanOutcome(w io.Writer, p scan.Progress) {
	if p.Status == scan.StatusFailed {
		fmt.Fprintf(w, "%s: scan failed: %s\n", unitLabel(p), p.Error)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", unitLabel(p), resultSummary(p.Result))
}

func progressRows(progress []scan.Progress) [][]string {
	rows := make([][]string, 0, len(progress))
	for _, p := range progress {
		result := ""
		if p.Status == scan.StatusFailed {
			result = p.Error
		} else if p.Result != nil {
			result = resultSummary(p.Result)
		}
		percent := "-"
		if pct := p.Percent(); pct >= 0 {
			percent = fmt.Sprintf("%.0f%%", pct)
		}
		rows = append(rows, []string{
			unitLabel(p),
			string(p.Kind),
			string(p.Status),
			p.Step.Description,
			percent,
			humanize.Time(p.StartedAt),
			result,
		})
	}
	return rows
}

func resultSummary(result *scan.Result) string {
	if result == nil {
		return ""
	}
	return fmt.Sprintf("%d new, %d removed, %d unmatched, %d updated",
		result.New, result.Removed, result.Unmatched, result.Updated)
}

func unitLabel(p scan.Progress) string {
	if name := strings.TrimSpace(p.UnitName); name != "" {
		return name
	}
	return fmt.Sprintf("unit %d", p.UnitID)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
