package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
	"gameshelf/internal/ipc"
)

func newUnitsCommand(ctx *commandContext) *cobra.Command {
	unitsCmd := &cobra.Command{
		Use:     "units",
		Aliases: []string{"unit"},
		Short:   "Manage catalog units",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListUnits()
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(cmd, resp.Units)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Units) == 0 {
					fmt.Fprintln(stdout, "No units configured")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Name", "Directories", "Entries", "Unmatched", "Ignored", "Updated"},
					unitRows(resp.Units),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	addJSONFlag(listCmd)

	createCmd := &cobra.Command{
		Use:   "create <name> <dir>[=<external>]...",
		Short: "Create a unit rooted at one or more directories",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs, err := parseDirectories(args[1:])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CreateUnit(args[0], dirs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created unit %d (%s)\n", resp.Unit.ID, resp.Unit.Name)
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <unit-id>",
		Short: "Delete a unit and all of its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.DeleteUnit(ids[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted unit %d\n", ids[0])
				return nil
			})
		},
	}

	unmatchedCmd := &cobra.Command{
		Use:   "unmatched <unit-id>",
		Short: "List paths no provider could identify",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListUnits()
				if err != nil {
					return err
				}
				for _, unit := range resp.Units {
					if unit.ID != ids[0] {
						continue
					}
					if jsonFlag(cmd) {
						return writeJSON(cmd, unit.Unmatched)
					}
					stdout := cmd.OutOrStdout()
					if len(unit.Unmatched) == 0 {
						fmt.Fprintln(stdout, "No unmatched paths")
						return nil
					}
					for _, path := range unit.Unmatched {
						fmt.Fprintln(stdout, path)
					}
					return nil
				}
				return fmt.Errorf("unit %d not found", ids[0])
			})
		},
	}
	addJSONFlag(unmatchedCmd)

	unitsCmd.AddCommand(listCmd, createCmd, deleteCmd, unmatchedCmd)
	return unitsCmd
}

func unitRows(units []catalog.Unit) [][]string {
	rows := make([][]string, 0, len(units))
	for _, unit := range units {
		rows = append(rows, []string{
			fmt.Sprintf("%d", unit.ID),
			unit.Name,
			strings.Join(unit.DirectoryPaths(), "\n"),
			humanize.Comma(int64(len(unit.EntryIDs))),
			humanize.Comma(int64(len(unit.Unmatched))),
			humanize.Comma(int64(len(unit.Ignored))),
			humanize.Time(unit.UpdatedAt),
		})
	}
	return rows
}

// parseDirectories accepts "internal" or "internal=external" arguments.
func parseDirectories(args []string) ([]catalog.DirectoryMapping, error) {
	dirs := make([]catalog.DirectoryMapping, 0, len(args))
	for _, arg := range args {
		internal, external, _ := strings.Cut(arg, "=")
		expanded, err := config.ExpandPath(strings.TrimSpace(internal))
		if err != nil {
			return nil, fmt.Errorf("resolve directory %q: %w", internal, err)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, fmt.Errorf("resolve directory %q: %w", internal, err)
		}
		dirs = append(dirs, catalog.DirectoryMapping{Internal: abs, External: strings.TrimSpace(external)})
	}
	return dirs, nil
}
