package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gameshelf/internal/catalog"
	"gameshelf/internal/ipc"
	"gameshelf/internal/matching"
)

func newEntriesCommand(ctx *commandContext) *cobra.Command {
	var unitID int64
	var query string
	var limit int

	cmd := &cobra.Command{
		Use:     "entries",
		Aliases: []string{"ls"},
		Short:   "List cataloged games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListEntries(ipc.ListEntriesRequest{UnitID: unitID, Query: query, Limit: limit})
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(cmd, resp.Entries)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(stdout, "No entries found")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Unit", "Title", "Year", "Size", "Path", "Confirmed"},
					entryRows(resp.Entries),
					[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().Int64VarP(&unitID, "unit", "u", 0, "Only list entries of this unit")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Filter entries by title")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of entries to show")
	addJSONFlag(cmd)
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: "Search metadata providers for a title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Search(term, limit)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(cmd, resp.Candidates)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Candidates) == 0 {
					fmt.Fprintf(stdout, "No providers returned results for %q\n", term)
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Title", "Year", "Score", "External IDs"},
					candidateRows(resp.Candidates),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of candidates")
	addJSONFlag(cmd)
	return cmd
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var entryID int64
	var unitID int64
	var path string
	var ids []string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match an entry or unmatched path to specific provider ids",
		Example: "  gameshelf match --entry 12 --id steam=620\n" +
			"  gameshelf match --unit 1 --path ~/games/portal2.zip --id steam=620",
		RunE: func(cmd *cobra.Command, args []string) error {
			externalIDs, err := parseExternalIDs(ids)
			if err != nil {
				return err
			}
			req := ipc.MatchRequest{EntryID: entryID, UnitID: unitID, ExternalIDs: externalIDs}
			if strings.TrimSpace(path) != "" {
				abs, err := filepath.Abs(path)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				req.Path = abs
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Match(req)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(cmd, resp.Entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Matched entry %d: %s\n", resp.Entry.ID, resp.Entry.Title)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&entryID, "entry", 0, "Existing entry to re-match")
	cmd.Flags().Int64Var(&unitID, "unit", 0, "Unit owning --path")
	cmd.Flags().StringVar(&path, "path", "", "Unmatched path to match")
	cmd.Flags().StringArrayVar(&ids, "id", nil, "Provider id as provider=value (repeatable)")
	addJSONFlag(cmd)
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <entry-id>",
		Short: "Remove an entry; its path returns to the unit's unmatched list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.RemoveEntry(ids[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed entry %d\n", ids[0])
				return nil
			})
		},
	}
}

func newWatcherCommand(ctx *commandContext) *cobra.Command {
	watcherCmd := &cobra.Command{
		Use:   "watcher",
		Short: "Toggle the filesystem watcher",
	}
	toggle := func(enabled bool) *cobra.Command {
		use, short := "off", "Disable the filesystem watcher"
		if enabled {
			use, short = "on", "Enable the filesystem watcher"
		}
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.SetWatcherEnabled(enabled)
					if err != nil {
						return err
					}
					state := "disabled"
					if resp.Enabled {
						state = "enabled"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Watcher %s\n", state)
					return nil
				})
			},
		}
	}
	watcherCmd.AddCommand(toggle(true), toggle(false))
	return watcherCmd
}

func entryRows(entries []catalog.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.ID),
			fmt.Sprintf("%d", entry.UnitID),
			entry.Title,
			yearLabel(entry.Year()),
			humanize.IBytes(uint64(max(entry.Metadata.FileSize, 0))),
			entry.Metadata.Path,
			yesNo(entry.Metadata.MatchConfirmed),
		})
	}
	return rows
}

func candidateRows(candidates []matching.Candidate) [][]string {
	rows := make([][]string, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Entry == nil {
			continue
		}
		rows = append(rows, []string{
			candidate.Entry.Title,
			yearLabel(candidate.Entry.Year()),
			fmt.Sprintf("%d", candidate.Ratio),
			formatExternalIDs(candidate.Entry.Metadata.ExternalIDs),
		})
	}
	return rows
}

func formatExternalIDs(ids map[string]string) string {
	parts := make([]string, 0, len(ids))
	for provider, id := range ids {
		parts = append(parts, provider+"="+id)
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}

func parseExternalIDs(values []string) (map[string]string, error) {
	ids := make(map[string]string, len(values))
	for _, value := range values {
		provider, id, ok := strings.Cut(value, "=")
		provider, id = strings.TrimSpace(provider), strings.TrimSpace(id)
		if !ok || provider == "" || id == "" {
			return nil, fmt.Errorf("invalid provider id %q (want provider=value)", value)
		}
		ids[provider] = id
	}
	return ids, nil
}

func yearLabel(year int) string {
	if year == 0 {
		return ""
	}
	return fmt.Sprintf("%d", year)
}
