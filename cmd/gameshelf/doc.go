// Command gameshelf is the CLI for the gameshelf catalog daemon.
//
// It manages the daemon process (start, stop, status, daemon run), edits
// configuration, and drives catalog operations over the daemon's Unix socket:
// scans, units, entries, provider search, manual matches, and the watcher.
package main
