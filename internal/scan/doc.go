// Package scan reconciles catalog units with the filesystem.
//
// An Orchestrator dispatches quick, full, and scheduled scans. Each unit has
// at most one scan in flight; a trigger for a busy unit is skipped. Unit scans
// share a bounded dispatch pool and fan their per-path work out to a separate
// bounded task pool, so one failing path never aborts its siblings. Progress
// snapshots are published on an events.Bus and retained for replay.
package scan
