// Package daemon coordinates the long-running gameshelf process.
//
// It wires configuration, the catalog store, the matching engine, the scan
// orchestrator, the filesystem watcher, and the scheduler into a single
// lifecycle with flock-based locking to prevent multiple instances per data
// directory. The daemon also exposes the catalog operations served over IPC:
// unit management, scans, search, manual matching, and entry removal.
//
// Keep orchestration logic here: scanning and matching live in their own
// packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
