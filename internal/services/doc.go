// Package services defines shared utilities consumed by the scan orchestrator,
// the match engine, and the metadata providers.
//
// Key responsibilities:
//   - Context helpers that stamp unit IDs, scan IDs, scan kinds, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that separate per-path
//     failures (the path lands in the unmatched set) from scan-level failures
//     (the scan is marked failed).
//
// Use these helpers when wiring new catalog logic so operational behaviour
// (error handling, observability) stays uniform across scans.
package services
