// Package preflight provides readiness checks for the filesystem paths and
// metadata providers gameshelf depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll on startup and logs every failed check so a
//     misconfigured unit or unreachable provider is visible before a scan.
//   - The CLI "gameshelf status" command renders the same results.
//
// Each provider check is gated by its config toggle -- disabled providers are
// reported without a network round trip.
package preflight
