// Package store persists catalog units and entries in SQLite.
//
// Store implements catalog.Store on top of database/sql with the pure-Go
// modernc.org/sqlite driver. Every load reads committed rows, never a cached
// copy, and Commit applies a whole scan reconciliation inside one immediate
// transaction so concurrent scans of different units never interleave partial
// writes.
//
// The schema lives in schema.sql. Schema changes bump schemaVersion in
// schema.go; users delete the catalog database to adopt the new schema.
package store
