// Package catalog owns the game library domain model and the operations that
// keep it consistent.
//
// A Unit is a set of scanned directories. Every path discovered beneath those
// directories belongs to exactly one of three groups: it backs an Entry owned
// by the unit, it sits in the unit's unmatched set, or it is ignored. Core is
// the only writer of units and entries outside of scans; it routes every
// mutation through Store.Commit so the partition holds after each call and
// publishes an Event for each change.
//
// Entry fields carry Provenance. Assigning a field through SetFrom or the
// edit helpers always rewrites its provenance, so a later full scan can tell
// provider data it may refresh from user edits it must keep.
package catalog
