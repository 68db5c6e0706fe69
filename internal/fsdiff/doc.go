// Package fsdiff compares a catalog unit's directories with what the unit
// already knows about.
//
// Discovery looks only at the top level of each directory: a game is either a
// file carrying one of the configured extensions or a directory. Hidden names
// are skipped, and empty directories are skipped unless configured otherwise.
// Directories that are missing or unreadable are logged and skipped so one bad
// mount never fails a whole scan.
package fsdiff
