// Package localdb implements an offline metadata provider over a TOML file of
// known games. The file is loaded lazily and reloaded whenever its
// modification time changes, so edits take effect on the next scan.
package localdb
