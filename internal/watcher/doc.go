// Package watcher turns filesystem notifications under catalog units into
// incremental work: paths appearing or disappearing directly beneath a unit
// directory trigger a quick scan of that unit, and writes inside an existing
// game only recompute that entry's size. Events are batched per poll tick.
package watcher
