package fsdiff

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
	"gameshelf/internal/logging"
)

// Result is the outcome of diffing one unit against the filesystem.
type Result struct {
	// NewPaths are discovered paths the unit does not know in any form.
	NewPaths []string
	// RemovedEntryPaths back an entry but are gone from disk.
	RemovedEntryPaths []string
	// RemovedUnmatched are unmatched paths gone from disk.
	RemovedUnmatched []string
	// StillUnmatched are unmatched paths still present; they may be retried.
	StillUnmatched []string
	// RemovedIgnored are ignore records whose path is gone from disk.
	RemovedIgnored []catalog.IgnoredPath
	// Discovered is every game path currently on disk, sorted.
	Discovered []string
}

// Differ discovers game paths under unit directories.
type Differ struct {
	hasExtension func(string) bool
	includeEmpty bool
	logger       *slog.Logger
}

// New builds a Differ from scan configuration.
func New(cfg *config.Config, logger *slog.Logger) *Differ {
	return &Differ{
		hasExtension: cfg.HasExtension,
		includeEmpty: cfg.Scan.ScanEmptyDirectories,
		logger:       logging.NewComponentLogger(logger, "fsdiff"),
	}
}

// Diff discovers the unit's game paths and classifies them against
// entryPaths (paths backing the unit's entries) and the unit's unmatched and
// ignored sets.
func (d *Differ) Diff(ctx context.Context, unit *catalog.Unit, entryPaths []string) (Result, error) {
	discovered, err := d.Discover(ctx, unit)
	if err != nil {
		return Result{}, err
	}
	present := make(map[string]struct{}, len(discovered))
	for _, path := range discovered {
		present[path] = struct{}{}
	}

	known := make(map[string]struct{}, len(entryPaths)+len(unit.Unmatched)+len(unit.Ignored))
	for _, path := range entryPaths {
		known[path] = struct{}{}
	}
	for _, path := range unit.Unmatched {
		known[path] = struct{}{}
	}
	for _, ig := range unit.Ignored {
		known[ig.Path] = struct{}{}
	}

	res := Result{Discovered: discovered}
	for _, path := range discovered {
		if _, ok := known[path]; !ok {
			res.NewPaths = append(res.NewPaths, path)
		}
	}
	for _, path := range entryPaths {
		if _, ok := present[path]; !ok {
			res.RemovedEntryPaths = append(res.RemovedEntryPaths, path)
		}
	}
	for _, path := range unit.Unmatched {
		if _, ok := present[path]; ok {
			res.StillUnmatched = append(res.StillUnmatched, path)
		} else {
			res.RemovedUnmatched = append(res.RemovedUnmatched, path)
		}
	}
	for _, ig := range unit.Ignored {
		if _, ok := present[ig.Path]; !ok {
			res.RemovedIgnored = append(res.RemovedIgnored, ig)
		}
	}
	return res, nil
}

// Discover lists the game paths directly beneath each of the unit's
// directories.
func (d *Differ) Discover(ctx context.Context, unit *catalog.Unit) ([]string, error) {
	var out []string
	for _, dir := range unit.Directories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root := dir.Internal
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			logging.WarnWithContext(d.logger, "invalid unit directory", "directory_invalid",
				logging.String(logging.FieldPath, root),
				logging.Int64(logging.FieldUnitID, unit.ID),
				logging.String(logging.FieldErrorHint, "check that the directory exists and is mounted"),
				logging.String(logging.FieldImpact, "directory skipped for this scan"),
			)
			continue
		}
		for _, entry := range d.readDir(root) {
			path := filepath.Join(root, entry.Name())
			if entry.IsDir() || isDirSymlink(path, entry) {
				if !d.includeEmpty && len(d.readDir(path)) == 0 {
					d.logger.Debug("skipping empty directory", logging.String(logging.FieldPath, path))
					continue
				}
				out = append(out, path)
				continue
			}
			if d.hasExtension(entry.Name()) {
				out = append(out, path)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// IsGamePath reports whether path, a direct child of a unit directory, would
// be discovered.
func (d *Differ) IsGamePath(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return d.includeEmpty || len(d.readDir(path)) > 0
	}
	return d.hasExtension(filepath.Base(path))
}

func (d *Differ) readDir(dir string) []fs.DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		d.logger.Warn("read directory failed",
			logging.String(logging.FieldPath, dir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "directory_read_failed"),
		)
		return nil
	}
	return slices.DeleteFunc(entries, func(e fs.DirEntry) bool { return isHidden(e.Name()) })
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isDirSymlink(path string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
