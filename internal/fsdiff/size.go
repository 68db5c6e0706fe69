package fsdiff

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gameshelf/internal/logging"
)

// Size returns the size of a file, or the summed size of every regular file
// beneath a directory. Unreadable paths count as zero.
func Size(path string, logger *slog.Logger) int64 {
	info, err := os.Stat(path)
	if err != nil {
		if logger != nil {
			logger.Warn("size calculation failed",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
			)
		}
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
