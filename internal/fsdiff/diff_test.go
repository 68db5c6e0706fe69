package fsdiff_test

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"gameshelf/internal/catalog"
	"gameshelf/internal/fsdiff"
	"gameshelf/internal/logging"
	"gameshelf/internal/testsupport"
)

func TestDiffClassifiesPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	root := filepath.Join(testsupport.BaseDir(cfg), "games")

	testsupport.WriteTree(t, root, map[string]int64{
		"new.ZIP":               10,
		"known.zip":             10,
		"pending.iso":           10,
		"notes.txt":             10,
		".hidden.zip":           10,
		"Folder Game/setup.bin": 10,
		"empty/":                0,
	})

	unit := &catalog.Unit{
		ID:          1,
		Directories: []catalog.DirectoryMapping{{Internal: root}, {Internal: filepath.Join(testsupport.BaseDir(cfg), "missing")}},
		Unmatched:   []string{filepath.Join(root, "pending.iso"), filepath.Join(root, "vanished.zip")},
		Ignored: []catalog.IgnoredPath{
			{ID: 7, Path: filepath.Join(root, "gone-ignored.zip"), Source: catalog.IgnoredByUser},
		},
	}
	entryPaths := []string{filepath.Join(root, "known.zip"), filepath.Join(root, "deleted.zip")}

	differ := fsdiff.New(cfg, logging.NewNop())
	res, err := differ.Diff(context.Background(), unit, entryPaths)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	wantNew := []string{filepath.Join(root, "Folder Game"), filepath.Join(root, "new.ZIP")}
	if !slices.Equal(res.NewPaths, wantNew) {
		t.Fatalf("NewPaths = %v, want %v", res.NewPaths, wantNew)
	}
	if !slices.Equal(res.RemovedEntryPaths, []string{filepath.Join(root, "deleted.zip")}) {
		t.Fatalf("RemovedEntryPaths = %v", res.RemovedEntryPaths)
	}
	if !slices.Equal(res.RemovedUnmatched, []string{filepath.Join(root, "vanished.zip")}) {
		t.Fatalf("RemovedUnmatched = %v", res.RemovedUnmatched)
	}
	if !slices.Equal(res.StillUnmatched, []string{filepath.Join(root, "pending.iso")}) {
		t.Fatalf("StillUnmatched = %v", res.StillUnmatched)
	}
	if len(res.RemovedIgnored) != 1 || res.RemovedIgnored[0].ID != 7 {
		t.Fatalf("RemovedIgnored = %v", res.RemovedIgnored)
	}
}

func TestDiscoverIncludesEmptyDirectoriesWhenConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scan.ScanEmptyDirectories = true
	root := filepath.Join(testsupport.BaseDir(cfg), "games")
	testsupport.MkdirAll(t, filepath.Join(root, "empty"))

	differ := fsdiff.New(cfg, logging.NewNop())
	got, err := differ.Discover(context.Background(), &catalog.Unit{Directories: []catalog.DirectoryMapping{{Internal: root}}})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if !slices.Equal(got, []string{filepath.Join(root, "empty")}) {
		t.Fatalf("Discover = %v", got)
	}
	if !differ.IsGamePath(filepath.Join(root, "empty")) {
		t.Fatal("expected empty directory to count as a game path")
	}
}

func TestSize(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "game", "a.bin"), 100)
	testsupport.WriteFile(t, filepath.Join(dir, "game", "sub", "b.bin"), 50)
	testsupport.WriteFile(t, filepath.Join(dir, "single.zip"), 42)

	if got := fsdiff.Size(filepath.Join(dir, "game"), nil); got != 150 {
		t.Fatalf("directory size = %d, want 150", got)
	}
	if got := fsdiff.Size(filepath.Join(dir, "single.zip"), nil); got != 42 {
		t.Fatalf("file size = %d, want 42", got)
	}
	if got := fsdiff.Size(filepath.Join(dir, "missing"), logging.NewNop()); got != 0 {
		t.Fatalf("missing size = %d, want 0", got)
	}
}
