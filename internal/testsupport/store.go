package testsupport

import (
	"context"
	"testing"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
	"gameshelf/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewUnit stores a unit rooted at dirs.
func NewUnit(t testing.TB, st catalog.Store, name string, dirs ...string) *catalog.Unit {
	t.Helper()

	unit := &catalog.Unit{Name: name}
	for _, dir := range dirs {
		unit.Directories = append(unit.Directories, catalog.DirectoryMapping{Internal: dir})
	}
	if err := st.SaveUnit(context.Background(), unit); err != nil {
		t.Fatalf("SaveUnit: %v", err)
	}
	return unit
}

// NewEntry commits an entry titled title backed by path into unit.
func NewEntry(t testing.TB, st catalog.Store, unit *catalog.Unit, title, path string) *catalog.Entry {
	t.Helper()

	entry := &catalog.Entry{Title: title, Metadata: catalog.Metadata{Path: path}}
	if _, err := st.Commit(context.Background(), catalog.Changeset{UnitID: unit.ID, NewEntries: []*catalog.Entry{entry}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if entry.ID == 0 {
		t.Fatalf("entry %q was not inserted", title)
	}
	return entry
}
