package catalog

import "context"

// Changeset is one atomic reconciliation of a unit. Store.Commit applies it to
// the committed unit inside a single transaction.
type Changeset struct {
	UnitID int64
	// NewEntries are inserted unless an entry of the unit already backs the
	// same path. Commit assigns their IDs and drops their paths from the
	// unmatched set.
	NewEntries []*Entry
	// Refreshes are applied to the committed row of each entry still owned
	// by the unit, so edits made while the changeset was built survive.
	Refreshes []*EntryRefresh
	// RemovedEntryIDs are deleted; RemovedEntryPaths delete by backing path.
	RemovedEntryIDs   []int64
	RemovedEntryPaths []string
	RemovedUnmatched  []string
	RemovedIgnored    []int64
	// NewUnmatched paths are added unless an entry already backs them.
	NewUnmatched []string
}

// IsEmpty reports whether the changeset would change nothing.
func (c Changeset) IsEmpty() bool {
	return len(c.NewEntries) == 0 && len(c.Refreshes) == 0 &&
		len(c.RemovedEntryIDs) == 0 && len(c.RemovedEntryPaths) == 0 &&
		len(c.RemovedUnmatched) == 0 && len(c.RemovedIgnored) == 0 &&
		len(c.NewUnmatched) == 0
}

// EntryRefresh carries a scan's provider result and measured size for one
// entry. Fresh is nil when no provider result was fetched.
type EntryRefresh struct {
	EntryID  int64
	Fresh    *Entry
	FileSize int64

	// Updated is set by Store.Commit to the row it wrote, or left nil when
	// the entry was gone or nothing changed.
	Updated *Entry
}

// Apply refreshes entry in place and reports whether it changed.
func (r *EntryRefresh) Apply(entry *Entry) bool {
	changed := false
	if r.Fresh != nil {
		changed = entry.Refresh(r.Fresh)
	}
	if entry.Metadata.FileSize != r.FileSize {
		entry.Metadata.FileSize = r.FileSize
		changed = true
	}
	return changed
}

// Store persists units and entries. Loads always return committed state.
type Store interface {
	ListUnits(ctx context.Context) ([]*Unit, error)
	LoadUnit(ctx context.Context, id int64) (*Unit, error)
	SaveUnit(ctx context.Context, unit *Unit) error
	DeleteUnit(ctx context.Context, id int64) error
	LoadEntry(ctx context.Context, id int64) (*Entry, error)
	ListEntries(ctx context.Context, unitID int64) ([]*Entry, error)
	FindEntryByPath(ctx context.Context, unitID int64, path string) (*Entry, error)
	SaveEntry(ctx context.Context, entry *Entry) error
	// UpdateEntry is an atomic read-modify-write of one entry.
	UpdateEntry(ctx context.Context, id int64, mutate func(*Entry) (bool, error)) (*Entry, bool, error)
	Commit(ctx context.Context, cs Changeset) (*Unit, error)
}
