package catalog

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DirectoryMapping pairs a scan root with an optional display path.
type DirectoryMapping struct {
	Internal string `json:"internal"`
	External string `json:"external,omitempty"`
}

// IgnoreSource tags who excluded a path from matching.
type IgnoreSource string

const (
	IgnoredByUser     IgnoreSource = "user"
	IgnoredByProvider IgnoreSource = "provider"
)

// IgnoredPath is a discovered path excluded from matching.
type IgnoredPath struct {
	ID       int64        `json:"id"`
	Path     string       `json:"path"`
	Source   IgnoreSource `json:"source"`
	SourceID string       `json:"source_id,omitempty"`
}

// Unit is a catalog unit: a set of scanned directories and the entries,
// unmatched paths, and ignored paths discovered beneath them.
type Unit struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Directories []DirectoryMapping `json:"directories"`
	EntryIDs    []int64            `json:"entry_ids"`
	Unmatched   []string           `json:"unmatched"`
	Ignored     []IgnoredPath      `json:"ignored"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// HasEntry reports whether the unit owns entry id.
func (u *Unit) HasEntry(id int64) bool {
	return id != 0 && slices.Contains(u.EntryIDs, id)
}

// IsUnmatched reports whether path sits in the unmatched set.
func (u *Unit) IsUnmatched(path string) bool {
	return slices.Contains(u.Unmatched, path)
}

// IsIgnored reports whether path has an ignore record.
func (u *Unit) IsIgnored(path string) bool {
	return slices.ContainsFunc(u.Ignored, func(ig IgnoredPath) bool { return ig.Path == path })
}

// AddUnmatched inserts path keeping the set sorted. It reports whether the set changed.
func (u *Unit) AddUnmatched(path string) bool {
	idx, found := slices.BinarySearch(u.Unmatched, path)
	if found {
		return false
	}
	u.Unmatched = slices.Insert(u.Unmatched, idx, path)
	return true
}

// RemoveUnmatched deletes path from the unmatched set.
func (u *Unit) RemoveUnmatched(path string) bool {
	idx, found := slices.BinarySearch(u.Unmatched, path)
	if !found {
		return false
	}
	u.Unmatched = slices.Delete(u.Unmatched, idx, idx+1)
	return true
}

// Touch bumps UpdatedAt to now, or one nanosecond past the previous value when
// the clock has not advanced.
func (u *Unit) Touch(now time.Time) {
	now = now.UTC()
	if !now.After(u.UpdatedAt) {
		now = u.UpdatedAt.Add(time.Nanosecond)
	}
	u.UpdatedAt = now
}

// Contains reports whether path lies beneath one of the unit's directories.
func (u *Unit) Contains(path string) bool {
	return u.DirectoryFor(path) != ""
}

// DirectoryFor returns the scan root containing path, or "".
func (u *Unit) DirectoryFor(path string) string {
	for _, dir := range u.Directories {
		if IsWithin(dir.Internal, path) {
			return dir.Internal
		}
	}
	return ""
}

// DirectoryPaths returns the internal scan roots.
func (u *Unit) DirectoryPaths() []string {
	out := make([]string, 0, len(u.Directories))
	for _, dir := range u.Directories {
		out = append(out, dir.Internal)
	}
	return out
}

// Clone returns a deep copy.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	out := *u
	out.Directories = slices.Clone(u.Directories)
	out.EntryIDs = slices.Clone(u.EntryIDs)
	out.Unmatched = slices.Clone(u.Unmatched)
	out.Ignored = slices.Clone(u.Ignored)
	return &out
}

// IsWithin reports whether path equals root or lies beneath it.
func IsWithin(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if root == path {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
