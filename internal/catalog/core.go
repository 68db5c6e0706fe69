package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gameshelf/internal/logging"
	"gameshelf/internal/services"
)

// Core applies catalog mutations and publishes the resulting events.
type Core struct {
	store  Store
	bus    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewCore constructs a Core. A nil bus discards events.
func NewCore(store Store, bus Publisher, logger *slog.Logger) *Core {
	return &Core{
		store:  store,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "catalog"),
		now:    time.Now,
	}
}

// Store exposes the underlying store for read paths.
func (c *Core) Store() Store { return c.store }

func (c *Core) publish(evt Event) {
	if c.bus != nil {
		c.bus.Publish(evt)
	}
}

// UnitUpdate describes a partial unit update. Nil fields are left unchanged.
type UnitUpdate struct {
	ID          int64
	Name        *string
	Directories []DirectoryMapping
	// IgnoredPaths replaces the user-sourced ignore records. Provider-sourced
	// records are always kept.
	IgnoredPaths *[]string
}

// EntryEdit describes a user edit. Every non-nil field is stamped UserSourced.
type EntryEdit struct {
	Title    *string
	Summary  *string
	Cover    *string
	Header   *string
	Release  *time.Time
	Genres   *[]string
	Keywords *[]string
}

// CreateUnit validates and stores a new unit.
func (c *Core) CreateUnit(ctx context.Context, name string, dirs []DirectoryMapping) (*Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create unit", "name is required", nil)
	}
	dirs, err := normalizeDirectories(dirs)
	if err != nil {
		return nil, err
	}
	if err := c.checkDirectoryConflicts(ctx, 0, dirs); err != nil {
		return nil, err
	}
	now := c.now().UTC()
	unit := &Unit{Name: name, Directories: dirs, CreatedAt: now, UpdatedAt: now}
	if err := c.store.SaveUnit(ctx, unit); err != nil {
		return nil, fmt.Errorf("save unit: %w", err)
	}
	c.logger.Info("unit created",
		logging.Int64(logging.FieldUnitID, unit.ID),
		logging.String("name", unit.Name),
		logging.Strings("directories", unit.DirectoryPaths()),
		logging.String(logging.FieldEventType, "unit_created"),
	)
	c.publish(unitEvent(UnitCreated, unit))
	return unit, nil
}

// EnsureUnit returns the unit named name, creating it when absent.
func (c *Core) EnsureUnit(ctx context.Context, name string, dirs []DirectoryMapping) (*Unit, bool, error) {
	units, err := c.store.ListUnits(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list units: %w", err)
	}
	for _, unit := range units {
		if unit.Name == strings.TrimSpace(name) {
			return unit, false, nil
		}
	}
	unit, err := c.CreateUnit(ctx, name, dirs)
	if err != nil {
		return nil, false, err
	}
	return unit, true, nil
}

// UpdateUnit renames a unit, replaces its directories, or replaces its
// user-sourced ignore records. Entries, unmatched paths, and ignore records
// beneath removed directories are dropped.
func (c *Core) UpdateUnit(ctx context.Context, update UnitUpdate) (*Unit, error) {
	unit, err := c.store.LoadUnit(ctx, update.ID)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, services.Wrap(services.ErrValidation, "catalog", "update unit", "name is required", nil)
		}
		unit.Name = name
	}

	cs := Changeset{UnitID: unit.ID}
	if update.Directories != nil {
		dirs, err := normalizeDirectories(update.Directories)
		if err != nil {
			return nil, err
		}
		if err := c.checkDirectoryConflicts(ctx, unit.ID, dirs); err != nil {
			return nil, err
		}
		unit.Directories = dirs
		entries, err := c.store.ListEntries(ctx, unit.ID)
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		for _, entry := range entries {
			if !unit.Contains(entry.Metadata.Path) {
				cs.RemovedEntryIDs = append(cs.RemovedEntryIDs, entry.ID)
			}
		}
		unit.Unmatched = slices.DeleteFunc(unit.Unmatched, func(p string) bool { return !unit.Contains(p) })
		unit.Ignored = slices.DeleteFunc(unit.Ignored, func(ig IgnoredPath) bool { return !unit.Contains(ig.Path) })
	}

	if update.IgnoredPaths != nil {
		kept := slices.DeleteFunc(slices.Clone(unit.Ignored), func(ig IgnoredPath) bool { return ig.Source == IgnoredByUser })
		for _, path := range *update.IgnoredPaths {
			path = filepath.Clean(strings.TrimSpace(path))
			if path == "." || slices.ContainsFunc(kept, func(ig IgnoredPath) bool { return ig.Path == path }) {
				continue
			}
			kept = append(kept, IgnoredPath{Path: path, Source: IgnoredByUser})
			unit.RemoveUnmatched(path)
			entry, err := c.store.FindEntryByPath(ctx, unit.ID, path)
			switch {
			case err == nil:
				cs.RemovedEntryIDs = append(cs.RemovedEntryIDs, entry.ID)
			case !errors.Is(err, services.ErrNotFound):
				return nil, fmt.Errorf("find entry: %w", err)
			}
		}
		unit.Ignored = kept
	}

	if !cs.IsEmpty() {
		committed, err := c.store.Commit(ctx, cs)
		if err != nil {
			return nil, fmt.Errorf("commit unit update: %w", err)
		}
		unit.EntryIDs = committed.EntryIDs
		unit.UpdatedAt = committed.UpdatedAt
		for _, id := range cs.RemovedEntryIDs {
			c.publish(Event{Type: EntryRemoved, UnitID: unit.ID, EntryID: id})
		}
	}

	unit.Touch(c.now())
	if err := c.store.SaveUnit(ctx, unit); err != nil {
		return nil, fmt.Errorf("save unit: %w", err)
	}
	fresh, err := c.store.LoadUnit(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	c.publish(unitEvent(UnitUpdated, fresh))
	return fresh, nil
}

// DeleteUnit removes a unit and every entry it owns.
func (c *Core) DeleteUnit(ctx context.Context, id int64) error {
	unit, err := c.store.LoadUnit(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.DeleteUnit(ctx, id); err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	c.logger.Info("unit deleted",
		logging.Int64(logging.FieldUnitID, id),
		logging.String(logging.FieldEventType, "unit_deleted"),
	)
	c.publish(unitEvent(UnitDeleted, unit))
	return nil
}

// AddEntries attaches entries to unit. Entries the unit already owns are
// skipped; the rest are stored and their paths leave the unmatched set. The
// unit is committed when something changed or persist is set.
func (c *Core) AddEntries(ctx context.Context, entries []*Entry, unit *Unit, persist bool) (*Unit, error) {
	fresh := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || unit.HasEntry(entry.ID) {
			continue
		}
		entry.UnitID = unit.ID
		fresh = append(fresh, entry)
	}
	if len(fresh) == 0 && !persist {
		return unit, nil
	}
	return c.Commit(ctx, Changeset{UnitID: unit.ID, NewEntries: fresh})
}

// RemoveEntry deletes an entry and returns its backing path to the owning
// unit's unmatched set.
func (c *Core) RemoveEntry(ctx context.Context, id int64) (*Unit, error) {
	entry, err := c.store.LoadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	unit, err := c.store.LoadUnit(ctx, entry.UnitID)
	if err != nil {
		return nil, err
	}
	if !unit.HasEntry(id) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "remove entry", fmt.Sprintf("entry %d not owned by unit %d", id, unit.ID), nil)
	}
	updated, err := c.store.Commit(ctx, Changeset{
		UnitID:          unit.ID,
		RemovedEntryIDs: []int64{id},
		NewUnmatched:    []string{entry.Metadata.Path},
	})
	if err != nil {
		return nil, fmt.Errorf("commit entry removal: %w", err)
	}
	c.logger.Info("entry removed",
		logging.Int64(logging.FieldEntryID, id),
		logging.Int64(logging.FieldUnitID, unit.ID),
		logging.String(logging.FieldPath, entry.Metadata.Path),
		logging.String(logging.FieldEventType, "entry_removed"),
	)
	c.publish(entryEvent(EntryRemoved, entry))
	c.publish(unitEvent(UnitUpdated, updated))
	return updated, nil
}

// Commit applies a reconciliation changeset and publishes one event per change.
func (c *Core) Commit(ctx context.Context, cs Changeset) (*Unit, error) {
	unit, err := c.store.Commit(ctx, cs)
	if err != nil {
		return nil, err
	}
	for _, entry := range cs.NewEntries {
		if entry.ID != 0 {
			c.publish(entryEvent(EntryCreated, entry))
		}
	}
	for _, refresh := range cs.Refreshes {
		if refresh.Updated != nil {
			c.publish(entryEvent(EntryUpdated, refresh.Updated))
		}
	}
	for _, id := range cs.RemovedEntryIDs {
		c.publish(Event{Type: EntryRemoved, UnitID: cs.UnitID, EntryID: id})
	}
	for _, path := range cs.RemovedEntryPaths {
		c.publish(Event{Type: EntryRemoved, UnitID: cs.UnitID, Path: path})
	}
	c.publish(unitEvent(UnitUpdated, unit))
	return unit, nil
}

// EditEntry applies a user edit, stamping every edited field UserSourced.
func (c *Core) EditEntry(ctx context.Context, id int64, edit EntryEdit, userID string) (*Entry, error) {
	src := &Entry{}
	var fields []Field
	if edit.Title != nil {
		title := strings.TrimSpace(*edit.Title)
		if title == "" {
			return nil, services.Wrap(services.ErrValidation, "catalog", "edit entry", "title cannot be empty", nil)
		}
		src.Title = title
		fields = append(fields, FieldTitle)
	}
	if edit.Summary != nil {
		src.Summary = *edit.Summary
		fields = append(fields, FieldSummary)
	}
	if edit.Cover != nil {
		src.Cover = *edit.Cover
		fields = append(fields, FieldCover)
	}
	if edit.Header != nil {
		src.Header = *edit.Header
		fields = append(fields, FieldHeader)
	}
	if edit.Release != nil {
		src.Release = edit.Release
		fields = append(fields, FieldRelease)
	}
	if edit.Genres != nil {
		src.Genres = *edit.Genres
		fields = append(fields, FieldGenres)
	}
	if edit.Keywords != nil {
		src.Keywords = *edit.Keywords
		fields = append(fields, FieldKeywords)
	}
	if len(fields) == 0 {
		return c.store.LoadEntry(ctx, id)
	}
	prov := UserSourced(userID, c.now())
	entry, _, err := c.store.UpdateEntry(ctx, id, func(e *Entry) (bool, error) {
		for _, field := range fields {
			e.SetFrom(field, src, prov)
		}
		e.UpdatedAt = c.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit entry: %w", err)
	}
	c.publish(entryEvent(EntryUpdated, entry))
	return entry, nil
}

// IncrementDownloadCount bumps the usage counter of an entry.
func (c *Core) IncrementDownloadCount(ctx context.Context, id int64) (*Entry, error) {
	entry, _, err := c.store.UpdateEntry(ctx, id, func(e *Entry) (bool, error) {
		e.Metadata.DownloadCount++
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("increment download count: %w", err)
	}
	c.publish(entryEvent(EntryUpdated, entry))
	return entry, nil
}

// ReplaceEntry stores the result of a manual re-match over an existing entry.
// The replacement keeps the owning unit, backing path, creation time and
// download count of the committed row.
func (c *Core) ReplaceEntry(ctx context.Context, replacement *Entry) (*Entry, error) {
	stored, _, err := c.store.UpdateEntry(ctx, replacement.ID, func(e *Entry) (bool, error) {
		next := replacement.Clone()
		next.UnitID = e.UnitID
		next.CreatedAt = e.CreatedAt
		next.Metadata.Path = e.Metadata.Path
		next.Metadata.DownloadCount = e.Metadata.DownloadCount
		if next.Metadata.FileSize == 0 {
			next.Metadata.FileSize = e.Metadata.FileSize
		}
		next.UpdatedAt = c.now().UTC()
		*e = *next
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace entry: %w", err)
	}
	c.publish(entryEvent(EntryUpdated, stored))
	return stored, nil
}

// UpdateFileSize stores a recomputed size, persisting only when it changed.
// entry is updated in place to the committed row.
func (c *Core) UpdateFileSize(ctx context.Context, entry *Entry, size int64) (bool, error) {
	stored, changed, err := c.store.UpdateEntry(ctx, entry.ID, func(e *Entry) (bool, error) {
		if e.Metadata.FileSize == size {
			return false, nil
		}
		e.Metadata.FileSize = size
		e.UpdatedAt = c.now().UTC()
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("update file size: %w", err)
	}
	*entry = *stored
	if changed {
		c.publish(entryEvent(EntryUpdated, entry))
	}
	return changed, nil
}

func normalizeDirectories(dirs []DirectoryMapping) ([]DirectoryMapping, error) {
	if len(dirs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "catalog", "directories", "at least one directory is required", nil)
	}
	out := make([]DirectoryMapping, 0, len(dirs))
	for _, dir := range dirs {
		internal := strings.TrimSpace(dir.Internal)
		if internal == "" || !filepath.IsAbs(internal) {
			return nil, services.Wrap(services.ErrValidation, "catalog", "directories", fmt.Sprintf("directory %q must be an absolute path", dir.Internal), nil)
		}
		internal = filepath.Clean(internal)
		for _, seen := range out {
			if IsWithin(seen.Internal, internal) || IsWithin(internal, seen.Internal) {
				return nil, services.Wrap(services.ErrValidation, "catalog", "directories", fmt.Sprintf("directory %q overlaps %q", internal, seen.Internal), nil)
			}
		}
		out = append(out, DirectoryMapping{Internal: internal, External: strings.TrimSpace(dir.External)})
	}
	return out, nil
}

func (c *Core) checkDirectoryConflicts(ctx context.Context, selfID int64, dirs []DirectoryMapping) error {
	units, err := c.store.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}
	for _, other := range units {
		if other.ID == selfID {
			continue
		}
		for _, mine := range dirs {
			for _, theirs := range other.Directories {
				if IsWithin(theirs.Internal, mine.Internal) || IsWithin(mine.Internal, theirs.Internal) {
					return services.Wrap(services.ErrValidation, "catalog", "directories",
						fmt.Sprintf("directory %q is already mapped by unit %q", mine.Internal, other.Name), nil)
				}
			}
		}
	}
	return nil
}
