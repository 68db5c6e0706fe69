package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gameshelf/internal/catalog"
	"gameshelf/internal/logging"
	"gameshelf/internal/matching"
	"gameshelf/internal/scan"
	"gameshelf/internal/services"
)

var errNotRunning = errors.New("daemon is not running")

// MatchRequest describes a manual match. With EntryID the entry is
// re-matched in place; otherwise Path (a discovered path of UnitID) becomes
// a new entry.
type MatchRequest struct {
	EntryID     int64
	UnitID      int64
	Path        string
	ExternalIDs map[string]string
}

// TriggerScan dispatches scans of kind for unitIDs (all units when empty).
func (d *Daemon) TriggerScan(ctx context.Context, kind scan.Kind, unitIDs []int64) (scan.TriggerResult, error) {
	if !d.running.Load() {
		return scan.TriggerResult{}, errNotRunning
	}
	return d.orch.TriggerScan(ctx, kind, unitIDs)
}

// ScanProgress returns the latest progress of every scanned unit.
func (d *Daemon) ScanProgress() []scan.Progress {
	return d.orch.Latest()
}

// ListUnits returns every unit.
func (d *Daemon) ListUnits(ctx context.Context) ([]*catalog.Unit, error) {
	return d.store.ListUnits(ctx)
}

// CreateUnit stores a new unit. The watcher picks it up from the catalog bus.
func (d *Daemon) CreateUnit(ctx context.Context, name string, dirs []catalog.DirectoryMapping) (*catalog.Unit, error) {
	return d.core.CreateUnit(ctx, name, dirs)
}

// DeleteUnit removes a unit and its entries. Units with a scan in flight are
// refused.
func (d *Daemon) DeleteUnit(ctx context.Context, id int64) error {
	if d.orch.IsScanning(id) {
		return services.Wrap(services.ErrValidation, "daemon", "delete unit", fmt.Sprintf("unit %d is scanning", id), nil)
	}
	return d.core.DeleteUnit(ctx, id)
}

// ListEntries lists a unit's entries (all when unitID is 0), or searches
// entry titles when query is set.
func (d *Daemon) ListEntries(ctx context.Context, unitID int64, query string, limit int) ([]*catalog.Entry, error) {
	if q := strings.TrimSpace(query); q != "" {
		entries, err := d.store.SearchEntries(ctx, q, limit)
		if err != nil || unitID == 0 {
			return entries, err
		}
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.UnitID == unitID {
				filtered = append(filtered, entry)
			}
		}
		return filtered, nil
	}
	entries, err := d.store.ListEntries(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Search queries every provider for term.
func (d *Daemon) Search(ctx context.Context, term string, limit int) ([]matching.Candidate, error) {
	if strings.TrimSpace(term) == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "search", "search term is required", nil)
	}
	return d.engine.SearchCandidates(ctx, term, limit)
}

// Match applies a manual match chosen from search candidates.
func (d *Daemon) Match(ctx context.Context, req MatchRequest) (*catalog.Entry, error) {
	if len(req.ExternalIDs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "daemon", "match", "at least one external id is required", nil)
	}

	if req.EntryID != 0 {
		existing, err := d.store.LoadEntry(ctx, req.EntryID)
		if err != nil {
			return nil, err
		}
		unit, err := d.store.LoadUnit(ctx, existing.UnitID)
		if err != nil {
			return nil, err
		}
		entry, err := d.engine.IdentifyByExternalIDs(ctx, req.ExternalIDs, existing.Metadata.Path, unit, existing.ID)
		if err != nil {
			return nil, err
		}
		return d.core.ReplaceEntry(ctx, entry)
	}

	unit, err := d.store.LoadUnit(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(req.Path)
	if path == "" || !unit.Contains(path) {
		return nil, services.Wrap(services.ErrValidation, "daemon", "match", fmt.Sprintf("path %q is not inside unit %d", req.Path, unit.ID), nil)
	}
	if existing, err := d.store.FindEntryByPath(ctx, unit.ID, path); err == nil {
		req.EntryID = existing.ID
		return d.Match(ctx, req)
	} else if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	entry, err := d.engine.IdentifyByExternalIDs(ctx, req.ExternalIDs, path, unit, 0)
	if err != nil {
		return nil, err
	}
	if _, err := d.core.AddEntries(ctx, []*catalog.Entry{entry}, unit, true); err != nil {
		return nil, err
	}
	d.logger.Info("path matched manually",
		logging.Int64(logging.FieldUnitID, unit.ID),
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldPath, path),
		logging.String(logging.FieldEventType, "manual_match"),
	)
	return entry, nil
}

// RemoveEntry deletes an entry; its path returns to the unit's unmatched set.
func (d *Daemon) RemoveEntry(ctx context.Context, id int64) (*catalog.Unit, error) {
	return d.core.RemoveEntry(ctx, id)
}

// SetWatcherEnabled starts or stops the filesystem watcher.
func (d *Daemon) SetWatcherEnabled(ctx context.Context, enabled bool) error {
	if !d.running.Load() {
		return errNotRunning
	}
	return d.watcher.SetEnabled(ctx, enabled)
}
