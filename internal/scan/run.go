package scan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"gameshelf/internal/catalog"
	"gameshelf/internal/fsdiff"
	"gameshelf/internal/logging"
	"gameshelf/internal/services"
)

func (o *Orchestrator) runUnit(ctx context.Context, scanID string, kind Kind, unit *catalog.Unit) {
	ctx = services.WithUnitID(ctx, unit.ID)
	ctx = services.WithScanID(ctx, scanID)
	ctx = services.WithScanKind(ctx, string(kind))
	logger := logging.WithContext(ctx, o.logger)

	rep := &reporter{
		progress: Progress{
			ScanID:    scanID,
			UnitID:    unit.ID,
			UnitName:  unit.Name,
			Kind:      kind,
			Status:    StatusRunning,
			StartedAt: o.now().UTC(),
			Step:      Step{Description: StepQueued},
		},
		bus:     o.progress,
		sampler: logging.NewProgressSampler(10),
		logger:  logger,
		publish: o.record,
		now:     o.now,
	}
	rep.emit(rep.snapshot())

	select {
	case o.unitSlots <- struct{}{}:
		defer func() { <-o.unitSlots }()
	case <-ctx.Done():
		rep.fail(services.Wrap(services.ErrScanFailed, "scan", "dispatch", "cancelled before start", ctx.Err()))
		return
	}

	logger.Info("scan started",
		logging.String("unit_name", unit.Name),
		logging.String(logging.FieldEventType, "scan_started"),
	)
	result, err := o.scanUnit(ctx, logger, rep, kind, unit.ID)
	if err != nil {
		wrapped := err
		if !errors.Is(err, services.ErrScanFailed) {
			wrapped = services.Wrap(services.ErrScanFailed, "scan", string(kind), fmt.Sprintf("unit %d", unit.ID), err)
		}
		snap := rep.fail(wrapped)
		logging.ErrorWithContext(logger, "scan failed", "scan_failed",
			logging.Error(wrapped),
			logging.String(logging.FieldErrorHint, services.Hint(wrapped)),
			logging.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
		)
		return
	}
	snap := rep.complete(result)
	logger.Info("scan completed",
		logging.Int("new", result.New),
		logging.Int("removed", result.Removed),
		logging.Int("unmatched", result.Unmatched),
		logging.Int("updated", result.Updated),
		logging.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
		logging.String(logging.FieldEventType, "scan_completed"),
	)
}

// scanUnit runs every step against the committed state of unit id.
func (o *Orchestrator) scanUnit(ctx context.Context, logger *slog.Logger, rep *reporter, kind Kind, unitID int64) (result Result, err error) {
	defer services.Recover(&err, services.ErrScanFailed, "scan", string(kind))

	rep.step(StepDiff, 1)
	unit, err := o.store.LoadUnit(ctx, unitID)
	if err != nil {
		return result, fmt.Errorf("load unit: %w", err)
	}
	entries, err := o.store.ListEntries(ctx, unitID)
	if err != nil {
		return result, fmt.Errorf("list entries: %w", err)
	}
	entryPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		entryPaths = append(entryPaths, entry.Metadata.Path)
	}
	diff, err := o.differ.Diff(ctx, unit, entryPaths)
	if err != nil {
		return result, fmt.Errorf("diff filesystem: %w", err)
	}
	rep.tick()
	logger.Debug("filesystem diff",
		logging.Int("discovered", len(diff.Discovered)),
		logging.Int("new", len(diff.NewPaths)),
		logging.Int("removed_entries", len(diff.RemovedEntryPaths)),
		logging.Int("removed_unmatched", len(diff.RemovedUnmatched)),
		logging.Int("still_unmatched", len(diff.StillUnmatched)),
	)

	var refreshes []*catalog.EntryRefresh
	if kind.refreshes() {
		removed := make(map[string]struct{}, len(diff.RemovedEntryPaths))
		for _, path := range diff.RemovedEntryPaths {
			removed[path] = struct{}{}
		}
		present := slices.DeleteFunc(slices.Clone(entries), func(e *catalog.Entry) bool {
			_, gone := removed[e.Metadata.Path]
			return gone
		})
		refreshes = o.refreshEntries(ctx, logger, rep, unit, present)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	candidates := slices.Clone(diff.NewPaths)
	if o.retryUnmatched {
		candidates = append(candidates, diff.StillUnmatched...)
	}
	matched, failed := o.identifyPaths(ctx, logger, rep, unit, candidates)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	rep.step(StepPersist, 1)
	newlyUnmatched := make([]string, 0, len(failed))
	for _, path := range failed {
		if !unit.IsUnmatched(path) {
			newlyUnmatched = append(newlyUnmatched, path)
		}
	}
	cs := catalog.Changeset{
		UnitID:            unit.ID,
		NewEntries:        matched,
		Refreshes:         refreshes,
		RemovedEntryPaths: diff.RemovedEntryPaths,
		RemovedUnmatched:  diff.RemovedUnmatched,
		NewUnmatched:      newlyUnmatched,
	}
	for _, ig := range diff.RemovedIgnored {
		cs.RemovedIgnored = append(cs.RemovedIgnored, ig.ID)
	}
	if _, err := o.core.Commit(ctx, cs); err != nil {
		return result, fmt.Errorf("commit scan: %w", err)
	}
	rep.tick()

	for _, entry := range matched {
		if entry.ID != 0 {
			result.New++
		}
	}
	result.Removed = len(diff.RemovedEntryPaths)
	result.Unmatched = len(newlyUnmatched)
	for _, refresh := range refreshes {
		if refresh.Updated != nil {
			result.Updated++
		}
	}
	return result, nil
}

// identifyPaths matches each path in isolation. Failed paths are returned for
// the unmatched set; they never cancel sibling tasks.
func (o *Orchestrator) identifyPaths(ctx context.Context, logger *slog.Logger, rep *reporter, unit *catalog.Unit, paths []string) ([]*catalog.Entry, []string) {
	rep.step(StepIdentify, len(paths))
	var (
		mu      sync.Mutex
		matched []*catalog.Entry
		failed  []string
	)
	var g errgroup.Group
	g.SetLimit(o.taskWorkers)
	for _, path := range paths {
		g.Go(func() error {
			defer rep.tick()
			if ctx.Err() != nil {
				return nil
			}
			entry, err := o.identifyPath(ctx, path, unit)
			if err != nil {
				o.pathFailed(logger, path, err)
				mu.Lock()
				failed = append(failed, path)
				mu.Unlock()
				return nil
			}
			entry.Metadata.FileSize = fsdiff.Size(path, logger)
			mu.Lock()
			matched = append(matched, entry)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(matched, func(a, b *catalog.Entry) int { return cmp.Compare(a.Metadata.Path, b.Metadata.Path) })
	slices.Sort(failed)
	return matched, failed
}

// refreshEntries re-fetches every entry by its stored external ids and
// measures its size. Entries that would change against the snapshot loaded at
// scan start yield a refresh; Commit reapplies it to the committed row.
func (o *Orchestrator) refreshEntries(ctx context.Context, logger *slog.Logger, rep *reporter, unit *catalog.Unit, entries []*catalog.Entry) []*catalog.EntryRefresh {
	rep.step(StepRefresh, len(entries))
	var (
		mu        sync.Mutex
		refreshes []*catalog.EntryRefresh
	)
	var g errgroup.Group
	g.SetLimit(o.taskWorkers)
	for _, entry := range entries {
		g.Go(func() error {
			defer rep.tick()
			if ctx.Err() != nil {
				return nil
			}
			refresh := &catalog.EntryRefresh{EntryID: entry.ID}
			if len(entry.Metadata.ExternalIDs) > 0 {
				fresh, err := o.refetchEntry(ctx, entry, unit)
				if err != nil {
					o.pathFailed(logger, entry.Metadata.Path, err)
				} else {
					refresh.Fresh = fresh
				}
			}
			refresh.FileSize = fsdiff.Size(entry.Metadata.Path, logger)
			if !refresh.Apply(entry.Clone()) {
				return nil
			}
			mu.Lock()
			refreshes = append(refreshes, refresh)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(refreshes, func(a, b *catalog.EntryRefresh) int { return cmp.Compare(a.EntryID, b.EntryID) })
	return refreshes
}

func (o *Orchestrator) identifyPath(ctx context.Context, path string, unit *catalog.Unit) (entry *catalog.Entry, err error) {
	defer services.Recover(&err, services.ErrTransient, "scan", "identify")
	return o.matcher.IdentifyFile(ctx, path, unit)
}

func (o *Orchestrator) refetchEntry(ctx context.Context, entry *catalog.Entry, unit *catalog.Unit) (fresh *catalog.Entry, err error) {
	defer services.Recover(&err, services.ErrTransient, "scan", "refresh")
	return o.matcher.IdentifyByExternalIDs(ctx, entry.Metadata.ExternalIDs, entry.Metadata.Path, unit, entry.ID)
}

func (o *Orchestrator) pathFailed(logger *slog.Logger, path string, err error) {
	if services.IsItemFailure(err) {
		logger.Info("path left unmatched",
			logging.String(logging.FieldPath, path),
			logging.String("reason", err.Error()),
			logging.String(logging.FieldEventType, "path_unmatched"),
		)
		return
	}
	logging.WarnWithContext(logger, "path processing failed", "path_failed",
		logging.String(logging.FieldPath, path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
		logging.String(logging.FieldImpact, "path stays unmatched until the next scan"),
	)
}
