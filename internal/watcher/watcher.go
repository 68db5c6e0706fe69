package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
	"gameshelf/internal/events"
	"gameshelf/internal/fsdiff"
	"gameshelf/internal/logging"
	"gameshelf/internal/scan"
	"gameshelf/internal/services"
)

// Scanner dispatches scans. *scan.Orchestrator satisfies it.
type Scanner interface {
	TriggerScan(ctx context.Context, kind scan.Kind, unitIDs []int64) (scan.TriggerResult, error)
	IsScanning(unitID int64) bool
}

type unitWatch struct {
	dirs  []string
	paths []string
}

// session is the state of one running watch loop. Only the loop goroutine
// touches it after start returns.
type session struct {
	w       *Watcher
	fsw     *fsnotify.Watcher
	watched map[int64]*unitWatch
}

// Watcher reacts to filesystem changes under every catalog unit.
type Watcher struct {
	core         *catalog.Core
	store        catalog.Store
	scanner      Scanner
	catalogBus   *events.Bus[catalog.Event]
	logger       *slog.Logger
	pollInterval time.Duration
	stopTimeout  time.Duration
	configured   bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	fsw     *fsnotify.Watcher
}

// New constructs a Watcher. Catalog events on catalogBus keep the watch list
// in sync with unit changes.
func New(cfg *config.Config, core *catalog.Core, scanner Scanner, catalogBus *events.Bus[catalog.Event], logger *slog.Logger) *Watcher {
	return &Watcher{
		core:         core,
		store:        core.Store(),
		scanner:      scanner,
		catalogBus:   catalogBus,
		logger:       logging.NewComponentLogger(logger, "watcher"),
		pollInterval: cfg.WatcherPollInterval(),
		stopTimeout:  cfg.WatcherStopTimeout(),
		configured:   cfg.Watcher.Enabled,
	}
}

// Start begins watching when the watcher is enabled in configuration.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.configured {
		w.logger.Info("filesystem watcher disabled",
			logging.String(logging.FieldEventType, "watcher_disabled"),
		)
		return nil
	}
	return w.start(ctx)
}

// Enabled reports whether the watch loop is running.
func (w *Watcher) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// SetEnabled starts or stops the watcher at runtime.
func (w *Watcher) SetEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		return w.start(ctx)
	}
	w.Stop()
	return nil
}

func (w *Watcher) start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "watcher", "start", "create fsnotify watcher", err)
	}
	units, err := w.store.ListUnits(ctx)
	if err != nil {
		fsw.Close()
		return fmt.Errorf("list units: %w", err)
	}

	w.fsw = fsw
	sess := &session{w: w, fsw: fsw, watched: make(map[int64]*unitWatch, len(units))}
	for _, unit := range units {
		sess.watchUnit(unit.ID, unit.DirectoryPaths())
	}

	var sub *events.Subscription[catalog.Event]
	if w.catalogBus != nil {
		sub = w.catalogBus.Subscribe(false)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go sess.loop(runCtx, sub, w.done)

	w.logger.Info("filesystem watcher started",
		logging.Int("units", len(units)),
		logging.Duration("poll_interval", w.pollInterval),
		logging.String(logging.FieldEventType, "watcher_started"),
	)
	return nil
}

// Stop cancels the loop, closes the notifier, and waits up to the configured
// stop timeout for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done, fsw := w.cancel, w.done, w.fsw
	w.running = false
	w.cancel = nil
	w.fsw = nil
	w.mu.Unlock()

	cancel()
	if err := fsw.Close(); err != nil {
		w.logger.Debug("closing fsnotify watcher", logging.Error(err))
	}
	select {
	case <-done:
		w.logger.Info("filesystem watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
	case <-time.After(w.stopTimeout):
		logging.WarnWithContext(w.logger, "filesystem watcher did not stop in time", "watcher_stop_timeout",
			logging.Duration("timeout", w.stopTimeout),
			logging.String(logging.FieldImpact, "a final batch of changes may still be processed"),
		)
	}
}

func (s *session) loop(ctx context.Context, sub *events.Subscription[catalog.Event], done chan struct{}) {
	defer close(done)
	w, fsw := s.w, s.fsw
	var catalogEvents <-chan []catalog.Event
	if sub != nil {
		defer sub.Cancel()
		catalogEvents = sub.C()
	}

	interval := w.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pending := make(map[string]fsnotify.Op)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			pending[event.Name] |= event.Op
			if event.Has(fsnotify.Create) {
				s.watchNewDirectory(event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "filesystem watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches if directories are large"),
			)
		case batch, ok := <-catalogEvents:
			if !ok {
				catalogEvents = nil
				continue
			}
			s.applyCatalogEvents(batch)
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			s.flush(ctx, pending)
			pending = make(map[string]fsnotify.Op)
		}
	}
}

func (s *session) applyCatalogEvents(batch []catalog.Event) {
	for _, evt := range batch {
		switch evt.Type {
		case catalog.UnitCreated:
			s.watchUnit(evt.UnitID, directoryPaths(evt.Directories))
		case catalog.UnitUpdated:
			dirs := directoryPaths(evt.Directories)
			if current, ok := s.watched[evt.UnitID]; ok && slices.Equal(current.dirs, dirs) {
				continue
			}
			s.unwatchUnit(evt.UnitID)
			s.watchUnit(evt.UnitID, dirs)
		case catalog.UnitDeleted:
			s.unwatchUnit(evt.UnitID)
		}
	}
}

// flush classifies one batch of notifications per unit.
func (s *session) flush(ctx context.Context, pending map[string]fsnotify.Op) {
	w := s.w
	rescan := make(map[int64]struct{})
	resize := make(map[int64]map[string]struct{})
	for path, op := range pending {
		unitID, dir, ok := s.ownerOf(path)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			continue
		}
		top := filepath.Join(dir, strings.SplitN(rel, string(filepath.Separator), 2)[0])
		structural := op.Has(fsnotify.Create) || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)
		if structural && top == path {
			rescan[unitID] = struct{}{}
			continue
		}
		if resize[unitID] == nil {
			resize[unitID] = make(map[string]struct{})
		}
		resize[unitID][top] = struct{}{}
	}

	// A scan in flight or about to start measures sizes itself.
	for unitID, paths := range resize {
		if _, queued := rescan[unitID]; queued || w.scanner.IsScanning(unitID) {
			continue
		}
		for path := range paths {
			w.updateSize(ctx, unitID, path)
		}
	}
	if len(rescan) == 0 {
		return
	}
	ids := make([]int64, 0, len(rescan))
	for id := range rescan {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	result, err := w.scanner.TriggerScan(ctx, scan.KindQuick, ids)
	if err != nil {
		logging.WarnWithContext(w.logger, "watcher scan trigger failed", "watcher_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		return
	}
	w.logger.Info("filesystem change triggered scan",
		logging.Int("started", len(result.Started)),
		logging.Int("skipped", len(result.Skipped)),
		logging.String(logging.FieldEventType, "watcher_scan_triggered"),
	)
}

func (w *Watcher) updateSize(ctx context.Context, unitID int64, path string) {
	entry, err := w.store.FindEntryByPath(ctx, unitID, path)
	if errors.Is(err, services.ErrNotFound) {
		return
	}
	if err != nil {
		w.logger.Warn("entry lookup failed", logging.String(logging.FieldPath, path), logging.Error(err))
		return
	}
	changed, err := w.core.UpdateFileSize(ctx, entry, fsdiff.Size(path, w.logger))
	if err != nil {
		w.logger.Warn("entry size update failed", logging.String(logging.FieldPath, path), logging.Error(err))
		return
	}
	if changed {
		w.logger.Debug("entry size updated",
			logging.Int64(logging.FieldEntryID, entry.ID),
			logging.Int64("size_bytes", entry.Metadata.FileSize),
		)
	}
}

func (s *session) ownerOf(path string) (int64, string, bool) {
	for id, uw := range s.watched {
		for _, dir := range uw.dirs {
			if catalog.IsWithin(dir, path) {
				return id, dir, true
			}
		}
	}
	return 0, "", false
}

func (s *session) watchUnit(id int64, dirs []string) {
	uw := &unitWatch{dirs: dirs}
	s.watched[id] = uw
	for _, dir := range dirs {
		uw.paths = append(uw.paths, s.addRecursive(dir)...)
	}
	s.w.logger.Debug("watching unit",
		logging.Int64(logging.FieldUnitID, id),
		logging.Int("watches", len(uw.paths)),
	)
}

func (s *session) unwatchUnit(id int64) {
	uw, ok := s.watched[id]
	if !ok {
		return
	}
	delete(s.watched, id)
	for _, path := range uw.paths {
		_ = s.fsw.Remove(path)
	}
}

func (s *session) watchNewDirectory(path string) {
	id, _, ok := s.ownerOf(path)
	if !ok {
		return
	}
	added := s.addRecursive(path)
	s.watched[id].paths = append(s.watched[id].paths, added...)
}

func (s *session) addRecursive(root string) []string {
	var added []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := s.fsw.Add(path); err != nil {
			logging.WarnWithContext(s.w.logger, "cannot watch directory", "watcher_add_failed",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes beneath this directory need a manual scan"),
			)
			return nil
		}
		added = append(added, path)
		return nil
	})
	return added
}

func directoryPaths(dirs []catalog.DirectoryMapping) []string {
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		out = append(out, dir.Internal)
	}
	return out
}
