package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
	"gameshelf/internal/events"
	"gameshelf/internal/fsdiff"
	"gameshelf/internal/logging"
	"gameshelf/internal/matching"
	"gameshelf/internal/preflight"
	"gameshelf/internal/scan"
	"gameshelf/internal/scheduler"
	"gameshelf/internal/store"
	"gameshelf/internal/watcher"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store

	catalogBus  *events.Bus[catalog.Event]
	progressBus *events.Bus[scan.Progress]
	core        *catalog.Core
	engine      *matching.Engine
	orch        *scan.Orchestrator
	watcher     *watcher.Watcher
	scheduler   *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	stopped   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc

	checksMu sync.Mutex
	checks   []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool                    `json:"running"`
	PID            int                     `json:"pid"`
	StartedAt      time.Time               `json:"started_at"`
	DatabasePath   string                  `json:"database_path"`
	LockPath       string                  `json:"lock_path"`
	Stats          store.Stats             `json:"stats"`
	ActiveScans    []int64                 `json:"active_scans"`
	WatcherEnabled bool                    `json:"watcher_enabled"`
	NextScheduled  time.Time               `json:"next_scheduled"`
	Providers      []matching.ProviderInfo `json:"providers"`
	Checks         []preflight.Result      `json:"checks"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, providers []matching.Registered, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	titleRegex, err := cfg.TitleRegex()
	if err != nil {
		logging.WarnWithContext(logger, "title extraction regex ignored", "title_regex_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "whole file names are used as search terms"),
			logging.String(logging.FieldErrorHint, "fix scan.title_extraction_regex"),
		)
		titleRegex = nil
	}

	catalogBus := events.New[catalog.Event](events.Options{
		Window:   time.Duration(cfg.Events.CatalogBatchWindow) * time.Millisecond,
		Capacity: cfg.Events.BufferSize,
	})
	progressBus := events.New[scan.Progress](events.Options{
		Window:    time.Duration(cfg.Events.ProgressBatchWindow) * time.Millisecond,
		Capacity:  cfg.Events.BufferSize,
		Retention: cfg.ProgressRetention(),
	})
	core := catalog.NewCore(st, catalogBus, logger)
	engine := matching.NewEngine(providers, st, matching.Options{
		MinRatio:    cfg.Scan.TitleMatchMinRatio,
		SearchLimit: cfg.Scan.SearchResultLimit,
		TitleRegex:  titleRegex,
	}, logger)
	orch := scan.New(cfg, core, engine, fsdiff.New(cfg, logger), progressBus, logger)

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		store:       st,
		catalogBus:  catalogBus,
		progressBus: progressBus,
		core:        core,
		engine:      engine,
		orch:        orch,
		watcher:     watcher.New(cfg, core, orch, catalogBus, logger),
		scheduler:   scheduler.New(cfg, orch, logger),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, syncs declared units, and launches the
// watcher and scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.stopped.Load() {
		return errors.New("daemon was stopped; create a new instance")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gameshelf daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.syncDeclaredUnits(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("sync units: %w", err)
	}
	d.runPreflight(runCtx)

	if err := d.watcher.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := d.scheduler.Start(runCtx); err != nil {
		d.watcher.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("gameshelf daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("providers", len(d.engine.Providers())),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop halts the scheduler and watcher, cancels running scans, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.scheduler.Stop()
	d.watcher.Stop()
	d.orch.Close()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.stopped.Store(true)
	d.logger.Info("gameshelf daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.orch.Close()
	d.catalogBus.Close()
	d.progressBus.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("catalog stats unavailable", logging.Error(err))
	}
	d.checksMu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.checksMu.Unlock()
	return Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		StartedAt:      d.startedAt,
		DatabasePath:   d.store.Path(),
		LockPath:       d.lockPath,
		Stats:          stats,
		ActiveScans:    d.orch.Active(),
		WatcherEnabled: d.watcher.Enabled(),
		NextScheduled:  d.scheduler.NextRun(),
		Providers:      d.engine.Providers(),
		Checks:         checks,
	}
}

func (d *Daemon) syncDeclaredUnits(ctx context.Context) error {
	for _, declared := range d.cfg.Units {
		dirs := make([]catalog.DirectoryMapping, 0, len(declared.Directories))
		for _, dir := range declared.Directories {
			dirs = append(dirs, catalog.DirectoryMapping{Internal: dir.Internal, External: dir.External})
		}
		unit, created, err := d.core.EnsureUnit(ctx, declared.Name, dirs)
		if err != nil {
			return fmt.Errorf("unit %q: %w", declared.Name, err)
		}
		if created {
			d.logger.Info("declared unit created",
				logging.Int64(logging.FieldUnitID, unit.ID),
				logging.String("name", unit.Name),
			)
		}
	}
	return nil
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg)
	if units, err := d.store.ListUnits(ctx); err == nil {
		results = append(results, preflight.CheckUnits(units)...)
	}
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "scans touching this resource may fail or find nothing"),
			logging.String(logging.FieldErrorHint, "fix the path or provider settings and restart the daemon"),
		)
	}
	d.checksMu.Lock()
	d.checks = results
	d.checksMu.Unlock()
}
