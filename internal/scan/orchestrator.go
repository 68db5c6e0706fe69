package scan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
	"gameshelf/internal/events"
	"gameshelf/internal/fsdiff"
	"gameshelf/internal/logging"
	"gameshelf/internal/services"
)

// Matcher identifies game paths. *matching.Engine satisfies it.
type Matcher interface {
	IdentifyFile(ctx context.Context, path string, unit *catalog.Unit) (*catalog.Entry, error)
	IdentifyByExternalIDs(ctx context.Context, ids map[string]string, path string, unit *catalog.Unit, replaceEntryID int64) (*catalog.Entry, error)
}

// Started names a dispatched scan.
type Started struct {
	UnitID int64  `json:"unit_id"`
	ScanID string `json:"scan_id"`
}

// TriggerResult reports which units a trigger dispatched and which were busy.
type TriggerResult struct {
	Started []Started `json:"started"`
	Skipped []int64   `json:"skipped"`
}

// Orchestrator runs scans against catalog units.
type Orchestrator struct {
	core           *catalog.Core
	store          catalog.Store
	matcher        Matcher
	differ         *fsdiff.Differ
	progress       *events.Bus[Progress]
	logger         *slog.Logger
	unitSlots      chan struct{}
	taskWorkers    int
	retryUnmatched bool
	now            func() time.Time

	mu     sync.Mutex
	active map[int64]string
	latest map[int64]Progress

	wg       sync.WaitGroup
	baseCtx  context.Context
	shutdown context.CancelFunc
}

// New constructs an Orchestrator. A nil progress bus gets a private one
// without retention.
func New(cfg *config.Config, core *catalog.Core, matcher Matcher, differ *fsdiff.Differ, progress *events.Bus[Progress], logger *slog.Logger) *Orchestrator {
	if progress == nil {
		progress = events.New[Progress](events.Options{})
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		core:           core,
		store:          core.Store(),
		matcher:        matcher,
		differ:         differ,
		progress:       progress,
		logger:         logging.NewComponentLogger(logger, "scan"),
		unitSlots:      make(chan struct{}, max(cfg.Scan.UnitWorkers, 1)),
		taskWorkers:    max(cfg.Scan.TaskWorkers, 1),
		retryUnmatched: cfg.Scan.RetryUnmatched,
		now:            time.Now,
		active:         make(map[int64]string),
		latest:         make(map[int64]Progress),
		baseCtx:        baseCtx,
		shutdown:       cancel,
	}
}

// Progress exposes the progress bus.
func (o *Orchestrator) Progress() *events.Bus[Progress] { return o.progress }

// TriggerScan dispatches a scan of kind for each unit in unitIDs, or for every
// unit when unitIDs is empty. Units already scanning are skipped. Scans run
// in the background and outlive ctx; Close cancels them.
func (o *Orchestrator) TriggerScan(ctx context.Context, kind Kind, unitIDs []int64) (TriggerResult, error) {
	var result TriggerResult
	if o.baseCtx.Err() != nil {
		return result, services.Wrap(services.ErrScanFailed, "scan", "trigger", "orchestrator is shut down", nil)
	}
	units, err := o.resolveUnits(ctx, unitIDs)
	if err != nil {
		return result, err
	}

	for _, unit := range units {
		scanID, ok := o.claim(unit.ID)
		if !ok {
			o.logger.Info("scan already running; skipping unit",
				logging.Int64(logging.FieldUnitID, unit.ID),
				logging.String(logging.FieldScanKind, string(kind)),
				logging.String(logging.FieldEventType, "scan_skipped_busy"),
			)
			result.Skipped = append(result.Skipped, unit.ID)
			continue
		}
		result.Started = append(result.Started, Started{UnitID: unit.ID, ScanID: scanID})

		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stop := context.AfterFunc(o.baseCtx, cancel)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			defer o.release(unit.ID)
			defer stop()
			defer cancel()
			o.runUnit(runCtx, scanID, kind, unit)
		}()
	}
	return result, nil
}

// IsScanning reports whether unit id has a scan in flight.
func (o *Orchestrator) IsScanning(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}

// Active lists the units with a scan in flight.
func (o *Orchestrator) Active() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]int64, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Latest returns the most recent progress of every unit scanned since start,
// ordered by unit id.
func (o *Orchestrator) Latest() []Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Progress, 0, len(o.latest))
	for _, p := range o.latest {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Progress) int { return cmp.Compare(a.UnitID, b.UnitID) })
	return out
}

// Wait blocks until every dispatched scan has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels running scans and waits for them.
func (o *Orchestrator) Close() {
	o.shutdown()
	o.wg.Wait()
}

func (o *Orchestrator) resolveUnits(ctx context.Context, ids []int64) ([]*catalog.Unit, error) {
	if len(ids) == 0 {
		units, err := o.store.ListUnits(ctx)
		if err != nil {
			return nil, fmt.Errorf("list units: %w", err)
		}
		return units, nil
	}
	units := make([]*catalog.Unit, 0, len(ids))
	for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
		unit, err := o.store.LoadUnit(ctx, id)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load unit %d: %w", id, err)
		}
		units = append(units, unit)
	}
	return units, nil
}

func (o *Orchestrator) claim(id int64) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[id]; busy {
		return "", false
	}
	scanID := uuid.NewString()
	o.active[id] = scanID
	return scanID, true
}

func (o *Orchestrator) release(id int64) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

func (o *Orchestrator) record(p Progress) {
	o.mu.Lock()
	o.latest[p.UnitID] = p
	o.mu.Unlock()
}
