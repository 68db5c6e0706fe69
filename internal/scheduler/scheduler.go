package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gameshelf/internal/config"
	"gameshelf/internal/logging"
	"gameshelf/internal/scan"
	"gameshelf/internal/services"
)

// Scanner dispatches scans. *scan.Orchestrator satisfies it.
type Scanner interface {
	TriggerScan(ctx context.Context, kind scan.Kind, unitIDs []int64) (scan.TriggerResult, error)
}

// Scheduler fires a scheduled scan of all units every interval. Units that
// are already scanning are skipped by the orchestrator.
type Scheduler struct {
	scanner     Scanner
	interval    time.Duration
	enabled     bool
	scanOnStart bool
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun time.Time
}

// New constructs a Scheduler from the schedule section of cfg.
func New(cfg *config.Config, scanner Scanner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scanner:     scanner,
		interval:    cfg.ScheduleInterval(),
		enabled:     cfg.Schedule.Enabled,
		scanOnStart: cfg.Schedule.ScanOnStart,
		logger:      logging.NewComponentLogger(logger, "scheduler"),
	}
}

// Start runs the startup scan when configured and begins the periodic loop
// when scheduling is enabled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	if s.scanOnStart {
		s.trigger(ctx, scan.KindQuick)
	}
	if !s.enabled {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.loop(runCtx)
	s.logger.Info("scan schedule active",
		logging.Duration("interval", s.interval),
		logging.String(logging.FieldEventType, "schedule_started"),
	)
	return nil
}

// Stop ends the periodic loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// NextRun reports when the next scheduled scan fires, or the zero time when
// scheduling is off.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.lastRun.IsZero() {
		return time.Time{}
	}
	return s.lastRun.Add(s.interval)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			s.lastRun = now
			s.mu.Unlock()
			s.trigger(ctx, scan.KindScheduled)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, kind scan.Kind) {
	result, err := s.scanner.TriggerScan(ctx, kind, nil)
	if err != nil {
		logging.WarnWithContext(s.logger, "scheduled scan trigger failed", "schedule_trigger_failed",
			logging.String(logging.FieldScanKind, string(kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "catalog stays stale until the next run"),
		)
		return
	}
	s.logger.Info("scan triggered",
		logging.String(logging.FieldScanKind, string(kind)),
		logging.Int("started", len(result.Started)),
		logging.Int("skipped", len(result.Skipped)),
		logging.String(logging.FieldEventType, "schedule_triggered"),
	)
}
