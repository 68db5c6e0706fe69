package scan

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gameshelf/internal/events"
	"gameshelf/internal/logging"
)

// Kind selects how much work a scan does.
type Kind string

const (
	KindQuick     Kind = "quick"
	KindFull      Kind = "full"
	KindScheduled Kind = "scheduled"
)

// ParseKind validates a user-supplied scan kind. Empty means quick.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case "", KindQuick:
		return KindQuick, nil
	case KindFull:
		return KindFull, nil
	case KindScheduled:
		return KindScheduled, nil
	default:
		return "", fmt.Errorf("unknown scan kind %q", value)
	}
}

// refreshes reports whether the scan re-fetches metadata of existing entries.
func (k Kind) refreshes() bool {
	return k == KindFull || k == KindScheduled
}

// Status is the lifecycle state of a scan.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step descriptions reported while a scan runs.
const (
	StepQueued   = "Waiting for a free worker"
	StepDiff     = "Scanning filesystem"
	StepRefresh  = "Updating existing games"
	StepIdentify = "Processing new games"
	StepPersist  = "Finishing up"
	StepDone     = "Finished"
)

// Step is the current unit of work and how far it got.
type Step struct {
	Description string `json:"description"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
}

// Result counts what a finished scan changed.
type Result struct {
	New       int `json:"new"`
	Removed   int `json:"removed"`
	Unmatched int `json:"unmatched"`
	Updated   int `json:"updated"`
}

// Progress is a point-in-time snapshot of one scan.
type Progress struct {
	ScanID     string     `json:"scan_id"`
	UnitID     int64      `json:"unit_id"`
	UnitName   string     `json:"unit_name,omitempty"`
	Kind       Kind       `json:"kind"`
	Step       Step       `json:"step"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Terminal reports whether the scan has finished.
func (p Progress) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// Percent is the completion of the current step, or -1 when unknown.
func (p Progress) Percent() float64 {
	if p.Step.Total <= 0 {
		return -1
	}
	return float64(p.Step.Current) / float64(p.Step.Total) * 100
}

// reporter owns one scan's progress. Task goroutines tick it concurrently.
type reporter struct {
	mu       sync.Mutex
	progress Progress
	bus      *events.Bus[Progress]
	sampler  *logging.ProgressSampler
	logger   *slog.Logger
	publish  func(Progress)
	now      func() time.Time
}

func (r *reporter) snapshot() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *reporter) step(description string, total int) {
	r.mu.Lock()
	r.progress.Step = Step{Description: description, Total: total}
	snap := r.progress
	r.mu.Unlock()
	r.emit(snap)
}

func (r *reporter) tick() {
	r.mu.Lock()
	if r.progress.Step.Current < r.progress.Step.Total {
		r.progress.Step.Current++
	}
	snap := r.progress
	r.mu.Unlock()
	r.emit(snap)
}

func (r *reporter) complete(result Result) Progress {
	r.mu.Lock()
	finished := r.now().UTC()
	r.progress.Status = StatusCompleted
	r.progress.Step = Step{Description: StepDone, Current: 1, Total: 1}
	r.progress.FinishedAt = &finished
	r.progress.Result = &result
	snap := r.progress
	r.mu.Unlock()
	r.emit(snap)
	return snap
}

func (r *reporter) fail(err error) Progress {
	r.mu.Lock()
	finished := r.now().UTC()
	r.progress.Status = StatusFailed
	r.progress.FinishedAt = &finished
	r.progress.Error = err.Error()
	snap := r.progress
	r.mu.Unlock()
	r.emit(snap)
	return snap
}

func (r *reporter) emit(p Progress) {
	if r.publish != nil {
		r.publish(p)
	}
	r.bus.Publish(p)
	if p.Terminal() {
		return
	}
	r.mu.Lock()
	shouldLog := r.sampler.ShouldLog(p.Percent(), p.Step.Description)
	r.mu.Unlock()
	if shouldLog {
		r.logger.Info("scan progress",
			logging.String("step", p.Step.Description),
			logging.Int("current", p.Step.Current),
			logging.Int("total", p.Step.Total),
		)
	}
}
