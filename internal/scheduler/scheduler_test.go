package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gameshelf/internal/logging"
	"gameshelf/internal/scan"
	"gameshelf/internal/scheduler"
	"gameshelf/internal/testsupport"
)

type recordingScanner struct {
	mu    sync.Mutex
	kinds []scan.Kind
	err   error
}

func (r *recordingScanner) TriggerScan(_ context.Context, kind scan.Kind, _ []int64) (scan.TriggerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return scan.TriggerResult{}, r.err
}

func (r *recordingScanner) snapshot() []scan.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scan.Kind(nil), r.kinds...)
}

func TestSchedulerTriggersScheduledScans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Schedule.Enabled = true
	cfg.Schedule.Interval = "20ms"
	rec := &recordingScanner{}
	s := scheduler.New(cfg, rec, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated scheduled scans, got %v", rec.snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, kind := range rec.snapshot() {
		if kind != scan.KindScheduled {
			t.Fatalf("unexpected kind %q", kind)
		}
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestSchedulerScanOnStartOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Schedule.ScanOnStart = true
	rec := &recordingScanner{err: errors.New("boom")}
	s := scheduler.New(cfg, rec, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	got := rec.snapshot()
	if len(got) != 1 || got[0] != scan.KindQuick {
		t.Fatalf("expected a single quick scan, got %v", got)
	}
	if !s.NextRun().IsZero() {
		t.Fatal("disabled schedule should report no next run")
	}
}
