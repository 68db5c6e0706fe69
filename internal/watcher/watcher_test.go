package watcher_test

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"gameshelf/internal/catalog"
	"gameshelf/internal/events"
	"gameshelf/internal/logging"
	"gameshelf/internal/scan"
	"gameshelf/internal/testsupport"
	"gameshelf/internal/watcher"
)

type fakeScanner struct {
	triggers chan []int64
	busy     atomic.Bool
}

func (s *fakeScanner) IsScanning(int64) bool { return s.busy.Load() }

func (s *fakeScanner) TriggerScan(_ context.Context, _ scan.Kind, ids []int64) (scan.TriggerResult, error) {
	select {
	case s.triggers <- slices.Clone(ids):
	default:
	}
	var res scan.TriggerResult
	for _, id := range ids {
		res.Started = append(res.Started, scan.Started{UnitID: id})
	}
	return res, nil
}

func waitForTrigger(t *testing.T, triggers <-chan []int64, unitID int64, poke func(int)) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case ids := <-triggers:
			if slices.Contains(ids, unitID) {
				return
			}
		case <-tick.C:
			if poke != nil {
				poke(i)
			}
		case <-deadline:
			t.Fatalf("no scan triggered for unit %d", unitID)
		}
	}
}

func TestWatcherTriggersScansAndUpdatesSizes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWatcher())
	base := testsupport.BaseDir(cfg)
	dir := filepath.Join(base, "games")
	gameDir := filepath.Join(dir, "Some Game")
	testsupport.MkdirAll(t, gameDir)

	st := testsupport.MustOpenStore(t, cfg)
	bus := events.New[catalog.Event](events.Options{})
	core := catalog.NewCore(st, bus, logging.NewNop())
	ctx := context.Background()
	unit, err := core.CreateUnit(ctx, "games", []catalog.DirectoryMapping{{Internal: dir}})
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	entry := testsupport.NewEntry(t, st, unit, "Some Game", gameDir)

	scanner := &fakeScanner{triggers: make(chan []int64, 16)}
	w := watcher.New(cfg, core, scanner, bus, logging.NewNop())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	if !w.Enabled() {
		t.Fatal("watcher should be running")
	}

	testsupport.WriteFile(t, filepath.Join(dir, "new.zip"), 10)
	waitForTrigger(t, scanner.triggers, unit.ID, nil)

	testsupport.WriteFile(t, filepath.Join(gameDir, "data.bin"), 64)
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := st.LoadEntry(ctx, entry.ID)
		if err != nil {
			t.Fatalf("LoadEntry: %v", err)
		}
		if got.Metadata.FileSize == 64 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry size not updated, got %d", got.Metadata.FileSize)
		}
		time.Sleep(20 * time.Millisecond)
	}

	otherDir := filepath.Join(base, "more")
	testsupport.MkdirAll(t, otherDir)
	other, err := core.CreateUnit(ctx, "more", []catalog.DirectoryMapping{{Internal: otherDir}})
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	waitForTrigger(t, scanner.triggers, other.ID, func(i int) {
		testsupport.WriteFile(t, filepath.Join(otherDir, fmt.Sprintf("game-%d.zip", i)), 1)
	})

	if err := w.SetEnabled(ctx, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if w.Enabled() {
		t.Fatal("watcher should be stopped")
	}
}

func TestWatcherSkipsResizeWhileUnitScans(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWatcher())
	dir := filepath.Join(testsupport.BaseDir(cfg), "games")
	gameDir := filepath.Join(dir, "Some Game")
	testsupport.MkdirAll(t, gameDir)

	st := testsupport.MustOpenStore(t, cfg)
	core := catalog.NewCore(st, nil, logging.NewNop())
	ctx := context.Background()
	unit, err := core.CreateUnit(ctx, "games", []catalog.DirectoryMapping{{Internal: dir}})
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	entry := testsupport.NewEntry(t, st, unit, "Some Game", gameDir)

	scanner := &fakeScanner{triggers: make(chan []int64, 16)}
	scanner.busy.Store(true)
	w := watcher.New(cfg, core, scanner, nil, logging.NewNop())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	testsupport.WriteFile(t, filepath.Join(gameDir, "data.bin"), 64)
	time.Sleep(300 * time.Millisecond)
	got, err := st.LoadEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}
	if got.Metadata.FileSize != entry.Metadata.FileSize {
		t.Fatalf("size updated during scan: got %d, want %d", got.Metadata.FileSize, entry.Metadata.FileSize)
	}

	scanner.busy.Store(false)
	testsupport.WriteFile(t, filepath.Join(gameDir, "more.bin"), 16)
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := st.LoadEntry(ctx, entry.ID)
		if err != nil {
			t.Fatalf("LoadEntry: %v", err)
		}
		if got.Metadata.FileSize == 80 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry size not updated after scan, got %d", got.Metadata.FileSize)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatcherDisabledByConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	core := catalog.NewCore(st, nil, logging.NewNop())
	w := watcher.New(cfg, core, &fakeScanner{triggers: make(chan []int64, 1)}, nil, logging.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.Enabled() {
		t.Fatal("watcher should stay disabled")
	}
	if err := w.SetEnabled(context.Background(), true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if !w.Enabled() {
		t.Fatal("SetEnabled(true) should start the watcher")
	}
	w.Stop()
}
