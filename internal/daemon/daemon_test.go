package daemon_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
	"gameshelf/internal/daemon"
	"gameshelf/internal/logging"
	"gameshelf/internal/matching"
	"gameshelf/internal/scan"
	"gameshelf/internal/services"
	"gameshelf/internal/testsupport"
)

type staticProvider struct {
	games map[string]matching.Metadata
}

func (p staticProvider) ID() string { return "static" }

func (p staticProvider) SearchByTitle(_ context.Context, title string, _ int) ([]matching.Metadata, error) {
	if meta, ok := p.games[title]; ok {
		return []matching.Metadata{meta}, nil
	}
	return nil, nil
}

func (p staticProvider) FetchByID(_ context.Context, id string) (*matching.Metadata, error) {
	for _, meta := range p.games {
		if meta.ExternalID == id {
			return &meta, nil
		}
	}
	return nil, nil
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	provider := staticProvider{games: map[string]matching.Metadata{
		"Portal":   {ExternalID: "400", Title: "Portal"},
		"Portal 2": {ExternalID: "620", Title: "Portal 2"},
	}}
	d, err := daemon.New(cfg, st, []matching.Registered{{Provider: provider, Priority: 1}}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUnit("games", "games"))
	d := newDaemon(t, cfg)
	ctx := context.Background()

	if _, err := d.TriggerScan(ctx, scan.KindQuick, nil); err == nil {
		t.Fatal("scans should be refused before start")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.Stats.Units != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Providers) != 1 || status.Providers[0].ID != "static" {
		t.Fatalf("providers = %+v", status.Providers)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other := newDaemon(t, cfg)
	if err := other.Start(ctx); err == nil {
		t.Fatal("expected lock contention for a second daemon")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonScanMatchAndRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUnit("games", "games"))
	d := newDaemon(t, cfg)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dir := cfg.Units[0].Directories[0].Internal
	testsupport.WriteFile(t, filepath.Join(dir, "Portal.zip"), 4)
	testsupport.WriteFile(t, filepath.Join(dir, "Unknown Thing.zip"), 4)

	res, err := d.TriggerScan(ctx, scan.KindQuick, nil)
	if err != nil || len(res.Started) != 1 {
		t.Fatalf("TriggerScan = %+v, %v", res, err)
	}
	waitForScan(t, d, res.Started[0].ScanID)

	entries, err := d.ListEntries(ctx, 0, "", 0)
	if err != nil || len(entries) != 1 || entries[0].Title != "Portal" {
		t.Fatalf("entries = %+v, %v", entries, err)
	}

	unknown := filepath.Join(dir, "Unknown Thing.zip")
	matched, err := d.Match(ctx, daemon.MatchRequest{UnitID: entries[0].UnitID, Path: unknown, ExternalIDs: map[string]string{"static": "620"}})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if matched.Title != "Portal 2" || !matched.Metadata.MatchConfirmed {
		t.Fatalf("unexpected match %+v", matched)
	}
	units, _ := d.ListUnits(ctx)
	if len(units[0].Unmatched) != 0 || len(units[0].EntryIDs) != 2 {
		t.Fatalf("unit after match: %+v", units[0])
	}

	found, err := d.ListEntries(ctx, 0, "portal 2", 10)
	if err != nil || len(found) != 1 {
		t.Fatalf("search entries = %+v, %v", found, err)
	}

	unit, err := d.RemoveEntry(ctx, matched.ID)
	if err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if len(unit.Unmatched) != 1 || unit.Unmatched[0] != unknown {
		t.Fatalf("removed path should be unmatched again: %v", unit.Unmatched)
	}

	if _, err := d.Match(ctx, daemon.MatchRequest{EntryID: entries[0].ID}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := d.Search(ctx, "  ", 5); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank search, got %v", err)
	}
}

func TestDaemonUnitManagement(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dir := filepath.Join(testsupport.BaseDir(cfg), "more")
	testsupport.MkdirAll(t, dir)

	unit, err := d.CreateUnit(ctx, "more", []catalog.DirectoryMapping{{Internal: dir}})
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	if err := d.DeleteUnit(ctx, unit.ID); err != nil {
		t.Fatalf("DeleteUnit: %v", err)
	}
	if err := d.DeleteUnit(ctx, unit.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := d.SetWatcherEnabled(ctx, true); err != nil {
		t.Fatalf("SetWatcherEnabled: %v", err)
	}
	if !d.Status(ctx).WatcherEnabled {
		t.Fatal("watcher should report enabled")
	}
}

func waitForScan(t *testing.T, d *daemon.Daemon, scanID string) scan.Progress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range d.ScanProgress() {
			if p.ScanID == scanID && p.Terminal() {
				if p.Status != scan.StatusCompleted {
					t.Fatalf("scan failed: %s", p.Error)
				}
				return p
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scan %s did not finish", scanID)
	return scan.Progress{}
}
