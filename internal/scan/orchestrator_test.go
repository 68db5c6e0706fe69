package scan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"gameshelf/internal/catalog"
	"gameshelf/internal/events"
	"gameshelf/internal/fsdiff"
	"gameshelf/internal/logging"
	"gameshelf/internal/scan"
	"gameshelf/internal/services"
	"gameshelf/internal/store"
	"gameshelf/internal/testsupport"
)

type fakeMatcher struct {
	mu        sync.Mutex
	titles    map[string]string
	refreshed map[string]string
	gate      chan struct{}
	panics    string

	// refreshGate holds IdentifyByExternalIDs; refreshing is signalled first.
	refreshGate chan struct{}
	refreshing  chan struct{}
}

func (m *fakeMatcher) IdentifyFile(ctx context.Context, path string, unit *catalog.Unit) (*catalog.Entry, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	name := filepath.Base(path)
	if name == m.panics {
		panic("identify " + name)
	}
	m.mu.Lock()
	title, ok := m.titles[name]
	m.mu.Unlock()
	if !ok {
		return nil, services.Wrap(services.ErrNoMatchFound, "test", "identify", name, nil)
	}
	return &catalog.Entry{
		UnitID: unit.ID,
		Title:  title,
		Metadata: catalog.Metadata{
			Path:        path,
			ExternalIDs: map[string]string{"fake": name},
		},
	}, nil
}

func (m *fakeMatcher) IdentifyByExternalIDs(ctx context.Context, ids map[string]string, path string, unit *catalog.Unit, replaceEntryID int64) (*catalog.Entry, error) {
	if m.refreshGate != nil {
		select {
		case m.refreshing <- struct{}{}:
		default:
		}
		select {
		case <-m.refreshGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	title, ok := m.refreshed[ids["fake"]]
	if !ok {
		title, ok = m.titles[ids["fake"]]
	}
	m.mu.Unlock()
	if !ok {
		return nil, services.Wrap(services.ErrNoValidResults, "test", "identify by id", ids["fake"], nil)
	}
	return &catalog.Entry{
		ID:     replaceEntryID,
		UnitID: unit.ID,
		Title:  title,
		Metadata: catalog.Metadata{
			Path:           path,
			MatchConfirmed: true,
			ExternalIDs:    map[string]string{"fake": ids["fake"]},
		},
	}, nil
}

func (m *fakeMatcher) set(field map[string]string, name, title string) {
	m.mu.Lock()
	field[name] = title
	m.mu.Unlock()
}

type harness struct {
	orch *scan.Orchestrator
	st   *store.Store
	core *catalog.Core
	unit *catalog.Unit
	dir  string
}

func newHarness(t *testing.T, matcher scan.Matcher) *harness {
	return newHarnessWithStore(t, matcher, nil)
}

// newHarnessWithStore lets wrap decorate the store the orchestrator commits to.
func newHarnessWithStore(t *testing.T, matcher scan.Matcher, wrap func(*store.Store) catalog.Store) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(testsupport.BaseDir(cfg), "games")
	testsupport.MkdirAll(t, dir)
	st := testsupport.MustOpenStore(t, cfg)
	var backing catalog.Store = st
	if wrap != nil {
		backing = wrap(st)
	}
	core := catalog.NewCore(backing, nil, logging.NewNop())
	unit := testsupport.NewUnit(t, st, "games", dir)
	bus := events.New[scan.Progress](events.Options{Retention: time.Hour})
	orch := scan.New(cfg, core, matcher, fsdiff.New(cfg, logging.NewNop()), bus, logging.NewNop())
	t.Cleanup(orch.Close)
	return &harness{orch: orch, st: st, core: core, unit: unit, dir: dir}
}

func (h *harness) scan(t *testing.T, kind scan.Kind) scan.Progress {
	t.Helper()
	res, err := h.orch.TriggerScan(context.Background(), kind, []int64{h.unit.ID})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if len(res.Started) != 1 {
		t.Fatalf("expected one started scan, got %+v", res)
	}
	h.orch.Wait()
	for _, p := range h.orch.Latest() {
		if p.ScanID == res.Started[0].ScanID {
			return p
		}
	}
	t.Fatalf("no progress for scan %s", res.Started[0].ScanID)
	return scan.Progress{}
}

func (h *harness) assertPartition(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	unit, err := h.st.LoadUnit(ctx, h.unit.ID)
	if err != nil {
		t.Fatalf("LoadUnit: %v", err)
	}
	entries, err := h.st.ListEntries(ctx, unit.ID)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	seen := map[string]string{}
	claim := func(path, set string) {
		if prev, ok := seen[path]; ok {
			t.Fatalf("path %s in both %s and %s", path, prev, set)
		}
		seen[path] = set
	}
	for _, entry := range entries {
		claim(entry.Metadata.Path, "entries")
	}
	for _, path := range unit.Unmatched {
		claim(path, "unmatched")
	}
	for _, ig := range unit.Ignored {
		claim(ig.Path, "ignored")
	}
	dirEntries, err := os.ReadDir(h.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(dirEntries) != len(seen) {
		t.Fatalf("partition covers %d paths, disk has %d", len(seen), len(dirEntries))
	}
	for _, de := range dirEntries {
		if _, ok := seen[filepath.Join(h.dir, de.Name())]; !ok {
			t.Fatalf("discovered path %s not classified", de.Name())
		}
	}
}

func TestQuickScanClassifiesNewPaths(t *testing.T) {
	matcher := &fakeMatcher{titles: map[string]string{"a.zip": "Alpha", "b.zip": "Beta"}, refreshed: map[string]string{}}
	h := newHarness(t, matcher)
	for _, name := range []string{"a.zip", "b.zip", "c.zip"} {
		testsupport.WriteFile(t, filepath.Join(h.dir, name), 128)
	}

	progress := h.scan(t, scan.KindQuick)
	if progress.Status != scan.StatusCompleted || progress.FinishedAt == nil {
		t.Fatalf("unexpected progress %+v", progress)
	}
	want := scan.Result{New: 2, Removed: 0, Unmatched: 1}
	if *progress.Result != want {
		t.Fatalf("result = %+v, want %+v", *progress.Result, want)
	}

	unit, err := h.st.LoadUnit(context.Background(), h.unit.ID)
	if err != nil {
		t.Fatalf("LoadUnit: %v", err)
	}
	if len(unit.EntryIDs) != 2 || !slices.Equal(unit.Unmatched, []string{filepath.Join(h.dir, "c.zip")}) {
		t.Fatalf("unit state: entries=%v unmatched=%v", unit.EntryIDs, unit.Unmatched)
	}
	entries, _ := h.st.ListEntries(context.Background(), unit.ID)
	for _, entry := range entries {
		if entry.Metadata.FileSize != 128 {
			t.Fatalf("entry %s size = %d", entry.Title, entry.Metadata.FileSize)
		}
	}
	h.assertPartition(t)

	history := h.orch.Progress().Snapshot()
	if len(history) == 0 || !history[len(history)-1].Terminal() {
		t.Fatalf("expected retained terminal snapshot, got %+v", history)
	}
	for _, p := range history[:len(history)-1] {
		if p.FinishedAt != nil {
			t.Fatalf("running snapshot carries finished time: %+v", p)
		}
	}
}

func TestTriggerScanSkipsBusyUnit(t *testing.T) {
	matcher := &fakeMatcher{titles: map[string]string{"a.zip": "Alpha"}, refreshed: map[string]string{}, gate: make(chan struct{})}
	h := newHarness(t, matcher)
	testsupport.WriteFile(t, filepath.Join(h.dir, "a.zip"), 1)
	ctx := context.Background()

	first, err := h.orch.TriggerScan(ctx, scan.KindQuick, nil)
	if err != nil || len(first.Started) != 1 {
		t.Fatalf("first trigger = %+v, %v", first, err)
	}
	if !h.orch.IsScanning(h.unit.ID) {
		t.Fatal("unit should be marked as scanning")
	}
	second, err := h.orch.TriggerScan(ctx, scan.KindFull, []int64{h.unit.ID})
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if len(second.Started) != 0 || !slices.Equal(second.Skipped, []int64{h.unit.ID}) {
		t.Fatalf("second trigger should be skipped, got %+v", second)
	}

	close(matcher.gate)
	h.orch.Wait()
	if h.orch.IsScanning(h.unit.ID) {
		t.Fatal("marker not cleared after scan")
	}
	third, err := h.orch.TriggerScan(ctx, scan.KindQuick, []int64{h.unit.ID})
	if err != nil || len(third.Started) != 1 {
		t.Fatalf("third trigger = %+v, %v", third, err)
	}
	h.orch.Wait()
}

func TestRescanRemovesMissingAndRetriesUnmatched(t *testing.T) {
	matcher := &fakeMatcher{titles: map[string]string{"a.zip": "Alpha", "b.zip": "Beta"}, refreshed: map[string]string{}}
	h := newHarness(t, matcher)
	for _, name := range []string{"a.zip", "b.zip", "c.zip"} {
		testsupport.WriteFile(t, filepath.Join(h.dir, name), 1)
	}
	h.scan(t, scan.KindQuick)

	if err := os.Remove(filepath.Join(h.dir, "a.zip")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	matcher.set(matcher.titles, "c.zip", "Gamma")

	progress := h.scan(t, scan.KindQuick)
	want := scan.Result{New: 1, Removed: 1, Unmatched: 0}
	if progress.Result == nil || *progress.Result != want {
		t.Fatalf("result = %+v, want %+v", progress.Result, want)
	}
	unit, _ := h.st.LoadUnit(context.Background(), h.unit.ID)
	if len(unit.Unmatched) != 0 || len(unit.EntryIDs) != 2 {
		t.Fatalf("unit state: entries=%v unmatched=%v", unit.EntryIDs, unit.Unmatched)
	}
	h.assertPartition(t)
}

func TestFullScanRefreshesProviderFields(t *testing.T) {
	matcher := &fakeMatcher{titles: map[string]string{"a.zip": "Alpha", "b.zip": "Beta"}, refreshed: map[string]string{}}
	h := newHarness(t, matcher)
	for _, name := range []string{"a.zip", "b.zip"} {
		testsupport.WriteFile(t, filepath.Join(h.dir, name), 1)
	}
	h.scan(t, scan.KindQuick)

	ctx := context.Background()
	beta, err := h.st.FindEntryByPath(ctx, h.unit.ID, filepath.Join(h.dir, "b.zip"))
	if err != nil {
		t.Fatalf("FindEntryByPath: %v", err)
	}
	mine := "My Beta"
	if _, err := h.core.EditEntry(ctx, beta.ID, catalog.EntryEdit{Title: &mine}, "tester"); err != nil {
		t.Fatalf("EditEntry: %v", err)
	}
	matcher.set(matcher.refreshed, "a.zip", "Alpha Remastered")
	matcher.set(matcher.refreshed, "b.zip", "Beta Remastered")

	progress := h.scan(t, scan.KindFull)
	if progress.Result == nil || progress.Result.Updated != 1 || progress.Result.New != 0 {
		t.Fatalf("result = %+v", progress.Result)
	}
	alpha, _ := h.st.FindEntryByPath(ctx, h.unit.ID, filepath.Join(h.dir, "a.zip"))
	if alpha.Title != "Alpha Remastered" {
		t.Fatalf("alpha title = %q", alpha.Title)
	}
	beta, _ = h.st.FindEntryByPath(ctx, h.unit.ID, filepath.Join(h.dir, "b.zip"))
	if beta.Title != mine {
		t.Fatalf("user edit overwritten: %q", beta.Title)
	}
}

func TestFullScanKeepsConcurrentEdits(t *testing.T) {
	matcher := &fakeMatcher{titles: map[string]string{"a.zip": "Alpha"}, refreshed: map[string]string{}}
	h := newHarness(t, matcher)
	path := filepath.Join(h.dir, "a.zip")
	testsupport.WriteFile(t, path, 1)
	h.scan(t, scan.KindQuick)

	ctx := context.Background()
	alpha, err := h.st.FindEntryByPath(ctx, h.unit.ID, path)
	if err != nil {
		t.Fatalf("FindEntryByPath: %v", err)
	}
	matcher.set(matcher.refreshed, "a.zip", "Alpha Remastered")
	matcher.refreshGate = make(chan struct{})
	matcher.refreshing = make(chan struct{}, 1)

	res, err := h.orch.TriggerScan(ctx, scan.KindFull, []int64{h.unit.ID})
	if err != nil || len(res.Started) != 1 {
		t.Fatalf("TriggerScan = %+v, %v", res, err)
	}
	select {
	case <-matcher.refreshing:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}
	for range 7 {
		if _, err := h.core.IncrementDownloadCount(ctx, alpha.ID); err != nil {
			t.Fatalf("IncrementDownloadCount: %v", err)
		}
	}
	summary := "kept"
	if _, err := h.core.EditEntry(ctx, alpha.ID, catalog.EntryEdit{Summary: &summary}, "tester"); err != nil {
		t.Fatalf("EditEntry: %v", err)
	}
	close(matcher.refreshGate)
	h.orch.Wait()

	got, err := h.st.LoadEntry(ctx, alpha.ID)
	if err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}
	if got.Title != "Alpha Remastered" {
		t.Fatalf("title = %q, want refreshed title", got.Title)
	}
	if got.Metadata.DownloadCount != 7 {
		t.Fatalf("download count = %d, want 7", got.Metadata.DownloadCount)
	}
	if got.Summary != summary || !got.Provenance(catalog.FieldSummary).IsUser() {
		t.Fatalf("summary edit lost: %q %v", got.Summary, got.Provenance(catalog.FieldSummary))
	}
}

type failingCommitStore struct {
	*store.Store
}

func (failingCommitStore) Commit(context.Context, catalog.Changeset) (*catalog.Unit, error) {
	return nil, errors.New("disk full")
}

func TestScanFailureLeavesCatalogUntouched(t *testing.T) {
	matcher := &fakeMatcher{titles: map[string]string{"a.zip": "Alpha", "b.zip": "Beta"}, refreshed: map[string]string{}}
	h := newHarnessWithStore(t, matcher, func(st *store.Store) catalog.Store { return failingCommitStore{st} })
	testsupport.NewEntry(t, h.st, h.unit, "Alpha", filepath.Join(h.dir, "a.zip"))
	testsupport.WriteFile(t, filepath.Join(h.dir, "b.zip"), 1)
	testsupport.WriteFile(t, filepath.Join(h.dir, "c.zip"), 1)

	ctx := context.Background()
	before, err := h.st.LoadUnit(ctx, h.unit.ID)
	if err != nil {
		t.Fatalf("LoadUnit: %v", err)
	}

	progress := h.scan(t, scan.KindQuick)
	if progress.Status != scan.StatusFailed || progress.FinishedAt == nil {
		t.Fatalf("expected failed terminal snapshot, got %+v", progress)
	}
	if progress.Result != nil || !strings.Contains(progress.Error, "disk full") {
		t.Fatalf("failure not reported: result=%+v error=%q", progress.Result, progress.Error)
	}
	if h.orch.IsScanning(h.unit.ID) {
		t.Fatal("marker not cleared after failure")
	}

	after, err := h.st.LoadUnit(ctx, h.unit.ID)
	if err != nil {
		t.Fatalf("LoadUnit: %v", err)
	}
	if !slices.Equal(after.EntryIDs, before.EntryIDs) || len(after.Unmatched) != 0 || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("failed scan mutated the unit: before=%+v after=%+v", before, after)
	}
	if _, err := h.st.FindEntryByPath(ctx, h.unit.ID, filepath.Join(h.dir, "a.zip")); err != nil {
		t.Fatalf("removed entry should survive a failed scan: %v", err)
	}
}

func TestScanIsolatesPanickingPath(t *testing.T) {
	matcher := &fakeMatcher{titles: map[string]string{"a.zip": "Alpha"}, refreshed: map[string]string{}, panics: "boom.zip"}
	h := newHarness(t, matcher)
	testsupport.WriteFile(t, filepath.Join(h.dir, "a.zip"), 1)
	testsupport.WriteFile(t, filepath.Join(h.dir, "boom.zip"), 1)

	progress := h.scan(t, scan.KindQuick)
	if progress.Status != scan.StatusCompleted {
		t.Fatalf("scan should complete, got %+v", progress)
	}
	want := scan.Result{New: 1, Unmatched: 1}
	if *progress.Result != want {
		t.Fatalf("result = %+v, want %+v", *progress.Result, want)
	}
	unit, _ := h.st.LoadUnit(context.Background(), h.unit.ID)
	if !slices.Equal(unit.Unmatched, []string{filepath.Join(h.dir, "boom.zip")}) {
		t.Fatalf("unmatched = %v", unit.Unmatched)
	}
	h.assertPartition(t)
}

func TestTriggerScanUnknownUnit(t *testing.T) {
	h := newHarness(t, &fakeMatcher{})
	_, err := h.orch.TriggerScan(context.Background(), scan.KindQuick, []int64{h.unit.ID + 100})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want scan.Kind
		ok   bool
	}{
		{"", scan.KindQuick, true},
		{"full", scan.KindFull, true},
		{"scheduled", scan.KindScheduled, true},
		{"deep", "", false},
	}
	for _, tt := range tests {
		got, err := scan.ParseKind(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v", tt.in, got, err)
		}
	}
}
