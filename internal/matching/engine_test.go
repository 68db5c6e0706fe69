package matching_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"gameshelf/internal/catalog"
	"gameshelf/internal/logging"
	"gameshelf/internal/matching"
	"gameshelf/internal/services"
)

type fakeProvider struct {
	id      string
	search  func(title string, limit int) ([]matching.Metadata, error)
	byID    map[string]*matching.Metadata
	fetchMu sync.Mutex
	fetched []string
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) SearchByTitle(_ context.Context, title string, limit int) ([]matching.Metadata, error) {
	if p.search == nil {
		return nil, nil
	}
	results, err := p.search(title, limit)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, err
}

func (p *fakeProvider) FetchByID(_ context.Context, id string) (*matching.Metadata, error) {
	p.fetchMu.Lock()
	p.fetched = append(p.fetched, id)
	p.fetchMu.Unlock()
	meta, ok := p.byID[id]
	if !ok {
		return nil, errors.New("unknown id")
	}
	return meta, nil
}

func fixed(results ...matching.Metadata) func(string, int) ([]matching.Metadata, error) {
	return func(string, int) ([]matching.Metadata, error) { return results, nil }
}

func year(y int) *time.Time {
	t := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

type entryLoader map[int64]*catalog.Entry

func (l entryLoader) LoadEntry(_ context.Context, id int64) (*catalog.Entry, error) {
	if entry, ok := l[id]; ok {
		return entry, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "test", "load", "missing", nil)
}

func newEngine(providers []matching.Registered, loader matching.EntryLoader) *matching.Engine {
	return matching.NewEngine(providers, loader, matching.Options{MinRatio: 90}, logging.NewNop())
}

func TestSearchCandidatesMergesByPriority(t *testing.T) {
	p1 := &fakeProvider{id: "p1", search: fixed(matching.Metadata{
		ExternalID: "1", Title: "Portal", Release: year(2007),
		CoverURLs: []string{"https://p1/cover.jpg"},
	})}
	p2 := &fakeProvider{id: "p2", search: fixed(matching.Metadata{
		ExternalID: "2", Title: "portal", Release: year(2007), Description: "from p2",
		CoverURLs: []string{"https://p2/cover.jpg", "https://p2/cover.jpg"},
	})}
	engine := newEngine([]matching.Registered{{Provider: p2, Priority: 5}, {Provider: p1, Priority: 10}}, nil)

	got, err := engine.SearchCandidates(context.Background(), "portal", 0)
	if err != nil {
		t.Fatalf("SearchCandidates failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one merged candidate, got %d", len(got))
	}
	entry := got[0].Entry
	if entry.Title != "Portal" || entry.Year() != 2007 {
		t.Fatalf("title/year not from p1: %q %d", entry.Title, entry.Year())
	}
	if prov := entry.Provenance(catalog.FieldTitle); prov.ProviderID != "p1" {
		t.Fatalf("title provenance = %v", prov)
	}
	if entry.Summary != "from p2" || entry.Provenance(catalog.FieldSummary).ProviderID != "p2" {
		t.Fatalf("summary should fall through to p2: %q %v", entry.Summary, entry.Provenance(catalog.FieldSummary))
	}
	if entry.Metadata.ExternalIDs["p1"] != "1" || entry.Metadata.ExternalIDs["p2"] != "2" {
		t.Fatalf("external ids = %v", entry.Metadata.ExternalIDs)
	}
	if len(entry.CoverCandidates) != 2 {
		t.Fatalf("cover candidates = %v", entry.CoverCandidates)
	}
	if entry.Cover != "https://p1/cover.jpg" {
		t.Fatalf("cover = %q", entry.Cover)
	}
}

func TestSearchCandidatesRanking(t *testing.T) {
	p := &fakeProvider{id: "p", search: fixed(
		matching.Metadata{ExternalID: "a", Title: "Half-Life", Release: year(1998)},
		matching.Metadata{ExternalID: "b", Title: "Half-Life 2", Release: year(2004)},
	)}
	engine := newEngine([]matching.Registered{{Provider: p, Priority: 1}}, nil)

	got, err := engine.SearchCandidates(context.Background(), "Half Life 2", 0)
	if err != nil {
		t.Fatalf("SearchCandidates failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Entry.Title != "Half-Life 2" || got[0].Entry.Year() != 2004 {
		t.Fatalf("unexpected first candidate %q (%d)", got[0].Entry.Title, got[0].Ratio)
	}
	if got[0].Ratio < 90 || got[1].Ratio >= got[0].Ratio {
		t.Fatalf("ratios = %d, %d", got[0].Ratio, got[1].Ratio)
	}
}

func TestSearchCandidatesYearTieBreak(t *testing.T) {
	p := &fakeProvider{id: "p", search: fixed(
		matching.Metadata{ExternalID: "a", Title: "Doom"},
		matching.Metadata{ExternalID: "b", Title: "Doom", Release: year(1993)},
		matching.Metadata{ExternalID: "c", Title: "Doom", Release: year(2016)},
	)}
	engine := newEngine([]matching.Registered{{Provider: p, Priority: 1}}, nil)

	got, err := engine.SearchCandidates(context.Background(), "doom", 0)
	if err != nil {
		t.Fatalf("SearchCandidates failed: %v", err)
	}
	years := []int{got[0].Entry.Year(), got[1].Entry.Year(), got[2].Entry.Year()}
	if years[0] != 2016 || years[1] != 1993 || years[2] != 0 {
		t.Fatalf("years = %v, want [2016 1993 0]", years)
	}
}

func TestSearchCandidatesToleratesProviderFailure(t *testing.T) {
	broken := &fakeProvider{id: "broken", search: func(string, int) ([]matching.Metadata, error) {
		return nil, errors.New("boom")
	}}
	ok := &fakeProvider{id: "ok", search: fixed(matching.Metadata{ExternalID: "1", Title: "Portal"})}
	engine := newEngine([]matching.Registered{{Provider: broken, Priority: 10}, {Provider: ok, Priority: 1}}, nil)

	got, err := engine.SearchCandidates(context.Background(), "portal", 0)
	if err != nil {
		t.Fatalf("SearchCandidates failed: %v", err)
	}
	if len(got) != 1 || got[0].Entry.Metadata.ExternalIDs["ok"] != "1" {
		t.Fatalf("unexpected candidates %#v", got)
	}
}

func TestIdentifyFileFiltersUnrelatedTitles(t *testing.T) {
	good := &fakeProvider{id: "good", search: fixed(matching.Metadata{ExternalID: "g", Title: "Stardew Valley", Genres: []string{"Simulation"}})}
	alsoGood := &fakeProvider{id: "also", search: fixed(matching.Metadata{ExternalID: "a", Title: "Stardew Valley", Description: "farming"})}
	wrong := &fakeProvider{id: "wrong", search: fixed(matching.Metadata{ExternalID: "w", Title: "Star Wars Battlefront", Genres: []string{"Shooter"}})}
	engine := newEngine([]matching.Registered{
		{Provider: wrong, Priority: 100},
		{Provider: good, Priority: 5},
		{Provider: alsoGood, Priority: 1},
	}, nil)

	unit := &catalog.Unit{ID: 3}
	entry, err := engine.IdentifyFile(context.Background(), "/games/Stardew Valley.zip", unit)
	if err != nil {
		t.Fatalf("IdentifyFile failed: %v", err)
	}
	if entry.Title != "Stardew Valley" || entry.UnitID != 3 || entry.Metadata.Path != "/games/Stardew Valley.zip" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if _, ok := entry.Metadata.ExternalIDs["wrong"]; ok {
		t.Fatalf("unrelated provider was merged: %v", entry.Metadata.ExternalIDs)
	}
	if len(entry.Genres) != 1 || entry.Genres[0] != "Simulation" {
		t.Fatalf("genres = %v", entry.Genres)
	}
	if entry.Summary != "farming" {
		t.Fatalf("summary = %q", entry.Summary)
	}
}

func TestIdentifyFileNoMatch(t *testing.T) {
	empty := &fakeProvider{id: "empty"}
	broken := &fakeProvider{id: "broken", search: func(string, int) ([]matching.Metadata, error) {
		return nil, errors.New("boom")
	}}
	engine := newEngine([]matching.Registered{{Provider: empty, Priority: 1}, {Provider: broken, Priority: 2}}, nil)

	_, err := engine.IdentifyFile(context.Background(), "/games/unknown.zip", nil)
	if !errors.Is(err, services.ErrNoMatchFound) {
		t.Fatalf("expected ErrNoMatchFound, got %v", err)
	}
}

func TestSearchTermUsesRegex(t *testing.T) {
	engine := matching.NewEngine(nil, nil, matching.Options{TitleRegex: regexp.MustCompile(`^[^(\[]+`)}, logging.NewNop())
	if got := engine.SearchTerm("/games/Portal 2 (2011) [GOG].zip"); got != "Portal 2" {
		t.Fatalf("SearchTerm = %q", got)
	}
	if got := engine.SearchTerm("/games/(untitled).zip"); got != "(untitled)" {
		t.Fatalf("SearchTerm fallback = %q", got)
	}
}

func TestIdentifyByExternalIDsPreservesIdentity(t *testing.T) {
	created := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	loader := entryLoader{42: {
		ID:        42,
		UnitID:    9,
		CreatedAt: created,
		Metadata:  catalog.Metadata{Path: "/games/portal.zip", DownloadCount: 7},
	}}
	p1 := &fakeProvider{id: "p1", byID: map[string]*matching.Metadata{"400": {Title: "Portal", Release: year(2007)}}}
	p2 := &fakeProvider{id: "p2", byID: map[string]*matching.Metadata{}}
	engine := newEngine([]matching.Registered{{Provider: p1, Priority: 10}, {Provider: p2, Priority: 5}}, loader)

	entry, err := engine.IdentifyByExternalIDs(context.Background(), map[string]string{"p1": "400", "p2": "missing"}, "", nil, 42)
	if err != nil {
		t.Fatalf("IdentifyByExternalIDs failed: %v", err)
	}
	if entry.ID != 42 || !entry.CreatedAt.Equal(created) || entry.Metadata.DownloadCount != 7 || !entry.Metadata.MatchConfirmed {
		t.Fatalf("identity not preserved: %#v", entry)
	}
	if entry.UnitID != 9 || entry.Metadata.Path != "/games/portal.zip" {
		t.Fatalf("ownership not inherited: unit=%d path=%q", entry.UnitID, entry.Metadata.Path)
	}
	if entry.Metadata.ExternalIDs["p1"] != "400" {
		t.Fatalf("external ids = %v", entry.Metadata.ExternalIDs)
	}
}

func TestIdentifyByExternalIDsNoValidResults(t *testing.T) {
	p := &fakeProvider{id: "p", byID: map[string]*matching.Metadata{}}
	engine := newEngine([]matching.Registered{{Provider: p, Priority: 1}}, nil)

	_, err := engine.IdentifyByExternalIDs(context.Background(), map[string]string{"p": "nope"}, "/games/x.zip", nil, 0)
	if !errors.Is(err, services.ErrNoValidResults) {
		t.Fatalf("expected ErrNoValidResults, got %v", err)
	}
	if !strings.Contains(err.Error(), `p="nope"`) {
		t.Fatalf("error does not name the ids: %v", err)
	}
}

type panickingProvider struct{ id string }

func (p panickingProvider) ID() string { return p.id }

func (p panickingProvider) SearchByTitle(context.Context, string, int) ([]matching.Metadata, error) {
	var meta *matching.Metadata
	return []matching.Metadata{*meta}, nil
}

func (p panickingProvider) FetchByID(context.Context, string) (*matching.Metadata, error) {
	panic("malformed payload")
}

func TestProviderPanicIsIsolated(t *testing.T) {
	ok := &fakeProvider{
		id:     "ok",
		search: fixed(matching.Metadata{ExternalID: "1", Title: "Portal"}),
		byID:   map[string]*matching.Metadata{"1": {Title: "Portal"}},
	}
	engine := newEngine([]matching.Registered{{Provider: panickingProvider{id: "bad"}, Priority: 10}, {Provider: ok, Priority: 1}}, nil)
	ctx := context.Background()

	got, err := engine.SearchCandidates(ctx, "portal", 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("SearchCandidates = %#v, %v", got, err)
	}
	entry, err := engine.IdentifyFile(ctx, "/games/Portal.zip", nil)
	if err != nil || entry.Title != "Portal" {
		t.Fatalf("IdentifyFile = %#v, %v", entry, err)
	}
	entry, err = engine.IdentifyByExternalIDs(ctx, map[string]string{"bad": "7", "ok": "1"}, "/games/Portal.zip", nil, 0)
	if err != nil || entry.Title != "Portal" {
		t.Fatalf("IdentifyByExternalIDs = %#v, %v", entry, err)
	}
	if _, ok := entry.Metadata.ExternalIDs["bad"]; ok {
		t.Fatalf("panicking provider contributed ids: %v", entry.Metadata.ExternalIDs)
	}

	solo := newEngine([]matching.Registered{{Provider: panickingProvider{id: "bad"}, Priority: 1}}, nil)
	if _, err := solo.IdentifyFile(ctx, "/games/Portal.zip", nil); !errors.Is(err, services.ErrNoMatchFound) {
		t.Fatalf("expected ErrNoMatchFound, got %v", err)
	}
}
