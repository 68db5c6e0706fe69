package catalog_test

import (
	"testing"
	"time"

	"gameshelf/internal/catalog"
)

func TestRefreshKeepsFieldsFreshResultLacks(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	critic := 88
	existing := &catalog.Entry{
		Title:           "Hades",
		Summary:         "Defy the god of the dead.",
		CriticRating:    &critic,
		CoverCandidates: []string{"https://steam/cover.jpg"},
	}
	for _, field := range []catalog.Field{catalog.FieldTitle, catalog.FieldSummary, catalog.FieldCriticRating} {
		existing.SetFrom(field, existing, catalog.ProviderSourced("steam", at))
	}

	fresh := &catalog.Entry{Title: "Hades II", Metadata: catalog.Metadata{ExternalIDs: map[string]string{"local": "hades-2"}}}
	fresh.SetFrom(catalog.FieldTitle, fresh, catalog.ProviderSourced("local", at.Add(time.Hour)))

	if !existing.Refresh(fresh) {
		t.Fatal("expected the title change to be reported")
	}
	if existing.Title != "Hades II" || existing.Provenance(catalog.FieldTitle).ProviderID != "local" {
		t.Fatalf("title not refreshed: %q %v", existing.Title, existing.Provenance(catalog.FieldTitle))
	}
	if existing.Summary != "Defy the god of the dead." || existing.Provenance(catalog.FieldSummary).ProviderID != "steam" {
		t.Fatalf("summary wiped: %q %v", existing.Summary, existing.Provenance(catalog.FieldSummary))
	}
	if existing.CriticRating == nil || *existing.CriticRating != 88 {
		t.Fatalf("critic rating wiped: %v", existing.CriticRating)
	}
	if len(existing.CoverCandidates) != 1 {
		t.Fatalf("cover candidates wiped: %v", existing.CoverCandidates)
	}
	if existing.Metadata.ExternalIDs["local"] != "hades-2" {
		t.Fatalf("external ids not merged: %v", existing.Metadata.ExternalIDs)
	}

	if existing.Refresh(&catalog.Entry{}) {
		t.Fatal("an empty result must not change anything")
	}
}
