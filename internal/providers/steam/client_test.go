package steam_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gameshelf/internal/providers/steam"
	"gameshelf/internal/services"
)

const portalDetails = `{"400":{"success":true,"data":{
  "type":"game","name":"Portal™","short_description":"Think with portals.",
  "header_image":"https://cdn/400/header.jpg",
  "developers":["Valve"],"publishers":["Valve","Valve"],
  "genres":[{"id":"1","description":"Action"}],
  "categories":[{"id":2,"description":"Single-player"}],
  "screenshots":[{"path_full":"https://cdn/400/ss1.jpg"}],
  "movies":[{"webm":{"max":"https://cdn/400/trailer.webm"}}],
  "release_date":{"coming_soon":false,"date":"10 Oct, 2007"},
  "metacritic":{"score":90}
}}}`

const portal2Details = `{"620":{"success":true,"data":{"type":"game","name":"Portal 2","release_date":{"date":"Apr 18, 2011"}}}}`

const soundtrackDetails = `{"999":{"success":true,"data":{"type":"music","name":"Portal Soundtrack"}}}`

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Query().Get("cc") != "us" || r.URL.Query().Get("l") != "english" {
			t.Errorf("missing locale params: %s", r.URL.RawQuery)
		}
		switch r.URL.Path {
		case "/api/storesearch":
			if r.URL.Query().Get("term") == "blocked" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(`{"total":3,"items":[
              {"type":"app","name":"Portal 2","id":620},
              {"type":"app","name":"Portal Soundtrack","id":999},
              {"type":"app","name":"Portal","id":400}]}`))
		case "/api/appdetails":
			switch r.URL.Query().Get("appids") {
			case "400":
				_, _ = w.Write([]byte(portalDetails))
			case "620":
				_, _ = w.Write([]byte(portal2Details))
			case "999":
				_, _ = w.Write([]byte(soundtrackDetails))
			case "500":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				_, _ = w.Write([]byte(`{"1":{"success":false}}`))
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, server *httptest.Server) *steam.Client {
	t.Helper()
	client, err := steam.New(server.URL, "us", "english", time.Second, steam.WithHTTPClient(server.Client()), steam.WithMaxConcurrent(2))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestSearchByTitleRanksAndMaps(t *testing.T) {
	client := newClient(t, newServer(t, nil))

	results, err := client.SearchByTitle(context.Background(), "Portal", 1)
	if err != nil {
		t.Fatalf("SearchByTitle failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.Title != "Portal" || got.ExternalID != "400" {
		t.Fatalf("unexpected result %#v", got)
	}
	if got.Year() != 2007 {
		t.Fatalf("release year = %d", got.Year())
	}
	if got.CriticRating == nil || *got.CriticRating != 90 {
		t.Fatalf("critic rating = %v", got.CriticRating)
	}
	if len(got.CoverURLs) != 1 || len(got.Keywords) != 1 || got.Keywords[0] != "Single-player" {
		t.Fatalf("unexpected mapping %#v", got)
	}
	if len(got.Publishers) != 1 || len(got.Videos) != 1 || len(got.Screenshots) != 1 {
		t.Fatalf("unexpected lists %#v", got)
	}
}

func TestSearchByTitleSkipsNonGames(t *testing.T) {
	client := newClient(t, newServer(t, nil))

	results, err := client.SearchByTitle(context.Background(), "Portal", 10)
	if err != nil {
		t.Fatalf("SearchByTitle failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 games, got %d", len(results))
	}
	for _, r := range results {
		if r.ExternalID == "999" {
			t.Fatal("soundtrack should be skipped")
		}
	}
}

func TestSearchByTitleRateLimitedIsEmpty(t *testing.T) {
	client := newClient(t, newServer(t, nil))

	results, err := client.SearchByTitle(context.Background(), "blocked", 5)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty result, got %v, %v", results, err)
	}
}

func TestFetchByID(t *testing.T) {
	var hits atomic.Int32
	client := newClient(t, newServer(t, &hits))
	ctx := context.Background()

	meta, err := client.FetchByID(ctx, "620")
	if err != nil || meta == nil || meta.Title != "Portal 2" || meta.Year() != 2011 {
		t.Fatalf("FetchByID = %#v, %v", meta, err)
	}

	meta, err = client.FetchByID(ctx, "not-a-number")
	if err != nil || meta != nil {
		t.Fatalf("expected nil for malformed id, got %#v, %v", meta, err)
	}

	meta, err = client.FetchByID(ctx, "1")
	if err != nil || meta != nil {
		t.Fatalf("expected nil for unsuccessful lookup, got %#v, %v", meta, err)
	}

	if _, err := client.FetchByID(ctx, "500"); !errors.Is(err, services.ErrProviderQueryFailed) {
		t.Fatalf("expected ErrProviderQueryFailed, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", hits.Load())
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := steam.New(" ", "us", "english", 0); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
