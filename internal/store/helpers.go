package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gameshelf/internal/catalog"
	"gameshelf/internal/services"
)

const entryColumns = "id, unit_id, path, title, release_date, summary, cover, header, user_rating, critic_rating, file_size, download_count, match_confirmed, lists_json, images_json, provenance_json, external_ids_json, created_at, updated_at"

type entryLists struct {
	Publishers   []string `json:"publishers,omitempty"`
	Developers   []string `json:"developers,omitempty"`
	Genres       []string `json:"genres,omitempty"`
	Themes       []string `json:"themes,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Features     []string `json:"features,omitempty"`
	Perspectives []string `json:"perspectives,omitempty"`
	Screenshots  []string `json:"screenshots,omitempty"`
	Videos       []string `json:"videos,omitempty"`
}

type entryImages struct {
	Covers  []catalog.SourcedURL `json:"covers,omitempty"`
	Headers []catalog.SourcedURL `json:"headers,omitempty"`
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*catalog.Entry, error) {
	var (
		entry          catalog.Entry
		releaseRaw     sql.NullString
		summary        sql.NullString
		cover          sql.NullString
		header         sql.NullString
		userRating     sql.NullInt64
		criticRating   sql.NullInt64
		matchConfirmed int
		listsRaw       string
		imagesRaw      string
		provenanceRaw  string
		externalRaw    string
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.UnitID,
		&entry.Metadata.Path,
		&entry.Title,
		&releaseRaw,
		&summary,
		&cover,
		&header,
		&userRating,
		&criticRating,
		&entry.Metadata.FileSize,
		&entry.Metadata.DownloadCount,
		&matchConfirmed,
		&listsRaw,
		&imagesRaw,
		&provenanceRaw,
		&externalRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry.Summary = summary.String
	entry.Cover = cover.String
	entry.Header = header.String
	entry.Release = parseNullableTime(releaseRaw)
	entry.UserRating = nullableIntPtr(userRating)
	entry.CriticRating = nullableIntPtr(criticRating)
	entry.Metadata.MatchConfirmed = matchConfirmed != 0
	entry.CreatedAt = parseTime(createdRaw)
	entry.UpdatedAt = parseTime(updatedRaw)

	var lists entryLists
	if err := json.Unmarshal([]byte(listsRaw), &lists); err != nil {
		return nil, fmt.Errorf("decode entry %d lists: %w", entry.ID, err)
	}
	entry.Publishers = lists.Publishers
	entry.Developers = lists.Developers
	entry.Genres = lists.Genres
	entry.Themes = lists.Themes
	entry.Keywords = lists.Keywords
	entry.Features = lists.Features
	entry.Perspectives = lists.Perspectives
	entry.Screenshots = lists.Screenshots
	entry.Videos = lists.Videos

	var images entryImages
	if err := json.Unmarshal([]byte(imagesRaw), &images); err != nil {
		return nil, fmt.Errorf("decode entry %d images: %w", entry.ID, err)
	}
	entry.CoverCandidates = images.Covers
	entry.HeaderCandidates = images.Headers

	if err := json.Unmarshal([]byte(provenanceRaw), &entry.Metadata.Fields); err != nil {
		return nil, fmt.Errorf("decode entry %d provenance: %w", entry.ID, err)
	}
	if err := json.Unmarshal([]byte(externalRaw), &entry.Metadata.ExternalIDs); err != nil {
		return nil, fmt.Errorf("decode entry %d external ids: %w", entry.ID, err)
	}
	return &entry, nil
}

// entryArgs returns the column values after id and unit_id, in entryColumns order.
func entryArgs(e *catalog.Entry) ([]any, error) {
	lists, err := json.Marshal(entryLists{
		Publishers:   e.Publishers,
		Developers:   e.Developers,
		Genres:       e.Genres,
		Themes:       e.Themes,
		Keywords:     e.Keywords,
		Features:     e.Features,
		Perspectives: e.Perspectives,
		Screenshots:  e.Screenshots,
		Videos:       e.Videos,
	})
	if err != nil {
		return nil, fmt.Errorf("encode lists: %w", err)
	}
	images, err := json.Marshal(entryImages{Covers: e.CoverCandidates, Headers: e.HeaderCandidates})
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	provenance, err := marshalMap(e.Metadata.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode provenance: %w", err)
	}
	external, err := marshalMap(e.Metadata.ExternalIDs)
	if err != nil {
		return nil, fmt.Errorf("encode external ids: %w", err)
	}
	return []any{
		e.Metadata.Path,
		e.Title,
		nullableTime(e.Release),
		nullableString(e.Summary),
		nullableString(e.Cover),
		nullableString(e.Header),
		nullableInt(e.UserRating),
		nullableInt(e.CriticRating),
		e.Metadata.FileSize,
		e.Metadata.DownloadCount,
		boolToInt(e.Metadata.MatchConfirmed),
		string(lists),
		string(images),
		provenance,
		external,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	}, nil
}

func marshalMap[K comparable, V any](m map[K]V) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func notFound(kind string, id int64) error {
	return services.Wrap(services.ErrNotFound, "store", "load "+kind, fmt.Sprintf("%s %d", kind, id), nil)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
