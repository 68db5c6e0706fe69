package catalog

import (
	"slices"
	"time"
)

// Field names a provenance-tracked Entry field.
type Field string

const (
	FieldTitle        Field = "title"
	FieldSummary      Field = "summary"
	FieldCover        Field = "cover"
	FieldHeader       Field = "header"
	FieldRelease      Field = "release"
	FieldUserRating   Field = "user_rating"
	FieldCriticRating Field = "critic_rating"
	FieldPublishers   Field = "publishers"
	FieldDevelopers   Field = "developers"
	FieldGenres       Field = "genres"
	FieldThemes       Field = "themes"
	FieldKeywords     Field = "keywords"
	FieldFeatures     Field = "features"
	FieldPerspectives Field = "perspectives"
	FieldScreenshots  Field = "screenshots"
	FieldVideos       Field = "videos"
)

// Fields lists every tracked field in merge order.
var Fields = []Field{
	FieldTitle, FieldSummary, FieldCover, FieldHeader, FieldRelease,
	FieldUserRating, FieldCriticRating, FieldPublishers, FieldDevelopers,
	FieldGenres, FieldThemes, FieldKeywords, FieldFeatures, FieldPerspectives,
	FieldScreenshots, FieldVideos,
}

// SourcedURL is an image candidate tagged with the provider that offered it.
type SourcedURL struct {
	URL        string `json:"url"`
	ProviderID string `json:"provider_id"`
}

// Metadata holds the bookkeeping attached to an Entry.
type Metadata struct {
	Path           string               `json:"path"`
	FileSize       int64                `json:"file_size"`
	DownloadCount  int                  `json:"download_count"`
	MatchConfirmed bool                 `json:"match_confirmed"`
	Fields         map[Field]Provenance `json:"fields,omitempty"`
	// ExternalIDs maps provider id to the id that provider uses for this game.
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
}

// Entry is a cataloged game.
type Entry struct {
	ID               int64        `json:"id"`
	UnitID           int64        `json:"unit_id"`
	Title            string       `json:"title"`
	Release          *time.Time   `json:"release,omitempty"`
	Summary          string       `json:"summary,omitempty"`
	Cover            string       `json:"cover,omitempty"`
	Header           string       `json:"header,omitempty"`
	CoverCandidates  []SourcedURL `json:"cover_candidates,omitempty"`
	HeaderCandidates []SourcedURL `json:"header_candidates,omitempty"`
	UserRating       *int         `json:"user_rating,omitempty"`
	CriticRating     *int         `json:"critic_rating,omitempty"`
	Publishers       []string     `json:"publishers,omitempty"`
	Developers       []string     `json:"developers,omitempty"`
	Genres           []string     `json:"genres,omitempty"`
	Themes           []string     `json:"themes,omitempty"`
	Keywords         []string     `json:"keywords,omitempty"`
	Features         []string     `json:"features,omitempty"`
	Perspectives     []string     `json:"perspectives,omitempty"`
	Screenshots      []string     `json:"screenshots,omitempty"`
	Videos           []string     `json:"videos,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Metadata         Metadata     `json:"metadata"`
}

// Year returns the release year, or zero when unknown.
func (e *Entry) Year() int {
	if e == nil || e.Release == nil {
		return 0
	}
	return e.Release.Year()
}

// Provenance returns the provenance of field.
func (e *Entry) Provenance(field Field) Provenance {
	if e.Metadata.Fields == nil {
		return Provenance{}
	}
	return e.Metadata.Fields[field]
}

// stamp records provenance for an assigned field.
func (e *Entry) stamp(field Field, prov Provenance) {
	if e.Metadata.Fields == nil {
		e.Metadata.Fields = make(map[Field]Provenance, len(Fields))
	}
	e.Metadata.Fields[field] = prov
}

// IsEmpty reports whether field holds no value.
func (e *Entry) IsEmpty(field Field) bool {
	switch field {
	case FieldTitle:
		return e.Title == ""
	case FieldSummary:
		return e.Summary == ""
	case FieldCover:
		return e.Cover == ""
	case FieldHeader:
		return e.Header == ""
	case FieldRelease:
		return e.Release == nil
	case FieldUserRating:
		return e.UserRating == nil
	case FieldCriticRating:
		return e.CriticRating == nil
	default:
		return len(e.list(field)) == 0
	}
}

// SetFrom copies field from src and stamps prov.
func (e *Entry) SetFrom(field Field, src *Entry, prov Provenance) {
	switch field {
	case FieldTitle:
		e.Title = src.Title
	case FieldSummary:
		e.Summary = src.Summary
	case FieldCover:
		e.Cover = src.Cover
	case FieldHeader:
		e.Header = src.Header
	case FieldRelease:
		e.Release = cloneTime(src.Release)
	case FieldUserRating:
		e.UserRating = cloneInt(src.UserRating)
	case FieldCriticRating:
		e.CriticRating = cloneInt(src.CriticRating)
	default:
		if dst := e.listRef(field); dst != nil {
			*dst = slices.Clone(src.list(field))
		}
	}
	e.stamp(field, prov)
}

// Equal reports whether field holds the same value on both entries.
func (e *Entry) Equal(field Field, other *Entry) bool {
	switch field {
	case FieldTitle:
		return e.Title == other.Title
	case FieldSummary:
		return e.Summary == other.Summary
	case FieldCover:
		return e.Cover == other.Cover
	case FieldHeader:
		return e.Header == other.Header
	case FieldRelease:
		if e.Release == nil || other.Release == nil {
			return e.Release == nil && other.Release == nil
		}
		return e.Release.Equal(*other.Release)
	case FieldUserRating:
		return equalInt(e.UserRating, other.UserRating)
	case FieldCriticRating:
		return equalInt(e.CriticRating, other.CriticRating)
	default:
		return slices.Equal(e.list(field), other.list(field))
	}
}

// Refresh overwrites every field of e that fresh supplies with a different
// value. Fields a user edited and fields fresh left empty keep their current
// value. Image candidates follow fresh when it has any; external ids are
// merged. It reports whether anything changed.
func (e *Entry) Refresh(fresh *Entry) bool {
	changed := false
	for _, field := range Fields {
		if e.Provenance(field).IsUser() || fresh.IsEmpty(field) {
			continue
		}
		if e.Equal(field, fresh) {
			continue
		}
		e.SetFrom(field, fresh, fresh.Provenance(field))
		changed = true
	}
	if len(fresh.CoverCandidates) > 0 && !slices.Equal(e.CoverCandidates, fresh.CoverCandidates) {
		e.CoverCandidates = slices.Clone(fresh.CoverCandidates)
		changed = true
	}
	if len(fresh.HeaderCandidates) > 0 && !slices.Equal(e.HeaderCandidates, fresh.HeaderCandidates) {
		e.HeaderCandidates = slices.Clone(fresh.HeaderCandidates)
		changed = true
	}
	for provider, id := range fresh.Metadata.ExternalIDs {
		if e.Metadata.ExternalIDs[provider] != id {
			if e.Metadata.ExternalIDs == nil {
				e.Metadata.ExternalIDs = make(map[string]string)
			}
			e.Metadata.ExternalIDs[provider] = id
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Release = cloneTime(e.Release)
	out.UserRating = cloneInt(e.UserRating)
	out.CriticRating = cloneInt(e.CriticRating)
	out.CoverCandidates = slices.Clone(e.CoverCandidates)
	out.HeaderCandidates = slices.Clone(e.HeaderCandidates)
	for _, field := range Fields {
		if ref := out.listRef(field); ref != nil {
			*ref = slices.Clone(*ref)
		}
	}
	if e.Metadata.Fields != nil {
		out.Metadata.Fields = make(map[Field]Provenance, len(e.Metadata.Fields))
		for k, v := range e.Metadata.Fields {
			out.Metadata.Fields[k] = v
		}
	}
	if e.Metadata.ExternalIDs != nil {
		out.Metadata.ExternalIDs = make(map[string]string, len(e.Metadata.ExternalIDs))
		for k, v := range e.Metadata.ExternalIDs {
			out.Metadata.ExternalIDs[k] = v
		}
	}
	return &out
}

func (e *Entry) list(field Field) []string {
	if ref := e.listRef(field); ref != nil {
		return *ref
	}
	return nil
}

func (e *Entry) listRef(field Field) *[]string {
	switch field {
	case FieldPublishers:
		return &e.Publishers
	case FieldDevelopers:
		return &e.Developers
	case FieldGenres:
		return &e.Genres
	case FieldThemes:
		return &e.Themes
	case FieldKeywords:
		return &e.Keywords
	case FieldFeatures:
		return &e.Features
	case FieldPerspectives:
		return &e.Perspectives
	case FieldScreenshots:
		return &e.Screenshots
	case FieldVideos:
		return &e.Videos
	default:
		return nil
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
