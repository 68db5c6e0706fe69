package matching

import (
	"context"
	"slices"
	"time"

	"gameshelf/internal/catalog"
	"gameshelf/internal/textutil"
)

// Metadata is one provider's description of a game. Title is required; every
// other field is optional.
type Metadata struct {
	ExternalID   string     `json:"external_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	CoverURLs    []string   `json:"cover_urls,omitempty"`
	HeaderURLs   []string   `json:"header_urls,omitempty"`
	Release      *time.Time `json:"release,omitempty"`
	UserRating   *int       `json:"user_rating,omitempty"`
	CriticRating *int       `json:"critic_rating,omitempty"`
	Developers   []string   `json:"developers,omitempty"`
	Publishers   []string   `json:"publishers,omitempty"`
	Genres       []string   `json:"genres,omitempty"`
	Themes       []string   `json:"themes,omitempty"`
	Keywords     []string   `json:"keywords,omitempty"`
	Features     []string   `json:"features,omitempty"`
	Perspectives []string   `json:"perspectives,omitempty"`
	Screenshots  []string   `json:"screenshots,omitempty"`
	Videos       []string   `json:"videos,omitempty"`
}

// Year returns the release year, or zero when unknown.
func (m *Metadata) Year() int {
	if m == nil || m.Release == nil {
		return 0
	}
	return m.Release.Year()
}

func (m *Metadata) usable() bool {
	return m != nil && m.Title != ""
}

// Provider is an external metadata source.
type Provider interface {
	// ID is stable across restarts; it keys external ids and provenance.
	ID() string
	SearchByTitle(ctx context.Context, title string, limit int) ([]Metadata, error)
	// FetchByID returns nil, nil when the id is unknown.
	FetchByID(ctx context.Context, externalID string) (*Metadata, error)
}

// Registered pairs a provider with its priority. Higher priorities win merges.
type Registered struct {
	Provider Provider
	Priority int
}

// ProviderInfo describes a registered provider for status output.
type ProviderInfo struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
}

// sortByPriority orders providers by descending priority, then by id.
func sortByPriority(regs []Registered) []Registered {
	out := slices.Clone(regs)
	slices.SortStableFunc(out, func(a, b Registered) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		switch {
		case a.Provider.ID() < b.Provider.ID():
			return -1
		case a.Provider.ID() > b.Provider.ID():
			return 1
		}
		return 0
	})
	return out
}

// toEntry converts provider metadata into an unattached entry.
func toEntry(m *Metadata) *catalog.Entry {
	entry := &catalog.Entry{
		Title:        textutil.CleanTitle(m.Title),
		Summary:      m.Description,
		Release:      m.Release,
		UserRating:   m.UserRating,
		CriticRating: m.CriticRating,
		Publishers:   m.Publishers,
		Developers:   m.Developers,
		Genres:       m.Genres,
		Themes:       m.Themes,
		Keywords:     m.Keywords,
		Features:     m.Features,
		Perspectives: m.Perspectives,
		Screenshots:  m.Screenshots,
		Videos:       m.Videos,
	}
	if len(m.CoverURLs) > 0 {
		entry.Cover = m.CoverURLs[0]
	}
	if len(m.HeaderURLs) > 0 {
		entry.Header = m.HeaderURLs[0]
	}
	return entry
}
