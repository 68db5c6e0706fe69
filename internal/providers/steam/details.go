package steam

import (
	"strings"
	"time"

	"gameshelf/internal/matching"
	"gameshelf/internal/textutil"
)

type detailsWrapper struct {
	Success bool     `json:"success"`
	Data    *appData `json:"data"`
}

type appData struct {
	Type             string       `json:"type"`
	Name             string       `json:"name"`
	ShortDescription string       `json:"short_description"`
	HeaderImage      string       `json:"header_image"`
	Developers       []string     `json:"developers"`
	Publishers       []string     `json:"publishers"`
	Genres           []described  `json:"genres"`
	Categories       []described  `json:"categories"`
	Screenshots      []screenshot `json:"screenshots"`
	Movies           []movie      `json:"movies"`
	ReleaseDate      releaseDate  `json:"release_date"`
	Metacritic       *metacritic  `json:"metacritic"`
}

// described is a Steam genre or category. Genre ids are strings and category
// ids are numbers, so the id is left undecoded.
type described struct {
	Description string `json:"description"`
}

type screenshot struct {
	PathFull string `json:"path_full"`
}

type movie struct {
	Webm struct {
		Max string `json:"max"`
	} `json:"webm"`
}

type releaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

type metacritic struct {
	Score int `json:"score"`
}

var releaseLayouts = []string{
	"2 Jan, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2006",
	"January 2006",
	"2006",
}

func (d *appData) toMetadata(id string) *matching.Metadata {
	meta := &matching.Metadata{
		ExternalID:  id,
		Title:       textutil.CleanTitle(d.Name),
		Description: strings.TrimSpace(d.ShortDescription),
		Developers:  nonEmpty(d.Developers),
		Publishers:  nonEmpty(d.Publishers),
		Release:     parseRelease(d.ReleaseDate.Date),
	}
	if d.HeaderImage != "" {
		meta.CoverURLs = []string{d.HeaderImage}
	}
	for _, g := range d.Genres {
		meta.Genres = appendUnique(meta.Genres, g.Description)
	}
	for _, c := range d.Categories {
		meta.Keywords = appendUnique(meta.Keywords, c.Description)
	}
	for _, s := range d.Screenshots {
		meta.Screenshots = appendUnique(meta.Screenshots, s.PathFull)
	}
	for _, m := range d.Movies {
		meta.Videos = appendUnique(meta.Videos, m.Webm.Max)
	}
	if d.Metacritic != nil && d.Metacritic.Score > 0 {
		score := d.Metacritic.Score
		meta.CriticRating = &score
	}
	return meta
}

func parseRelease(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range releaseLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		out = appendUnique(out, v)
	}
	return out
}

func appendUnique(dst []string, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return dst
	}
	for _, existing := range dst {
		if existing == value {
			return dst
		}
	}
	return append(dst, value)
}
