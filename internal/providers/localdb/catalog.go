package localdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"gameshelf/internal/logging"
	"gameshelf/internal/matching"
	"gameshelf/internal/textutil"
)

// ProviderID keys local ids in entry metadata.
const ProviderID = "local"

// minSearchRatio drops local records that share little with the query.
const minSearchRatio = 50

// Game is one record of the local games file.
type Game struct {
	ID           string   `toml:"id"`
	Title        string   `toml:"title"`
	Aliases      []string `toml:"aliases"`
	Description  string   `toml:"description"`
	Release      string   `toml:"release"`
	Cover        string   `toml:"cover"`
	Header       string   `toml:"header"`
	UserRating   *int     `toml:"user_rating"`
	CriticRating *int     `toml:"critic_rating"`
	Developers   []string `toml:"developers"`
	Publishers   []string `toml:"publishers"`
	Genres       []string `toml:"genres"`
	Themes       []string `toml:"themes"`
	Keywords     []string `toml:"keywords"`
	Features     []string `toml:"features"`
	Perspectives []string `toml:"perspectives"`
	Screenshots  []string `toml:"screenshots"`
	Videos       []string `toml:"videos"`
}

type file struct {
	Games []Game `toml:"games"`
}

// Catalog serves metadata from a local TOML file.
type Catalog struct {
	path    string
	mu      sync.RWMutex
	games   []Game
	byID    map[string]int
	modTime time.Time
	logger  *slog.Logger
}

var _ matching.Provider = (*Catalog)(nil)

// NewCatalog creates a catalog for path. A missing file yields an empty catalog.
func NewCatalog(path string, logger *slog.Logger) *Catalog {
	return &Catalog{
		path:   strings.TrimSpace(path),
		logger: logging.NewComponentLogger(logger, "localdb"),
	}
}

// ID implements matching.Provider.
func (c *Catalog) ID() string { return ProviderID }

// SearchByTitle ranks local records by title or alias similarity.
func (c *Catalog) SearchByTitle(_ context.Context, title string, limit int) ([]matching.Metadata, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}
	type scored struct {
		game  Game
		ratio int
	}
	c.mu.RLock()
	hits := make([]scored, 0, len(c.games))
	for _, game := range c.games {
		best := textutil.TitleRatio(title, game.Title)
		for _, alias := range game.Aliases {
			best = max(best, textutil.TitleRatio(title, alias))
		}
		if best >= minSearchRatio {
			hits = append(hits, scored{game: game, ratio: best})
		}
	}
	c.mu.RUnlock()

	slices.SortStableFunc(hits, func(a, b scored) int { return b.ratio - a.ratio })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]matching.Metadata, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.game.toMetadata())
	}
	return out, nil
}

// FetchByID returns the record with id, or nil when unknown.
func (c *Catalog) FetchByID(_ context.Context, externalID string) (*matching.Metadata, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[strings.TrimSpace(externalID)]
	if !ok {
		return nil, nil
	}
	meta := c.games[idx].toMetadata()
	return &meta, nil
}

// Len reports the number of loaded records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.games)
}

func (c *Catalog) ensureLoaded() error {
	info, err := os.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.mu.Lock()
		if c.games != nil || c.byID == nil {
			c.logger.Debug("local games file missing", logging.String(logging.FieldPath, c.path))
		}
		c.games, c.byID, c.modTime = nil, map[string]int{}, time.Time{}
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat local games file: %w", err)
	}

	c.mu.RLock()
	loaded := c.byID != nil && c.modTime.Equal(info.ModTime())
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.loadFromDisk(info.ModTime())
}

func (c *Catalog) loadFromDisk(modTime time.Time) error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read local games file: %w", err)
	}
	var parsed file
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse local games file %s: %w", c.path, err)
	}

	games := make([]Game, 0, len(parsed.Games))
	byID := make(map[string]int, len(parsed.Games))
	for _, game := range parsed.Games {
		game.ID = strings.TrimSpace(game.ID)
		game.Title = strings.TrimSpace(game.Title)
		if game.ID == "" || game.Title == "" {
			c.logger.Warn("skipping local game without id or title",
				logging.String("id", game.ID),
				logging.String("title", game.Title),
				logging.String(logging.FieldEventType, "localdb_record_invalid"),
			)
			continue
		}
		if _, dup := byID[game.ID]; dup {
			c.logger.Warn("duplicate local game id", logging.String("id", game.ID))
			continue
		}
		byID[game.ID] = len(games)
		games = append(games, game)
	}

	c.mu.Lock()
	c.games, c.byID, c.modTime = games, byID, modTime
	c.mu.Unlock()
	c.logger.Info("local games file loaded",
		logging.String(logging.FieldPath, c.path),
		logging.Int("games", len(games)),
	)
	return nil
}

func (g Game) toMetadata() matching.Metadata {
	meta := matching.Metadata{
		ExternalID:   g.ID,
		Title:        g.Title,
		Description:  g.Description,
		UserRating:   g.UserRating,
		CriticRating: g.CriticRating,
		Developers:   slices.Clone(g.Developers),
		Publishers:   slices.Clone(g.Publishers),
		Genres:       slices.Clone(g.Genres),
		Themes:       slices.Clone(g.Themes),
		Keywords:     slices.Clone(g.Keywords),
		Features:     slices.Clone(g.Features),
		Perspectives: slices.Clone(g.Perspectives),
		Screenshots:  slices.Clone(g.Screenshots),
		Videos:       slices.Clone(g.Videos),
	}
	if g.Cover != "" {
		meta.CoverURLs = []string{g.Cover}
	}
	if g.Header != "" {
		meta.HeaderURLs = []string{g.Header}
	}
	if g.Release != "" {
		for _, layout := range []string{"2006-01-02", "2006"} {
			if t, err := time.Parse(layout, strings.TrimSpace(g.Release)); err == nil {
				meta.Release = &t
				break
			}
		}
	}
	return meta
}
