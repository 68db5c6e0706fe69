package matching

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gameshelf/internal/catalog"
	"gameshelf/internal/logging"
	"gameshelf/internal/services"
	"gameshelf/internal/textutil"
)

const defaultSearchLimit = 10

// EntryLoader reads committed entries. catalog.Store satisfies it.
type EntryLoader interface {
	LoadEntry(ctx context.Context, id int64) (*catalog.Entry, error)
}

// Options tunes matching behaviour.
type Options struct {
	// MinRatio is the 0..100 similarity a provider title must exceed, relative
	// to the best title for a file, to take part in the merge.
	MinRatio int
	// SearchLimit caps per-provider results for SearchCandidates.
	SearchLimit int
	// TitleRegex, when set, narrows a file name to its title.
	TitleRegex *regexp.Regexp
}

// Candidate is a merged search result ranked against the search term.
type Candidate struct {
	Entry *catalog.Entry `json:"entry"`
	Ratio int            `json:"ratio"`
}

// Engine queries providers and merges their results.
type Engine struct {
	providers []Registered
	entries   EntryLoader
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine constructs an Engine over providers.
func NewEngine(providers []Registered, entries EntryLoader, opts Options, logger *slog.Logger) *Engine {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	return &Engine{
		providers: sortByPriority(providers),
		entries:   entries,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "matching"),
		now:       time.Now,
	}
}

// Providers lists registered providers by descending priority.
func (e *Engine) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(e.providers))
	for _, reg := range e.providers {
		out = append(out, ProviderInfo{ID: reg.Provider.ID(), Priority: reg.Priority})
	}
	return out
}

// SearchCandidates asks every provider for up to limit matches of term,
// merges results that share a normalized title and release year, and ranks
// the merged candidates by similarity to term, newest first on ties.
func (e *Engine) SearchCandidates(ctx context.Context, term string, limit int) ([]Candidate, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, services.Wrap(services.ErrValidation, "matching", "search", "search term is required", nil)
	}
	if limit <= 0 {
		limit = e.opts.SearchLimit
	}

	perProvider := make([][]Metadata, len(e.providers))
	var g errgroup.Group
	for i, reg := range e.providers {
		g.Go(func() error {
			found, err := searchProvider(ctx, reg, term, limit)
			if err != nil {
				e.providerFailed(ctx, reg, "search", term, err)
				return nil
			}
			perProvider[i] = found
			return nil
		})
	}
	_ = g.Wait()

	type groupKey struct {
		title string
		year  int
	}
	var order []groupKey
	groups := make(map[groupKey][]providerResult)
	// e.providers is priority ordered, so each group stays priority ordered.
	for i, reg := range e.providers {
		for j := range perProvider[i] {
			meta := &perProvider[i][j]
			if !meta.usable() {
				continue
			}
			key := groupKey{title: textutil.NormalizeTitle(meta.Title), year: meta.Year()}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], providerResult{reg: reg, meta: meta})
		}
	}

	now := e.now()
	candidates := make([]Candidate, 0, len(order))
	for _, key := range order {
		merged := merge(groups[key], now)
		candidates = append(candidates, Candidate{Entry: merged, Ratio: textutil.TitleRatio(term, merged.Title)})
	}
	slices.SortStableFunc(candidates, compareCandidates)
	return candidates, nil
}

func compareCandidates(a, b Candidate) int {
	if a.Ratio != b.Ratio {
		return b.Ratio - a.Ratio
	}
	ya, yb := a.Entry.Year(), b.Entry.Year()
	switch {
	case ya == yb:
		return 0
	case ya == 0:
		return 1
	case yb == 0:
		return -1
	default:
		return yb - ya
	}
}

// SearchTerm derives the provider query for a game path.
func (e *Engine) SearchTerm(path string) string {
	name := filepath.Base(path)
	term := strings.TrimSuffix(name, filepath.Ext(name))
	if e.opts.TitleRegex == nil {
		return term
	}
	extracted := strings.TrimSpace(e.opts.TitleRegex.FindString(term))
	if extracted == "" {
		e.logger.Debug("title regex did not match, using full file name",
			logging.String(logging.FieldPath, path),
			logging.String("regex", e.opts.TitleRegex.String()),
		)
		return term
	}
	return extracted
}

// IdentifyFile matches one game path. Every provider's best match is
// collected; results whose title is not close to the overall best title are
// dropped before merging.
func (e *Engine) IdentifyFile(ctx context.Context, path string, unit *catalog.Unit) (*catalog.Entry, error) {
	term := e.SearchTerm(path)

	best := make([]*Metadata, len(e.providers))
	var g errgroup.Group
	for i, reg := range e.providers {
		g.Go(func() error {
			found, err := searchProvider(ctx, reg, term, 1)
			if err != nil {
				e.providerFailed(ctx, reg, "search", term, err)
				return nil
			}
			if len(found) > 0 {
				best[i] = &found[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	var results []providerResult
	for i, meta := range best {
		if meta.usable() {
			results = append(results, providerResult{reg: e.providers[i], meta: meta})
		}
	}
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrNoMatchFound, "matching", "identify file", fmt.Sprintf("no provider recognised %q", term), nil)
	}

	bestTitle := results[0].meta.Title
	bestRatio := -1
	for _, res := range results {
		if ratio := textutil.TitleRatio(term, res.meta.Title); ratio > bestRatio {
			bestRatio = ratio
			bestTitle = res.meta.Title
		}
	}
	filtered := slices.DeleteFunc(slices.Clone(results), func(res providerResult) bool {
		return textutil.TitleRatio(res.meta.Title, bestTitle) <= e.opts.MinRatio
	})
	e.logger.Debug("best matching title",
		logging.String("term", term),
		logging.String("best_title", bestTitle),
		logging.Int("accepted", len(filtered)),
		logging.Int("answered", len(results)),
	)
	if len(filtered) == 0 {
		return nil, services.Wrap(services.ErrNoMatchFound, "matching", "identify file", fmt.Sprintf("no provider title close to %q", bestTitle), nil)
	}

	entry := merge(filtered, e.now())
	attach(entry, path, unit)
	return entry, nil
}

// IdentifyByExternalIDs fetches each provider's record for a chosen identity
// and merges them without filtering. With replaceEntryID the result takes
// over that entry's id, creation time and download count. The result is
// always marked as a confirmed match.
func (e *Engine) IdentifyByExternalIDs(ctx context.Context, ids map[string]string, path string, unit *catalog.Unit, replaceEntryID int64) (*catalog.Entry, error) {
	fetched := make([]*Metadata, len(e.providers))
	var g errgroup.Group
	for i, reg := range e.providers {
		externalID := strings.TrimSpace(ids[reg.Provider.ID()])
		if externalID == "" {
			continue
		}
		g.Go(func() error {
			meta, err := fetchProvider(ctx, reg, externalID)
			if err != nil {
				e.providerFailed(ctx, reg, "fetch", externalID, err)
				return nil
			}
			fetched[i] = meta
			return nil
		})
	}
	_ = g.Wait()

	var results []providerResult
	for i, meta := range fetched {
		if meta.usable() {
			if meta.ExternalID == "" {
				meta.ExternalID = ids[e.providers[i].Provider.ID()]
			}
			results = append(results, providerResult{reg: e.providers[i], meta: meta})
		}
	}
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrNoValidResults, "matching", "identify by id", formatIDs(ids), nil)
	}

	entry := merge(results, e.now())
	attach(entry, path, unit)
	if replaceEntryID != 0 {
		if e.entries == nil {
			return nil, services.Wrap(services.ErrConfiguration, "matching", "identify by id", "no entry loader for replacement", nil)
		}
		existing, err := e.entries.LoadEntry(ctx, replaceEntryID)
		if err != nil {
			return nil, fmt.Errorf("load replaced entry: %w", err)
		}
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		entry.Metadata.DownloadCount = existing.Metadata.DownloadCount
		if entry.UnitID == 0 {
			entry.UnitID = existing.UnitID
		}
		if entry.Metadata.Path == "" {
			entry.Metadata.Path = existing.Metadata.Path
		}
	}
	entry.Metadata.MatchConfirmed = true
	return entry, nil
}

// searchProvider and fetchProvider isolate a provider panic to its own query.
func searchProvider(ctx context.Context, reg Registered, term string, limit int) (found []Metadata, err error) {
	defer services.Recover(&err, services.ErrTransient, reg.Provider.ID(), "search")
	return reg.Provider.SearchByTitle(ctx, term, limit)
}

func fetchProvider(ctx context.Context, reg Registered, externalID string) (meta *Metadata, err error) {
	defer services.Recover(&err, services.ErrTransient, reg.Provider.ID(), "fetch")
	return reg.Provider.FetchByID(ctx, externalID)
}

func (e *Engine) providerFailed(ctx context.Context, reg Registered, op, query string, err error) {
	wrapped := services.Wrap(services.ErrProviderQueryFailed, "matching", op, reg.Provider.ID(), err)
	logging.WarnWithContext(logging.WithContext(ctx, e.logger), "provider query failed", "provider_query_failed",
		logging.String(logging.FieldProvider, reg.Provider.ID()),
		logging.String("query", query),
		logging.Error(wrapped),
		logging.String(logging.FieldErrorHint, services.Hint(wrapped)),
		logging.String(logging.FieldImpact, "provider result treated as empty"),
	)
}

func attach(entry *catalog.Entry, path string, unit *catalog.Unit) {
	entry.Metadata.Path = path
	if unit != nil {
		entry.UnitID = unit.ID
	}
}

func formatIDs(ids map[string]string) string {
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Quote(ids[k]))
	}
	return "no results for " + strings.Join(parts, ", ")
}
