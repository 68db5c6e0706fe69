package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gameshelf/internal/logging"
	"gameshelf/internal/matching"
	"gameshelf/internal/services"
	"gameshelf/internal/textutil"
)

// ProviderID keys Steam app ids in entry metadata.
const ProviderID = "steam"

// Client queries the Steam Store.
type Client struct {
	baseURL    string
	country    string
	language   string
	httpClient *http.Client
	slots      chan struct{}
	logger     *slog.Logger
}

var _ matching.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "steam")
	}
}

// WithMaxConcurrent bounds in-flight requests.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.slots = make(chan struct{}, n)
		}
	}
}

// New creates a Steam Store client.
func New(baseURL, country, language string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("steam base url required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		country:    strings.TrimSpace(country),
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: timeout},
		slots:      make(chan struct{}, 8),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ID implements matching.Provider.
func (c *Client) ID() string { return ProviderID }

type searchResponse struct {
	Total int          `json:"total"`
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Type string `json:"type"`
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// SearchByTitle searches the store and fetches details for the closest names.
func (c *Client) SearchByTitle(ctx context.Context, title string, limit int) ([]matching.Metadata, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("query must not be empty")
	}
	if limit <= 0 {
		limit = 1
	}
	var payload searchResponse
	found, err := c.getJSON(ctx, "/api/storesearch", url.Values{"term": {title}}, &payload)
	if err != nil {
		return nil, services.Wrap(services.ErrProviderQueryFailed, "steam", "search", title, err)
	}
	if !found || len(payload.Items) == 0 {
		return nil, nil
	}

	items := slices.Clone(payload.Items)
	slices.SortStableFunc(items, func(a, b searchItem) int {
		return textutil.TitleRatio(title, b.Name) - textutil.TitleRatio(title, a.Name)
	})
	if len(items) > limit {
		items = items[:limit]
	}

	details := make([]*matching.Metadata, len(items))
	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			meta, err := c.appDetails(ctx, item.ID)
			if err != nil {
				c.logger.Warn("steam details failed",
					logging.Int64("app_id", item.ID),
					logging.Error(err),
					logging.String(logging.FieldEventType, "steam_details_failed"),
				)
				return nil
			}
			details[i] = meta
			return nil
		})
	}
	_ = g.Wait()

	out := make([]matching.Metadata, 0, len(details))
	for _, meta := range details {
		if meta != nil {
			out = append(out, *meta)
		}
	}
	return out, nil
}

// FetchByID returns details for a Steam app id.
func (c *Client) FetchByID(ctx context.Context, externalID string) (*matching.Metadata, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(externalID), 10, 64)
	if err != nil {
		return nil, nil
	}
	meta, err := c.appDetails(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrProviderQueryFailed, "steam", "fetch", externalID, err)
	}
	return meta, nil
}

func (c *Client) appDetails(ctx context.Context, id int64) (*matching.Metadata, error) {
	key := strconv.FormatInt(id, 10)
	var payload map[string]detailsWrapper
	found, err := c.getJSON(ctx, "/api/appdetails", url.Values{"appids": {key}}, &payload)
	if err != nil || !found {
		return nil, err
	}
	wrapper, ok := payload[key]
	if !ok || !wrapper.Success || wrapper.Data == nil || wrapper.Data.Type != "game" {
		return nil, nil
	}
	return wrapper.Data.toMetadata(key), nil
}

// getJSON reports found=false for 403 responses, which Steam uses for rate limiting.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) (bool, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-c.slots }()

	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return false, fmt.Errorf("parse steam url: %w", err)
	}
	if c.country != "" {
		params.Set("cc", c.country)
	}
	if c.language != "" {
		params.Set("l", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return false, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		logging.WarnWithContext(c.logger, "steam rate limit hit", "steam_rate_limited",
			logging.String("endpoint", path),
			logging.String(logging.FieldErrorHint, "lower providers.steam.max_concurrent"),
			logging.String(logging.FieldImpact, "result treated as empty"),
		)
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, services.Wrap(services.ErrTransient, "steam", path, fmt.Sprintf("status %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode steam response: %w", err)
	}
	return true, nil
}
