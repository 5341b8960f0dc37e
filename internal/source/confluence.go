package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/document"
)

const defaultConfluenceLimit = 50

// ConfluenceConfig holds configuration for the Confluence REST adapter.
type ConfluenceConfig struct {
	// BaseURL is the Confluence instance URL, e.g.
	// "https://org.atlassian.net/wiki".
	BaseURL string

	// Email and APIToken authenticate via basic auth.
	Email    string
	APIToken string

	// SpaceKey is the default space for ingestion.
	SpaceKey string
}

// Validate validates the configuration.
func (c ConfluenceConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: confluence base URL required", ErrInvalidConfig)
	}
	return nil
}

// ConfluenceClient talks to the Confluence content REST API.
type ConfluenceClient struct {
	config ConfluenceConfig
	client *http.Client
	logger *zap.Logger
}

// NewConfluenceClient creates a Confluence adapter.
func NewConfluenceClient(config ConfluenceConfig, logger *zap.Logger) (*ConfluenceClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfluenceClient{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

// confluencePage is the wire shape of one page with the expansions the
// adapter requests.
type confluencePage struct {
	ID    string  `json:"id"`
	Title *string `json:"title"`
	Body  *struct {
		Storage *struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version *struct {
		Number int64   `json:"number"`
		When   *string `json:"when"`
	} `json:"version"`
	Space *struct {
		Key  string  `json:"key"`
		Name *string `json:"name"`
	} `json:"space"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type confluenceListResponse struct {
	Results []confluencePage `json:"results"`
	Size    int              `json:"size"`
}

func (c *ConfluenceClient) get(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Email != "" || c.config.APIToken != "" {
		req.SetBasicAuth(c.config.Email, c.config.APIToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// GetPage fetches a single page by id.
func (c *ConfluenceClient) GetPage(ctx context.Context, id string) (document.RawPage, error) {
	params := url.Values{}
	params.Set("expand", "body.storage,version,space")

	body, status, err := c.get(ctx, "/rest/api/content/"+url.PathEscape(id), params)
	if err != nil {
		return document.RawPage{}, err
	}
	if status == http.StatusNotFound {
		return document.RawPage{}, fmt.Errorf("%w: page %s", ErrNotFound, id)
	}
	if status != http.StatusOK {
		return document.RawPage{}, fmt.Errorf("%w: get page status %d: %s", ErrRequestFailed, status, string(body))
	}

	var page confluencePage
	if err := json.Unmarshal(body, &page); err != nil {
		return document.RawPage{}, fmt.Errorf("decoding page: %w", err)
	}
	return c.toRaw(page), nil
}

// SearchPages runs a CQL text search sorted by last modified.
func (c *ConfluenceClient) SearchPages(ctx context.Context, query string, limit int) ([]document.RawPage, error) {
	if limit <= 0 {
		limit = defaultConfluenceLimit
	}

	params := url.Values{}
	params.Set("cql", fmt.Sprintf(`type = page AND text ~ %q ORDER BY lastmodified DESC`, query))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("expand", "body.storage,version,space")

	body, status, err := c.get(ctx, "/rest/api/content/search", params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: search status %d: %s", ErrRequestFailed, status, string(body))
	}

	var parsed confluenceListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	records := make([]document.RawPage, len(parsed.Results))
	for i, page := range parsed.Results {
		records[i] = c.toRaw(page)
	}

	c.logger.Debug("searched confluence pages",
		zap.String("query", query),
		zap.Int("returned", len(records)),
	)
	return records, nil
}

// PagesForEmbedding lists the space's pages for ingestion.
func (c *ConfluenceClient) PagesForEmbedding(ctx context.Context, spaceKey string) ([]document.RawPage, error) {
	if spaceKey == "" {
		spaceKey = c.config.SpaceKey
	}
	if spaceKey == "" {
		return nil, fmt.Errorf("%w: space key required", ErrInvalidConfig)
	}

	params := url.Values{}
	params.Set("spaceKey", spaceKey)
	params.Set("type", "page")
	params.Set("limit", strconv.Itoa(defaultConfluenceLimit))
	params.Set("expand", "body.storage,version,space")

	body, status, err := c.get(ctx, "/rest/api/content", params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: list pages status %d: %s", ErrRequestFailed, status, string(body))
	}

	var parsed confluenceListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding list response: %w", err)
	}

	records := make([]document.RawPage, len(parsed.Results))
	for i, page := range parsed.Results {
		records[i] = c.toRaw(page)
	}

	c.logger.Debug("listed confluence pages",
		zap.String("space", spaceKey),
		zap.Int("returned", len(records)),
	)
	return records, nil
}

func (c *ConfluenceClient) toRaw(page confluencePage) document.RawPage {
	raw := document.RawPage{
		ID:    page.ID,
		Title: page.Title,
	}
	if page.Body != nil && page.Body.Storage != nil {
		cleaned := stripHTML(page.Body.Storage.Value)
		raw.Body = &cleaned
	}
	if page.Version != nil {
		raw.Version = &page.Version.Number
		raw.Updated = page.Version.When
	}
	if page.Space != nil {
		raw.SpaceKey = &page.Space.Key
		raw.SpaceName = page.Space.Name
	}
	if page.Links.WebUI != "" {
		raw.URL = c.config.BaseURL + page.Links.WebUI
	}
	return raw
}
