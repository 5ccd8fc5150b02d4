// Package websearch resolves topics to candidate documentation URLs through
// a Brave-compatible web search API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
	"github.com/docpipe/docpipe/pkg/version"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 4 * 1024 * 1024
)

// Result is one search hit.
type Result struct {
	URL   string
	Title string
}

// Searcher is the capability the discovery engine consumes.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Client calls the web search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With("component", "websearch")
	}
}

// NewClient creates a search client from the settings snapshot.
func NewClient(cfg *config.Settings, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.WebSearchBaseURL, "/"),
		apiKey:     cfg.WebSearchAPIKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default().With("component", "websearch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Web struct {
		Results []struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs the query and returns up to maxResults hits. A missing API key
// is a fatal configuration error, not a transient one.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, llm.NewFatalError(fmt.Errorf("WEB_SEARCH_API_KEY is not set"))
	}
	if maxResults < 1 {
		maxResults = 1
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/res/v1/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("building search request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.Full())
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, llm.NewTransientError(fmt.Errorf("search request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("reading search response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("parsing search response: %w", err))
	}

	results := make([]Result, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{URL: r.URL, Title: r.Title})
		if len(results) == maxResults {
			break
		}
	}

	c.logger.Debug("Search complete", "query", query, "results", len(results))
	return results, nil
}

func classifyStatus(status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	err := fmt.Errorf("search API HTTP %d: %s", status, snippet)

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return llm.NewTransientError(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.NewFatalError(fmt.Errorf("search authentication failed: %w", err))
	default:
		return llm.NewFatalError(err)
	}
}
