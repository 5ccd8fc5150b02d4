package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
)

const (
	defaultTimeout  = 60 * time.Second
	maxResponseSize = 32 * 1024 * 1024
)

// Client talks to one Qdrant instance over its REST API.
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
		c.logger = logger.With("component", "vector")
	}
}

// NewClient creates a Qdrant client from the settings snapshot.
func NewClient(cfg *config.Settings, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.VectorStoreURL, "/"),
		apiKey:     cfg.VectorStoreAPIKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default().With("component", "vector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request and decodes the JSON body into out (when non-nil).
// notFoundOK suppresses the 404 error so existence checks can distinguish
// "absent" from real failures.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any, notFoundOK bool) (int, error) {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return 0, llm.NewFatalError(fmt.Errorf("marshaling %s %s body: %w", method, path, err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, llm.NewFatalError(fmt.Errorf("building %s %s: %w", method, path, err))
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, llm.NewTransientError(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, llm.NewTransientError(fmt.Errorf("reading %s %s response: %w", method, path, err))
	}

	if resp.StatusCode == http.StatusNotFound && notFoundOK {
		return resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, classifyStatus(resp.StatusCode, path, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, llm.NewFatalError(fmt.Errorf("parsing %s %s response: %w", method, path, err))
		}
	}
	return resp.StatusCode, nil
}

func classifyStatus(status int, path string, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	err := fmt.Errorf("vector store HTTP %d on %s: %s", status, path, snippet)

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return llm.NewTransientError(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.NewFatalError(fmt.Errorf("vector store authentication failed: %w", err))
	default:
		return llm.NewFatalError(err)
	}
}

// ListCollections returns the names of all collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/collections", nil, &resp, false); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, col := range resp.Result.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

// GetCollection returns the collection's info, or exists=false on 404.
func (c *Client) GetCollection(ctx context.Context, name string) (CollectionInfo, bool, error) {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, &resp, true)
	if err != nil {
		return CollectionInfo{}, false, err
	}
	if status == http.StatusNotFound {
		return CollectionInfo{}, false, nil
	}
	return CollectionInfo{
		Name:        name,
		Dimension:   resp.Result.Config.Params.Vectors.Size,
		PointsCount: resp.Result.PointsCount,
	}, true, nil
}

// CreateCollection creates a cosine-distance collection of the given dimension.
func (c *Client) CreateCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err := c.do(ctx, http.MethodPut, "/collections/"+name, body, nil, false)
	return err
}

// DeleteCollection removes a collection. Deleting a missing collection is
// not an error.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil, true)
	return err
}

// EnsureCollection creates the collection when absent and recreates it when
// the stored dimension disagrees with the embedding provider's.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension int) error {
	info, exists, err := c.GetCollection(ctx, name)
	if err != nil {
		return err
	}
	if exists && info.Dimension == dimension {
		return nil
	}
	if exists {
		c.logger.Warn("Collection dimension mismatch, recreating",
			"collection", name, "have", info.Dimension, "want", dimension)
		if err := c.DeleteCollection(ctx, name); err != nil {
			return err
		}
	}
	c.logger.Info("Creating collection", "collection", name, "dimension", dimension)
	return c.CreateCollection(ctx, name, dimension)
}

// Upsert writes one batch of points. With wait set, the call returns only
// after the write is durable.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point, wait bool) error {
	if len(points) == 0 {
		return nil
	}
	path := "/collections/" + collection + "/points"
	if wait {
		path += "?wait=true"
	}
	body := map[string]any{"points": points}
	_, err := c.do(ctx, http.MethodPut, path, body, nil, false)
	return err
}

type qdrantFilter struct {
	Must []fieldMatch `json:"must,omitempty"`
}

type fieldMatch struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func matchField(key, value string) fieldMatch {
	var m fieldMatch
	m.Key = key
	m.Match.Value = value
	return m
}

// Search runs a scored vector query. An empty category skips the payload
// filter; a zero threshold disables score cutoff.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, category string, limit int, threshold float32) ([]SearchHit, error) {
	if limit < 1 {
		limit = 10
	}
	body := map[string]any{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold > 0 {
		body["score_threshold"] = threshold
	}
	if category != "" {
		body["filter"] = qdrantFilter{Must: []fieldMatch{matchField("category", category)}}
	}

	var resp struct {
		Result []SearchHit `json:"result"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp, false); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Scroll pages through points, optionally filtered by source. offset carries
// the next_page_offset of the previous call; nil starts from the beginning.
func (c *Client) Scroll(ctx context.Context, collection, source string, limit int, offset any) ([]ScrolledPoint, any, error) {
	if limit < 1 {
		limit = 100
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	if source != "" {
		body["filter"] = qdrantFilter{Must: []fieldMatch{matchField("source", source)}}
	}
	if offset != nil {
		body["offset"] = offset
	}

	var resp struct {
		Result struct {
			Points         []ScrolledPoint `json:"points"`
			NextPageOffset any             `json:"next_page_offset"`
		} `json:"result"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body, &resp, false); err != nil {
		return nil, nil, err
	}
	return resp.Result.Points, resp.Result.NextPageOffset, nil
}

// DeleteBySource removes every point whose payload source matches.
func (c *Client) DeleteBySource(ctx context.Context, collection, source string) error {
	body := map[string]any{
		"filter": qdrantFilter{Must: []fieldMatch{matchField("source", source)}},
	}
	_, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil, false)
	return err
}
