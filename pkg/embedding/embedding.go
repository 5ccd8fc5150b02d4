// Package embedding turns text into vectors through the configured provider.
//
// Providers share one HTTP discipline (bounded bodies, transient/fatal
// status classification) and advertise their vector dimension up front so
// the vector store can size collections before the first upsert.
package embedding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
)

const (
	defaultTimeout  = 120 * time.Second
	maxResponseSize = 10 * 1024 * 1024
)

// Known model dimensions. Unlisted models fall back to their provider's
// default dimension.
const (
	DimensionOpenAISmall = 1536
	DimensionOpenAILarge = 3072
	DimensionNomic       = 768
	DimensionGoogle      = 768
)

// Default models per provider.
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultGoogleModel = "text-embedding-004"
)

// Embedder is the capability the embed stage and the answer tool consume.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the vector size this embedder produces.
	Dimension() int

	// Provider returns the configured provider selector.
	Provider() string

	// Model returns the resolved model name.
	Model() string
}

// Option configures a provider client.
type Option func(*httpEmbedder)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *httpEmbedder) {
		e.client = hc
	}
}

// WithBaseURL overrides the provider's base URL.
func WithBaseURL(baseURL string) Option {
	return func(e *httpEmbedder) {
		e.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// New selects an embedder from the settings snapshot. An unknown provider
// selector or a missing credential is rejected immediately.
func New(cfg *config.Settings, opts ...Option) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		return newOpenAI(cfg, opts...)
	case config.EmbeddingProviderOllama:
		return newOllama(cfg, opts...)
	case config.EmbeddingProviderGoogle:
		return newGoogle(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// httpEmbedder carries the pieces shared by every provider client.
type httpEmbedder struct {
	provider  string
	model     string
	dimension int
	baseURL   string
	apiKey    string
	client    *http.Client
}

func (e *httpEmbedder) Dimension() int   { return e.dimension }
func (e *httpEmbedder) Provider() string { return e.provider }
func (e *httpEmbedder) Model() string    { return e.model }

// post sends the request and returns the body of a 200 response, with
// failures classified for the retry policy.
func (e *httpEmbedder) post(ctx context.Context, url string, body []byte, setHeaders func(*http.Request)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("building embedding request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if setHeaders != nil {
		setHeaders(req)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, llm.NewTransientError(fmt.Errorf("embedding request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("reading embedding response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func classifyStatus(status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	err := fmt.Errorf("embedding API HTTP %d: %s", status, snippet)

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return llm.NewTransientError(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.NewFatalError(fmt.Errorf("embedding authentication failed: %w", err))
	default:
		return llm.NewFatalError(err)
	}
}
