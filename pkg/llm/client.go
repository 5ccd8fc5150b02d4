// Package llm provides a provider-agnostic completion client. Concrete
// providers live in the providers subpackage and register themselves into
// the package registry; callers resolve an Endpoint from settings and hand
// it to Client.Complete.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 180 * time.Second

	// maxResponseSize caps response bodies at 10MB so a misbehaving
	// upstream cannot exhaust memory.
	maxResponseSize = 10 * 1024 * 1024
)

// Client executes completion calls against registered providers.
type Client struct {
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

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With("component", "llm")
	}
}

// NewClient creates a completion client with a 180s request timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default().With("component", "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the prompt to the endpoint's provider and returns the
// completion text. Failures are classified as transient or fatal so the
// caller's retry policy can decide; context cancellation is returned
// unwrapped.
func (c *Client) Complete(ctx context.Context, ep Endpoint, prompt string) (string, error) {
	provider, err := GetProvider(ep.Provider)
	if err != nil {
		return "", NewFatalError(err)
	}

	body, err := provider.BuildRequestBody(ep, prompt)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("building request body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BuildURL(ep), bytes.NewReader(body))
	if err != nil {
		return "", NewFatalError(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(req, ep)

	c.logger.Debug("Sending completion request",
		"provider", provider.Name(),
		"model", ep.Model,
		"prompt_chars", len(prompt))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewTransientError(fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewTransientError(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp.StatusCode, respBody)
	}

	text, err := provider.ParseResponse(respBody)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("parsing %s response: %w", provider.Name(), err))
	}
	if strings.TrimSpace(text) == "" {
		return "", NewTransientError(errors.New("provider returned an empty completion"))
	}

	c.logger.Debug("Completion received",
		"provider", provider.Name(),
		"model", ep.Model,
		"response_chars", len(text),
		"duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Bound pairs a client with one resolved endpoint, satisfying the
// single-argument completer interfaces the pipeline engines accept.
type Bound struct {
	client *Client
	ep     Endpoint
}

// Bind fixes an endpoint onto the client.
func (c *Client) Bind(ep Endpoint) *Bound {
	return &Bound{client: c, ep: ep}
}

// Complete sends the prompt to the bound endpoint.
func (b *Bound) Complete(ctx context.Context, prompt string) (string, error) {
	return b.client.Complete(ctx, b.ep, prompt)
}

// Endpoint returns the bound endpoint.
func (b *Bound) Endpoint() Endpoint { return b.ep }

// classifyHTTPError maps upstream HTTP status codes onto the
// transient/fatal split. Rate limits and server-side failures are worth
// retrying; auth and malformed-request responses are not.
func classifyHTTPError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	err := fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(snippet))

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return NewTransientError(err)
	case status >= 500:
		return NewTransientError(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewFatalError(fmt.Errorf("authentication failed: %w", err))
	default:
		return NewFatalError(err)
	}
}
