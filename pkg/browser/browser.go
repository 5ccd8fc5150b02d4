// Package browser abstracts page loading for the discovery crawler and the
// fetch engine.
//
// A Page is opened through an Opener, which charges the governor's browser
// page limiter for the lifetime of the page. The production implementation
// fetches over plain HTTP and parses the document with x/net/html; a
// headless-browser implementation can satisfy the same interface.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/docpipe/docpipe/pkg/governor"
	"github.com/docpipe/docpipe/pkg/version"
)

// maxPageSize caps downloaded documents at 20MB.
const maxPageSize = 20 * 1024 * 1024

// Page is one loaded document. Navigate must be called before the readers.
type Page interface {
	// Navigate loads the URL. The context bounds the whole load.
	Navigate(ctx context.Context, rawURL string) error

	// Content returns the raw HTML of the last navigation.
	Content() string

	// Text returns the document's visible text with runs of whitespace
	// collapsed to single spaces.
	Text() string

	// Links returns the absolute, fragment-stripped anchor targets.
	Links() []string

	// Close releases the page's resources.
	Close() error
}

// Opener hands out pages under the browser page limiter.
type Opener interface {
	// WithPage opens a page, calls fn, and always closes the page. The
	// limiter slot is held until fn returns.
	WithPage(ctx context.Context, fn func(Page) error) error
}

// Pool is the production Opener: a shared HTTP client bounded by the
// governor's page limiter.
type Pool struct {
	gov    *governor.Governor
	client *http.Client
	logger *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) PoolOption {
	return func(p *Pool) {
		p.client = hc
	}
}

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger.With("component", "browser")
	}
}

// NewPool creates a page pool. Per-navigation deadlines come from the
// caller's context, so the shared client carries no timeout of its own.
func NewPool(gov *governor.Governor, opts ...PoolOption) *Pool {
	p := &Pool{
		gov:    gov,
		client: &http.Client{},
		logger: slog.Default().With("component", "browser"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithPage implements Opener.
func (p *Pool) WithPage(ctx context.Context, fn func(Page) error) error {
	if err := p.gov.AcquireBrowserPage(ctx); err != nil {
		return err
	}
	defer p.gov.ReleaseBrowserPage()

	page := &httpPage{client: p.client}
	defer func() { _ = page.Close() }()
	return fn(page)
}

type httpPage struct {
	client *http.Client
	base   *url.URL
	doc    string
}

func (p *httpPage) Navigate(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building page request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("navigating to %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return fmt.Errorf("reading %s: %w", rawURL, err)
	}

	// The final URL after redirects is the base for relative links.
	p.base = resp.Request.URL
	p.doc = string(body)
	return nil
}

func (p *httpPage) Content() string { return p.doc }

func (p *httpPage) Text() string { return ExtractText(p.doc) }

func (p *httpPage) Links() []string { return ExtractLinks(p.doc, p.base) }

func (p *httpPage) Close() error {
	p.doc = ""
	return nil
}

// skippedElements never contribute visible text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
	"iframe":   true,
}

// ExtractText returns the document's visible text, whitespace-collapsed and
// trimmed. A document that fails to parse yields an empty string.
func ExtractText(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(strings.Fields(sb.String()), " ")
}

// ExtractLinks returns the absolute anchor targets of the document, resolved
// against base, with fragments stripped. Fragment-only, javascript: and
// mailto: links are dropped. Order follows document order; duplicates after
// fragment stripping are removed.
func ExtractLinks(doc string, base *url.URL) []string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil || base == nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if link, ok := normalizeHref(base, attr.Val); ok && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

func normalizeHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	switch abs.Scheme {
	case "http", "https":
	default:
		return "", false
	}
	abs.Fragment = ""
	link := abs.String()
	// A trailing "#" survives fragment clearing when the href ended in one.
	link = strings.TrimSuffix(link, "#")
	return link, true
}

// NavigateTimeout is a convenience for stage code: it navigates the page
// with a bounded deadline layered over ctx.
func NavigateTimeout(ctx context.Context, page Page, rawURL string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return page.Navigate(navCtx, rawURL)
}
