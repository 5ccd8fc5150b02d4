package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.sajari.com/docconv"
	readability "github.com/go-shiori/go-readability"
	"github.com/yuin/goldmark"

	"github.com/docpipe/docpipe/pkg/browser"
)

// fetchNavigateTimeout bounds one page load during the fetch stage. Fetch
// pages get twice the crawl budget because the full document matters here,
// not just the anchors.
const fetchNavigateTimeout = 60 * time.Second

// extractLocal reads a local file and returns its plain text.
func extractLocal(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return extractMarkdown(path)
	case ".docx":
		res, err := docconv.ConvertPath(path)
		if err != nil {
			return "", fmt.Errorf("converting %s: %w", path, err)
		}
		return collapseWhitespace(res.Body), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

// extractMarkdown renders the Markdown to HTML and strips it back to text,
// which drops link targets and formatting syntax but keeps the prose.
func extractMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := goldmark.Convert(data, &buf); err != nil {
		return "", fmt.Errorf("rendering %s: %w", path, err)
	}
	return browser.ExtractText(buf.String()), nil
}

// extractWeb loads the URL under the page limiter and returns the page's
// readable text. Readability-extracted article content is preferred; pages
// it cannot parse fall back to whole-body text.
func (e *Engine) extractWeb(ctx context.Context, source string) (string, error) {
	var text string
	err := e.browser.WithPage(ctx, func(page browser.Page) error {
		if err := browser.NavigateTimeout(ctx, page, source, fetchNavigateTimeout); err != nil {
			return err
		}

		if pageURL, parseErr := url.Parse(source); parseErr == nil {
			article, readErr := readability.FromReader(strings.NewReader(page.Content()), pageURL)
			if readErr == nil && strings.TrimSpace(article.TextContent) != "" {
				text = collapseWhitespace(article.TextContent)
				return nil
			}
		}
		text = page.Text()
		return nil
	})
	return text, err
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
