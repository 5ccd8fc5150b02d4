// Package discovery resolves a topic, URL, or filesystem path into the list
// of documentation sources the rest of the pipeline works through.
//
// Web inputs are expanded by a same-origin BFS crawl; local directories are
// enumerated recursively; bare topics are first resolved to a documentation
// landing page through web search.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/docpipe/docpipe/pkg/browser"
	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
	"github.com/docpipe/docpipe/pkg/metrics"
	"github.com/docpipe/docpipe/pkg/websearch"
)

// localPattern matches the file types the local enumeration accepts.
const localPattern = "**/*.{md,txt,docx}"

// StartPoint is a normalized pipeline input.
type StartPoint struct {
	Value   string
	IsLocal bool
}

// Options tunes one discovery run.
type Options struct {
	MaxDepth int
	MaxURLs  int

	// Progress receives human-readable updates carrying "X/Y" fractions.
	Progress func(string)

	// CancelCheck is consulted between crawl levels and inside page tasks.
	// A non-nil error aborts the run.
	CancelCheck func() error
}

// Engine resolves inputs and produces source lists.
type Engine struct {
	searcher websearch.Searcher
	browser  browser.Opener
	filters  func() *config.CrawlFilters
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine creates a discovery engine. filters returns the current crawl
// filter sets (it is re-read per run so hot reloads take effect).
func NewEngine(searcher websearch.Searcher, opener browser.Opener, filters func() *config.CrawlFilters, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		searcher: searcher,
		browser:  opener,
		filters:  filters,
		metrics:  m,
		logger:   logger.With("component", "discovery"),
	}
}

// Resolve normalizes topic_or_url: a parseable URL with a scheme is web, an
// existing filesystem path is local, anything else is treated as a topic and
// resolved through web search.
func (e *Engine) Resolve(ctx context.Context, topicOrURL string) (StartPoint, error) {
	if u, err := url.Parse(topicOrURL); err == nil && u.Scheme != "" && u.Host != "" {
		return StartPoint{Value: topicOrURL}, nil
	}

	if abs, err := filepath.Abs(topicOrURL); err == nil {
		if _, statErr := os.Stat(abs); statErr == nil {
			return StartPoint{Value: abs, IsLocal: true}, nil
		}
	}

	return e.searchTopic(ctx, topicOrURL)
}

// searchTopic asks the web search adapter for a documentation landing page.
// Results containing "/docs" win, shortest first; with none, the shortest
// URL overall wins.
func (e *Engine) searchTopic(ctx context.Context, topic string) (StartPoint, error) {
	query := fmt.Sprintf("%s documentation main page", topic)
	results, err := e.searcher.Search(ctx, query, 3)
	if err != nil {
		return StartPoint{}, fmt.Errorf("searching for %q: %w", topic, err)
	}
	if len(results) == 0 {
		return StartPoint{}, llm.NewFatalError(fmt.Errorf("no search results for topic %q", topic))
	}

	best := pickBestResult(results)
	e.logger.Info("Resolved topic via web search", "topic", topic, "url", best)
	return StartPoint{Value: best}, nil
}

func pickBestResult(results []websearch.Result) string {
	shorter := func(candidate, current string) bool {
		return current == "" || len(candidate) < len(current)
	}

	var bestDocs, bestAny string
	for _, r := range results {
		if u, err := url.Parse(r.URL); err == nil && containsDocs(u.Path) && shorter(r.URL, bestDocs) {
			bestDocs = r.URL
		}
		if shorter(r.URL, bestAny) {
			bestAny = r.URL
		}
	}
	if bestDocs != "" {
		return bestDocs
	}
	return bestAny
}

func containsDocs(path string) bool {
	return strings.Contains(strings.ToLower(path), "/docs")
}

// Discover expands a start point into the sorted, deduplicated source list.
func (e *Engine) Discover(ctx context.Context, start StartPoint, opts Options) ([]string, error) {
	if opts.MaxURLs < 1 {
		opts.MaxURLs = 1
	}

	if start.IsLocal {
		return e.discoverLocal(start.Value, opts)
	}
	return e.crawl(ctx, start.Value, opts)
}

// discoverLocal enumerates a directory (or yields a single file) without
// touching the network.
func (e *Engine) discoverLocal(path string, opts Options) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspecting local path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(path), localPattern)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", path, err)
	}
	if len(matches) == 0 {
		return nil, llm.NewFatalError(errors.New("directory contains no .md, .txt, or .docx files"))
	}

	sort.Strings(matches)
	if len(matches) > opts.MaxURLs {
		matches = matches[:opts.MaxURLs]
	}

	sources := make([]string, len(matches))
	for i, m := range matches {
		sources[i] = filepath.Join(path, filepath.FromSlash(m))
	}
	e.logger.Info("Enumerated local directory", "path", path, "sources", len(sources))
	return sources, nil
}
