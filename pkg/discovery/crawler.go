package discovery

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/docpipe/docpipe/pkg/browser"
	"github.com/docpipe/docpipe/pkg/config"
)

// crawlNavigateTimeout bounds one page load during the crawl.
const crawlNavigateTimeout = 30 * time.Second

// politenessRate caps page fetches per second across the whole crawl,
// independent of the page limiter's concurrency bound.
const politenessRate = rate.Limit(10)

type crawlItem struct {
	url   string
	depth int
}

// crawl runs the same-origin BFS from startURL. Individual page failures
// are logged and skipped; the crawl fails only when the start URL itself is
// unusable.
func (e *Engine) crawl(ctx context.Context, startURL string, opts Options) ([]string, error) {
	origin, err := url.Parse(startURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q", startURL)
	}

	filters := e.filters()
	limiter := rate.NewLimiter(politenessRate, 1)

	found := map[string]bool{startURL: true}
	visited := map[string]bool{startURL: true}
	current := []crawlItem{{url: startURL, depth: 0}}
	processed := 0

	for len(current) > 0 && len(found) < opts.MaxURLs {
		if opts.CancelCheck != nil {
			if err := opts.CancelCheck(); err != nil {
				return nil, err
			}
		}

		levelLinks := e.fetchLevel(ctx, current, limiter, opts)
		processed += len(current)

		var next []crawlItem
		for _, page := range levelLinks {
			for _, link := range page.links {
				if len(found) >= opts.MaxURLs {
					break
				}
				if visited[link] {
					continue
				}
				if !acceptLink(origin, link, page.depth, opts.MaxDepth, filters) {
					continue
				}
				visited[link] = true
				found[link] = true
				next = append(next, crawlItem{url: link, depth: page.depth + 1})
			}
		}

		if opts.Progress != nil {
			opts.Progress(fmt.Sprintf("Crawling: Processed ~%d pages, Found %d/%d",
				processed, len(found), opts.MaxURLs))
		}
		current = next
	}

	sources := make([]string, 0, len(found))
	for u := range found {
		sources = append(sources, u)
	}
	sort.Strings(sources)
	e.logger.Info("Crawl complete", "start", startURL, "pages", processed, "sources", len(sources))
	return sources, nil
}

type pageLinks struct {
	depth int
	links []string
}

// fetchLevel loads every URL of one BFS level. Concurrency is bounded by the
// browser page limiter inside the opener; the politeness limiter additionally
// spaces out request starts.
func (e *Engine) fetchLevel(ctx context.Context, level []crawlItem, limiter *rate.Limiter, opts Options) []pageLinks {
	results := make([]pageLinks, len(level))
	var wg sync.WaitGroup

	for i, item := range level {
		wg.Add(1)
		go func(i int, item crawlItem) {
			defer wg.Done()

			if opts.CancelCheck != nil && opts.CancelCheck() != nil {
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			err := e.browser.WithPage(ctx, func(page browser.Page) error {
				if err := browser.NavigateTimeout(ctx, page, item.url, crawlNavigateTimeout); err != nil {
					return err
				}
				results[i] = pageLinks{depth: item.depth, links: page.Links()}
				return nil
			})
			e.metrics.PageCrawled()
			if err != nil {
				e.logger.Warn("Skipping page", "url", item.url, "error", err)
			}
		}(i, item)
	}
	wg.Wait()
	return results
}

// acceptLink applies the enqueue filters: same origin, no ignored keywords
// or extensions, no non-English locale prefix, and either a doc keyword
// match or remaining depth budget.
func acceptLink(origin *url.URL, link string, parentDepth, maxDepth int, filters *config.CrawlFilters) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != origin.Scheme || !strings.EqualFold(u.Host, origin.Host) {
		return false
	}

	path := u.Path
	if filters.MatchesIgnoreKeyword(path) {
		return false
	}
	if filters.HasIgnoredExtension(path) {
		return false
	}
	if config.HasNonEnglishLocale(path) {
		return false
	}
	return filters.MatchesDocKeyword(path) || parentDepth < maxDepth
}
