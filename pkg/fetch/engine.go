// Package fetch downloads every discovered source and writes one plain-text
// Markdown file per source into the task's fetch output directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docpipe/docpipe/pkg/browser"
	"github.com/docpipe/docpipe/pkg/llm"
)

// progressEvery controls how often per-source progress is reported.
const progressEvery = 5

// Options tunes one fetch run.
type Options struct {
	MaxURLs int

	// Progress receives "Fetch Stage: Processing i/N: <source>" updates.
	Progress func(string)

	// CancelCheck is consulted before each source. A non-nil error aborts
	// the run.
	CancelCheck func() error
}

// Engine extracts text from sources.
type Engine struct {
	browser browser.Opener
	logger  *slog.Logger
}

// NewEngine creates a fetch engine.
func NewEngine(opener browser.Opener, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		browser: opener,
		logger:  logger.With("component", "fetch"),
	}
}

// Run fetches every source into outDir. Per-source failures (including
// empty extractions) are logged and counted; the run fails only when not a
// single source produced text. Returns the number of files written.
func (e *Engine) Run(ctx context.Context, sources []string, outDir string, opts Options) (int, error) {
	if opts.MaxURLs > 0 && len(sources) > opts.MaxURLs {
		sources = sources[:opts.MaxURLs]
	}
	if len(sources) == 0 {
		return 0, llm.NewFatalError(errors.New("no sources to fetch"))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating fetch output dir: %w", err)
	}

	var (
		mu       sync.Mutex
		written  int
		firstErr error
	)
	var wg sync.WaitGroup

	for i, source := range sources {
		if opts.CancelCheck != nil {
			if err := opts.CancelCheck(); err != nil {
				wg.Wait()
				return written, err
			}
		}
		if opts.Progress != nil && (i%progressEvery == 0 || i == len(sources)-1) {
			opts.Progress(fmt.Sprintf("Fetch Stage: Processing %d/%d: %s", i+1, len(sources), source))
		}

		// Web sources fan out under the page limiter; local reads are
		// cheap enough to do inline.
		if isWebSource(source) {
			wg.Add(1)
			go func(source string) {
				defer wg.Done()
				text, err := e.extractWeb(ctx, source)
				mu.Lock()
				defer mu.Unlock()
				e.record(source, outDir, text, err, &written, &firstErr)
			}(source)
			continue
		}

		text, err := extractLocal(source)
		mu.Lock()
		e.record(source, outDir, text, err, &written, &firstErr)
		mu.Unlock()
	}
	wg.Wait()

	if written == 0 {
		if firstErr != nil {
			return 0, fmt.Errorf("all %d sources failed: %w", len(sources), firstErr)
		}
		return 0, errors.New("all sources produced empty content")
	}
	e.logger.Info("Fetch complete", "sources", len(sources), "written", written)
	return written, nil
}

// record writes one extraction result. Callers hold the mutex.
func (e *Engine) record(source, outDir, text string, err error, written *int, firstErr *error) {
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("extracted no content")
	}
	if err != nil {
		e.logger.Warn("Skipping source", "source", source, "error", err)
		if *firstErr == nil {
			*firstErr = err
		}
		return
	}

	outPath := filepath.Join(outDir, OutputFilename(source))
	if writeErr := os.WriteFile(outPath, []byte(text), 0o644); writeErr != nil {
		e.logger.Warn("Could not write fetched file", "source", source, "error", writeErr)
		if *firstErr == nil {
			*firstErr = writeErr
		}
		return
	}
	*written++
}

// OutputFilename is the on-disk name a source's text is written under. The
// whole source identifier is sanitized, never just the base name, so local
// files that share a base name (guide/intro.md vs api/intro.md) stay
// distinct. An existing .md extension is kept rather than doubled.
func OutputFilename(source string) string {
	if !isWebSource(source) && strings.EqualFold(filepath.Ext(source), ".md") {
		return SanitizeFilename(source[:len(source)-3]) + ".md"
	}
	return SanitizeFilename(source) + ".md"
}

func isWebSource(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
