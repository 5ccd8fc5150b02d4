// Package synthesize condenses the fetched files into one aggregated
// Markdown document through per-file LLM summarization.
package synthesize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/docpipe/docpipe/pkg/governor"
	"github.com/docpipe/docpipe/pkg/llm"
	"github.com/docpipe/docpipe/pkg/metrics"
)

// Completer is the single capability this engine needs from the LLM layer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options tunes one synthesize run.
type Options struct {
	// Topic heads the aggregated document; it is the task's original input.
	Topic string

	// MaxLLMCalls truncates the file list. Zero or negative is rejected.
	MaxLLMCalls int

	// Progress receives "Synthesize Stage: Summarized i/N files" updates.
	Progress func(string)

	// CancelCheck is consulted before each file. A non-nil error aborts
	// the run.
	CancelCheck func() error
}

// Engine summarizes fetched files under the LLM concurrency limit.
type Engine struct {
	llm      Completer
	provider string
	model    string
	gov      *governor.Governor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine creates a synthesize engine. provider and model name the
// endpoint in the aggregated document's header.
func NewEngine(completer Completer, provider, model string, gov *governor.Governor, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		llm:      completer,
		provider: provider,
		model:    model,
		gov:      gov,
		metrics:  m,
		logger:   logger.With("component", "synthesize"),
	}
}

type fileSummary struct {
	filename string
	summary  string
	err      error
}

// Run summarizes every Markdown file in fetchDir and writes the aggregated
// document to outPath. Per-file failures are tolerated; the run fails when
// every attempted file failed.
func (e *Engine) Run(ctx context.Context, fetchDir, outPath string, opts Options) error {
	if opts.MaxLLMCalls <= 0 {
		return llm.NewFatalError(fmt.Errorf("max_llm_calls must be positive, got %d", opts.MaxLLMCalls))
	}

	files, err := listMarkdownFiles(fetchDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return llm.NewFatalError(fmt.Errorf("no Markdown files in %s", fetchDir))
	}
	if len(files) > opts.MaxLLMCalls {
		e.logger.Warn("Truncating file list to LLM call budget",
			"files", len(files), "max_llm_calls", opts.MaxLLMCalls)
		files = files[:opts.MaxLLMCalls]
	}

	results := make([]fileSummary, len(files))
	var wg sync.WaitGroup
	var done atomic.Int64

	for i, filename := range files {
		if opts.CancelCheck != nil {
			if err := opts.CancelCheck(); err != nil {
				wg.Wait()
				return err
			}
		}

		wg.Add(1)
		go func(i int, filename string) {
			defer wg.Done()
			results[i] = e.summarizeFile(ctx, fetchDir, filename)

			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(fmt.Sprintf("Synthesize Stage: Summarized %d/%d files", n, len(files)))
			}
		}(i, filename)
	}
	wg.Wait()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# LLMS Full Content for %s (Provider: %s, Model: %s)\n",
		opts.Topic, e.provider, e.model)

	succeeded := 0
	var firstErr error
	for _, r := range results {
		if r.err != nil {
			e.logger.Warn("File summarization failed", "file", r.filename, "error", r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		fmt.Fprintf(&sb, "\n--- Source File: %s ---\n\n%s\n", r.filename, strings.TrimSpace(r.summary))
		succeeded++
	}

	if succeeded == 0 {
		return fmt.Errorf("all %d files failed to summarize: %w", len(files), firstErr)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("creating synthesize output dir: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	e.logger.Info("Synthesize complete", "files", len(files), "succeeded", succeeded, "output", outPath)
	return nil
}

// summarizeFile runs one file's summarization under the LLM call limiter.
func (e *Engine) summarizeFile(ctx context.Context, fetchDir, filename string) fileSummary {
	result := fileSummary{filename: filename}

	content, err := os.ReadFile(filepath.Join(fetchDir, filename))
	if err != nil {
		result.err = err
		return result
	}

	if err := e.gov.AcquireLLMSlot(ctx); err != nil {
		result.err = err
		return result
	}
	defer e.gov.ReleaseLLMSlot()

	summary, err := e.llm.Complete(ctx, buildPrompt(filename, string(content)))
	if err != nil {
		e.metrics.LLMCall(e.provider, "error")
		result.err = err
		return result
	}
	e.metrics.LLMCall(e.provider, "success")
	result.summary = summary
	return result
}

// listMarkdownFiles returns the .md files of one directory, sorted by name
// so the aggregated document's section order is deterministic.
func listMarkdownFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, llm.NewFatalError(fmt.Errorf("fetch output dir does not exist: %s", dir))
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".md") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}
