// Package governor serializes pipeline stages across tasks and bounds
// in-stage fan-out.
//
// Three stage locks give mutual exclusion at stage granularity: browser
// activity (web discovery + fetch), synthesize, embed. A failed try-acquire
// is a retriable condition, not an error state; the orchestrator retries
// the whole stage entry. Two weighted semaphores cap concurrent browser
// pages and LLM calls inside a stage.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrLockBusy is returned when a stage lock is already held.
var ErrLockBusy = errors.New("stage lock busy")

// StageLock is a boolean mutex with non-blocking acquisition.
type StageLock struct {
	name string
	mu   sync.Mutex
	held bool
}

// NewStageLock creates a named stage lock.
func NewStageLock(name string) *StageLock {
	return &StageLock{name: name}
}

// TryAcquire takes the lock if free and reports whether it succeeded.
func (l *StageLock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	return true
}

// Release frees the lock. Releasing a free lock is a no-op.
func (l *StageLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

// Held reports whether the lock is currently taken.
func (l *StageLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Name returns the lock's name for error and log messages.
func (l *StageLock) Name() string { return l.name }

// Acquire wraps TryAcquire in an error for retry-helper consumption.
func (l *StageLock) Acquire() error {
	if !l.TryAcquire() {
		return fmt.Errorf("%w: %s", ErrLockBusy, l.name)
	}
	return nil
}

// Governor owns the stage locks and the in-stage concurrency limiters.
type Governor struct {
	BrowserActivity *StageLock
	Synthesize      *StageLock
	Embed           *StageLock

	browserPages *semaphore.Weighted
	llmCalls     *semaphore.Weighted

	browserPoolSize int
	llmConcurrency  int
	qdrantBatchSize int
}

// New creates a governor. Callers pass already-clamped tunables (see
// config.LoadFromEnv); values below one are coerced defensively anyway.
func New(browserPoolSize, llmConcurrency, qdrantBatchSize int) *Governor {
	if browserPoolSize < 1 {
		browserPoolSize = 1
	}
	if llmConcurrency < 1 {
		llmConcurrency = 1
	}
	if qdrantBatchSize < 1 {
		qdrantBatchSize = 1
	}
	return &Governor{
		BrowserActivity: NewStageLock("browser-activity"),
		Synthesize:      NewStageLock("synthesize"),
		Embed:           NewStageLock("embed"),
		browserPages:    semaphore.NewWeighted(int64(browserPoolSize)),
		llmCalls:        semaphore.NewWeighted(int64(llmConcurrency)),
		browserPoolSize: browserPoolSize,
		llmConcurrency:  llmConcurrency,
		qdrantBatchSize: qdrantBatchSize,
	}
}

// AcquireBrowserPage blocks until a browser page slot is free or ctx ends.
func (g *Governor) AcquireBrowserPage(ctx context.Context) error {
	return g.browserPages.Acquire(ctx, 1)
}

// ReleaseBrowserPage frees a browser page slot.
func (g *Governor) ReleaseBrowserPage() {
	g.browserPages.Release(1)
}

// AcquireLLMSlot blocks until an LLM call slot is free or ctx ends.
func (g *Governor) AcquireLLMSlot(ctx context.Context) error {
	return g.llmCalls.Acquire(ctx, 1)
}

// ReleaseLLMSlot frees an LLM call slot.
func (g *Governor) ReleaseLLMSlot() {
	g.llmCalls.Release(1)
}

// BrowserPoolSize returns the configured page limit.
func (g *Governor) BrowserPoolSize() int { return g.browserPoolSize }

// LLMConcurrency returns the configured LLM call limit.
func (g *Governor) LLMConcurrency() int { return g.llmConcurrency }

// QdrantBatchSize returns the upsert batch size for the embed stage.
func (g *Governor) QdrantBatchSize() int { return g.qdrantBatchSize }
