package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/docpipe/docpipe/pkg/discovery"
	"github.com/docpipe/docpipe/pkg/embedding"
	"github.com/docpipe/docpipe/pkg/fetch"
	"github.com/docpipe/docpipe/pkg/governor"
	"github.com/docpipe/docpipe/pkg/metrics"
	"github.com/docpipe/docpipe/pkg/registry"
	"github.com/docpipe/docpipe/pkg/retry"
	"github.com/docpipe/docpipe/pkg/synthesize"
	"github.com/docpipe/docpipe/pkg/vector"
)

// pollInterval paces the dispatcher's queue checks; a small jitter avoids
// lockstep with the registry's persistence writes.
const (
	pollInterval       = 250 * time.Millisecond
	pollIntervalJitter = 100 * time.Millisecond
)

// VectorStore is the slice of the Qdrant client the embed stage consumes.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection string, points []vector.Point, wait bool) error
}

// Orchestrator owns the task queue, the dispatcher, and the per-task stage
// state machine. Exactly one task's pipeline executes at a time; in-stage
// fan-out is bounded by the governor.
type Orchestrator struct {
	store     *registry.Store
	gov       *governor.Governor
	discovery *discovery.Engine
	fetch     *fetch.Engine
	synth     *synthesize.Engine
	embedder  embedding.Embedder
	vectors   VectorStore
	metrics   *metrics.Metrics

	dataDir    string
	collection string
	logger     *slog.Logger

	mu           sync.Mutex
	queue        []queuedTask
	isProcessing bool
	cancels      map[string]context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type queuedTask struct {
	taskID string
	req    Request
}

// Config wires an Orchestrator.
type Config struct {
	Store      *registry.Store
	Governor   *governor.Governor
	Discovery  *discovery.Engine
	Fetch      *fetch.Engine
	Synthesize *synthesize.Engine
	Embedder   embedding.Embedder
	Vectors    VectorStore
	Metrics    *metrics.Metrics
	DataDir    string
	Collection string
	Logger     *slog.Logger
}

// New creates an orchestrator. Start must be called before submitted tasks
// make progress.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      cfg.Store,
		gov:        cfg.Governor,
		discovery:  cfg.Discovery,
		fetch:      cfg.Fetch,
		synth:      cfg.Synthesize,
		embedder:   cfg.Embedder,
		vectors:    cfg.Vectors,
		metrics:    cfg.Metrics,
		dataDir:    cfg.DataDir,
		collection: cfg.Collection,
		logger:     logger.With("component", "pipeline"),
		cancels:    make(map[string]context.CancelFunc),
		stopCh:     make(chan struct{}),
	}
}

// Submit validates the requests, registers one task per request, and
// enqueues them in order. An invalid request anywhere rejects the whole
// batch before any task is registered; an empty batch is invalid.
func (o *Orchestrator) Submit(requests []Request) ([]string, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: requests array is empty", ErrInvalidRequest)
	}
	for i := range requests {
		if err := requests[i].Validate(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	taskIDs := make([]string, len(requests))
	o.mu.Lock()
	for i, req := range requests {
		taskID := o.store.Register(TaskPrefix)
		o.queue = append(o.queue, queuedTask{taskID: taskID, req: req})
		taskIDs[i] = taskID
	}
	depth := len(o.queue)
	o.mu.Unlock()

	o.metrics.SetQueueDepth(depth)
	o.logger.Info("Tasks enqueued", "count", len(taskIDs), "queue_depth", depth)
	return taskIDs, nil
}

// Start launches the dispatcher goroutine.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.run(ctx)
}

// Stop signals the dispatcher and waits for the in-flight task to finish.
// Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

// QueueDepth returns the number of tasks waiting for dispatch.
func (o *Orchestrator) QueueDepth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	o.logger.Info("Dispatcher started")

	for {
		select {
		case <-o.stopCh:
			o.logger.Info("Dispatcher shutting down")
			return
		case <-ctx.Done():
			o.logger.Info("Context cancelled, dispatcher shutting down")
			return
		default:
			if !o.processNext(ctx) {
				o.sleep(jitteredPoll())
			}
		}
	}
}

func jitteredPoll() time.Duration {
	return pollInterval + time.Duration(rand.Int64N(int64(pollIntervalJitter)))
}

func (o *Orchestrator) sleep(d time.Duration) {
	select {
	case <-o.stopCh:
	case <-time.After(d):
	}
}

// processNext pops and runs the queue head. It reports whether any work was
// done so the dispatcher knows when to idle.
func (o *Orchestrator) processNext(ctx context.Context) bool {
	o.mu.Lock()
	if o.isProcessing || len(o.queue) == 0 {
		o.mu.Unlock()
		return false
	}
	task := o.queue[0]
	o.queue = o.queue[1:]
	depth := len(o.queue)

	// Cancelled while queued: skip without starting the pipeline.
	if o.store.IsCancelled(task.taskID) {
		o.mu.Unlock()
		o.metrics.SetQueueDepth(depth)
		o.logger.Info("Skipping cancelled task", "task_id", task.taskID)
		return true
	}

	o.isProcessing = true
	o.mu.Unlock()
	o.metrics.SetQueueDepth(depth)

	o.processTask(ctx, task)

	o.mu.Lock()
	o.isProcessing = false
	o.mu.Unlock()
	return true
}

// processTask drives one task's pipeline end to end.
func (o *Orchestrator) processTask(ctx context.Context, task queuedTask) {
	log := o.logger.With("task_id", task.taskID)

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancels[task.taskID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, task.taskID)
		o.mu.Unlock()
	}()

	if err := o.store.SetStatus(task.taskID, registry.StatusRunning); err != nil {
		// Raced with a cancel between pop and start.
		log.Warn("Could not start task", "error", err)
		return
	}
	log.Info("Task started", "category", task.req.Category)

	run := newTaskRun(task)
	var runErr error
	for _, stage := range task.req.Stages() {
		if o.store.IsCancelled(task.taskID) {
			runErr = ErrCancelled
			break
		}
		_ = o.store.SetStage(task.taskID, stage)

		start := time.Now()
		runErr = o.runStage(taskCtx, run, stage)
		o.metrics.ObserveStage(string(stage), time.Since(start))

		if runErr != nil {
			break
		}
		log.Info("Stage complete", "stage", stage, "duration", time.Since(start))
	}

	o.finishTask(run, runErr)
}

// finishTask maps the pipeline outcome onto the terminal status and runs
// cleanup after a full successful run.
func (o *Orchestrator) finishTask(run *taskRun, runErr error) {
	log := o.logger.With("task_id", run.taskID)

	if runErr != nil {
		if errors.Is(runErr, ErrCancelled) || errors.Is(runErr, context.Canceled) || o.store.IsCancelled(run.taskID) {
			// The flag flip already moved queued/running tasks to cancelled;
			// SetStatus here covers cancellation surfaced by the context.
			_ = o.store.SetStatus(run.taskID, registry.StatusCancelled)
			o.metrics.TaskFinished(string(registry.StatusCancelled))
			log.Info("Task cancelled")
			return
		}

		o.recordFailure(run, runErr)
		_ = o.store.SetStatus(run.taskID, registry.StatusFailed)
		o.metrics.TaskFinished(string(registry.StatusFailed))
		log.Error("Task failed", "error", runErr)
		return
	}

	if run.req.RunsCleanup() {
		_ = o.store.SetStage(run.taskID, registry.StageCleanup)
		o.runCleanup(run)
	}
	_ = o.store.SetStatus(run.taskID, registry.StatusCompleted)
	o.metrics.TaskFinished(string(registry.StatusCompleted))
	log.Info("Task completed")
}

// recordFailure writes the error into details while preserving the last
// completed stage's artifact metadata, which the restart planner depends on.
// The metadata is reconstructed from the run rather than re-parsed from the
// details string, because progress updates overwrite details while a stage
// is executing.
func (o *Orchestrator) recordFailure(run *taskRun, runErr error) {
	if run.lastDetails != nil {
		sd := *run.lastDetails
		sd.Error = runErr.Error()
		if data, err := json.Marshal(sd); err == nil {
			_ = o.store.UpdateDetails(run.taskID, string(data))
			return
		}
	}
	_ = o.store.UpdateDetails(run.taskID,
		fmt.Sprintf("Error in %s stage for input '%s': %v", run.currentStage, run.originalInput, runErr))
}

// cancelCheck is the retry helper's per-attempt cancellation probe.
func (o *Orchestrator) cancelCheck(taskID string) func() error {
	return func() error {
		if o.store.IsCancelled(taskID) {
			return ErrCancelled
		}
		return nil
	}
}

// Cancel flips one task to cancelled and interrupts its pipeline when it is
// the one running.
func (o *Orchestrator) Cancel(taskID string) error {
	rec, ok := o.store.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("%w: task %s is already %s", ErrInvalidRequest, taskID, rec.Status)
	}
	if err := o.store.SetStatus(taskID, registry.StatusCancelled); err != nil {
		return err
	}

	o.mu.Lock()
	cancel := o.cancels[taskID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.logger.Info("Task cancellation requested", "task_id", taskID)
	return nil
}

// CancelAll cancels every queued and running task and returns their IDs.
func (o *Orchestrator) CancelAll() []string {
	cancelled := o.store.CancelAll()

	o.mu.Lock()
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	if len(cancelled) > 0 {
		o.logger.Info("Cancelled all active tasks", "count", len(cancelled))
	}
	return cancelled
}

// runStage executes one stage under the retry policy. Stage locks are
// acquired inside the retried operation, so a busy lock costs one attempt
// instead of failing the task.
func (o *Orchestrator) runStage(ctx context.Context, run *taskRun, stage registry.Stage) error {
	run.currentStage = stage

	var op func(context.Context) error
	switch stage {
	case registry.StageDiscovery:
		op = func(ctx context.Context) error { return o.runDiscovery(ctx, run) }
	case registry.StageFetch:
		op = func(ctx context.Context) error { return o.runFetch(ctx, run) }
	case registry.StageSynthesize:
		op = func(ctx context.Context) error { return o.runSynthesize(ctx, run) }
	case registry.StageEmbed:
		op = func(ctx context.Context) error { return o.runEmbed(ctx, run) }
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	return retry.Do(ctx, op, retry.Options{
		Description: fmt.Sprintf("%s stage for %s", stage, run.taskID),
		CancelCheck: o.cancelCheck(run.taskID),
		Retryable:   retryable,
		Logger:      o.logger,
	})
}

// taskRun carries the artifact paths a task's stages hand to each other.
type taskRun struct {
	taskID       string
	req          Request
	currentStage registry.Stage

	// originalInput is the value restart requests re-enter discovery with;
	// empty when the task started from a pre-computed artifact.
	originalInput string
	isSourceLocal bool

	sourcesFile string
	fetchDir    string
	summaryFile string

	// lastDetails is the last completed stage's structured details, kept
	// here because progress updates clobber the details string in the store.
	lastDetails *StageDetails
}

func newTaskRun(task queuedTask) *taskRun {
	return &taskRun{
		taskID:        task.taskID,
		req:           task.req,
		originalInput: task.req.TopicOrURL,
		sourcesFile:   task.req.DiscoveryOutputFilePath,
		fetchDir:      task.req.FetchOutputDirPath,
		summaryFile:   task.req.SynthesizedContentFilePath,
	}
}
