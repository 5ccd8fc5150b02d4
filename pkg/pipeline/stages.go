package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/docpipe/docpipe/pkg/discovery"
	"github.com/docpipe/docpipe/pkg/fetch"
	"github.com/docpipe/docpipe/pkg/llm"
	"github.com/docpipe/docpipe/pkg/registry"
	"github.com/docpipe/docpipe/pkg/synthesize"
	"github.com/docpipe/docpipe/pkg/vector"
)

// progress returns a callback that mirrors stage updates into task details.
func (o *Orchestrator) progress(taskID string) func(string) {
	return func(msg string) {
		_ = o.store.UpdateDetails(taskID, msg)
	}
}

// runDiscovery resolves the task input and writes the sources artifact. The
// browser-activity lock is taken only when the input resolves to the web;
// local enumeration never touches a page slot.
func (o *Orchestrator) runDiscovery(ctx context.Context, run *taskRun) error {
	start, err := o.discovery.Resolve(ctx, run.req.TopicOrURL)
	if err != nil {
		return fmt.Errorf("resolving input %q: %w", run.req.TopicOrURL, err)
	}
	run.isSourceLocal = start.IsLocal

	if !start.IsLocal {
		if err := o.gov.BrowserActivity.Acquire(); err != nil {
			return err
		}
		defer o.gov.BrowserActivity.Release()
	}

	sources, err := o.discovery.Discover(ctx, start, discovery.Options{
		MaxDepth:    run.req.CrawlDepth,
		MaxURLs:     run.req.MaxURLs,
		Progress:    o.progress(run.taskID),
		CancelCheck: o.cancelCheck(run.taskID),
	})
	if err != nil {
		return err
	}

	run.sourcesFile = DiscoveryArtifactPath(o.dataDir, run.taskID)
	if err := WriteSources(run.sourcesFile, sources); err != nil {
		return err
	}

	return o.setStageResult(run, registry.StageDiscovery, DiscoveryResult{
		SourcesFilePath: run.sourcesFile,
		Category:        run.req.Category,
		IsSourceLocal:   run.isSourceLocal,
		OriginalInput:   run.originalInput,
	})
}

// runFetch turns the source list into per-source Markdown files.
func (o *Orchestrator) runFetch(ctx context.Context, run *taskRun) error {
	sources, err := ReadSources(run.sourcesFile)
	if err != nil {
		return err
	}

	if err := o.gov.BrowserActivity.Acquire(); err != nil {
		return err
	}
	defer o.gov.BrowserActivity.Release()

	run.fetchDir = FetchArtifactDir(o.dataDir, run.taskID)
	if err := os.MkdirAll(run.fetchDir, 0o755); err != nil {
		return fmt.Errorf("creating fetch output dir: %w", err)
	}

	written, err := o.fetch.Run(ctx, sources, run.fetchDir, fetch.Options{
		MaxURLs:     run.req.MaxURLs,
		Progress:    o.progress(run.taskID),
		CancelCheck: o.cancelCheck(run.taskID),
	})
	if err != nil {
		return err
	}

	return o.setStageResult(run, registry.StageFetch, FetchResult{
		FetchOutputDirPath: run.fetchDir,
		Category:           run.req.Category,
		OriginalInput:      run.originalInput,
		SourceCount:        written,
	})
}

// runSynthesize aggregates the fetched files into one summary document.
func (o *Orchestrator) runSynthesize(ctx context.Context, run *taskRun) error {
	if err := o.gov.Synthesize.Acquire(); err != nil {
		return err
	}
	defer o.gov.Synthesize.Release()

	topic := run.originalInput
	if topic == "" {
		topic = run.req.Category
	}

	run.summaryFile = SynthesizeArtifactPath(o.dataDir, run.taskID)
	err := o.synth.Run(ctx, run.fetchDir, run.summaryFile, synthesize.Options{
		Topic:       topic,
		MaxLLMCalls: run.req.MaxLLMCalls,
		Progress:    o.progress(run.taskID),
		CancelCheck: o.cancelCheck(run.taskID),
	})
	if err != nil {
		return err
	}

	return o.setStageResult(run, registry.StageSynthesize, SynthesizeResult{
		SummaryFilePath: run.summaryFile,
		Category:        run.req.Category,
		OriginalInput:   run.originalInput,
	})
}

// runEmbed chunks the summary, embeds each chunk, and upserts the vectors.
// Point IDs are derived from the summary path and chunk index, so re-running
// the stage overwrites rather than duplicates.
func (o *Orchestrator) runEmbed(ctx context.Context, run *taskRun) error {
	data, err := os.ReadFile(run.summaryFile)
	if err != nil {
		return fmt.Errorf("%w: reading summary file: %v", ErrInvalidRequest, err)
	}

	if err := o.gov.Embed.Acquire(); err != nil {
		return err
	}
	defer o.gov.Embed.Release()

	if err := o.vectors.EnsureCollection(ctx, o.collection, o.embedder.Dimension()); err != nil {
		return fmt.Errorf("ensuring collection %s: %w", o.collection, err)
	}

	chunks := ChunkText(string(data), DefaultChunkSize, DefaultChunkOverlap)
	if len(chunks) == 0 {
		return llm.NewFatalError(fmt.Errorf("summary file %s produced no chunks", run.summaryFile))
	}

	cancelled := o.cancelCheck(run.taskID)
	progress := o.progress(run.taskID)

	var points []vector.Point
	failed := 0
	for i, chunk := range chunks {
		if err := cancelled(); err != nil {
			return err
		}

		text := SanitizeChunk(chunk)
		if text == "" {
			continue
		}
		vec, err := o.embedder.Embed(ctx, text)
		if err != nil {
			if llm.IsFatal(err) {
				return err
			}
			// Transient per-chunk failures lose the chunk, not the task.
			failed++
			o.logger.Warn("Skipping chunk after embed failure",
				"task_id", run.taskID, "chunk", i, "error", err)
			continue
		}
		points = append(points, vector.Point{
			ID:     vector.PointID(run.summaryFile, i),
			Vector: vec,
			Payload: vector.Payload{
				Text:       text,
				Source:     run.summaryFile,
				ChunkIndex: i,
				Category:   run.req.Category,
			},
		})
		progress(fmt.Sprintf("Embed Stage: Embedded %d/%d chunks", i+1, len(chunks)))
	}
	if len(points) == 0 {
		return fmt.Errorf("embedding failed for all %d chunks", len(chunks))
	}

	batch := o.gov.QdrantBatchSize()
	for start := 0; start < len(points); start += batch {
		if err := cancelled(); err != nil {
			return err
		}
		end := start + batch
		if end > len(points) {
			end = len(points)
		}
		if err := o.vectors.Upsert(ctx, o.collection, points[start:end], true); err != nil {
			return fmt.Errorf("upserting points %d-%d: %w", start, end, err)
		}
	}
	o.metrics.PointsUpserted(len(points))
	progress(fmt.Sprintf("Embed Stage: Upsert complete for %d points.", len(points)))
	if failed > 0 {
		o.logger.Warn("Embed finished with skipped chunks",
			"task_id", run.taskID, "skipped", failed, "upserted", len(points))
	}

	return o.setStageResult(run, registry.StageEmbed, EmbedResult{
		SummaryFilePath: run.summaryFile,
		Category:        run.req.Category,
		OriginalInput:   run.originalInput,
		PointCount:      len(points),
	})
}

// runCleanup removes the intermediate artifacts this task produced. Inputs
// handed in through the request are never touched. Failures are logged and
// swallowed: cleanup never fails a completed task.
func (o *Orchestrator) runCleanup(run *taskRun) {
	log := o.logger.With("task_id", run.taskID)

	if run.req.TopicOrURL != "" && run.sourcesFile != "" {
		if err := os.Remove(run.sourcesFile); err != nil && !os.IsNotExist(err) {
			log.Warn("Could not remove discovery artifact", "path", run.sourcesFile, "error", err)
		}
	}
	if run.req.FetchOutputDirPath == "" && run.req.SynthesizedContentFilePath == "" && run.fetchDir != "" {
		if err := os.RemoveAll(run.fetchDir); err != nil {
			log.Warn("Could not remove fetch artifacts", "path", run.fetchDir, "error", err)
		}
	}
	if run.req.SynthesizedContentFilePath == "" && run.summaryFile != "" {
		if err := os.Remove(run.summaryFile); err != nil && !os.IsNotExist(err) {
			log.Warn("Could not remove summary artifact", "path", run.summaryFile, "error", err)
		}
	}
}

// setStageResult records a completed stage's artifact metadata in details
// and keeps it on the run so a later stage's failure can restore it after
// progress updates have overwritten the details string.
func (o *Orchestrator) setStageResult(run *taskRun, stage registry.Stage, result any) error {
	sd, err := newStageDetails(stage, result)
	if err != nil {
		return err
	}
	run.lastDetails = &sd

	data, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return o.store.UpdateDetails(run.taskID, string(data))
}
