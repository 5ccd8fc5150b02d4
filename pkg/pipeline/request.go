// Package pipeline owns the per-task state machine: stage selection from
// the request's inputs, sequential single-task dispatch, lock acquisition
// inside retry, artifact handoff between stages, and the restart protocol
// persisted in task details.
package pipeline

import (
	"fmt"

	"github.com/docpipe/docpipe/pkg/registry"
)

// TaskPrefix heads every pipeline task ID.
const TaskPrefix = "get-llms-full"

// Tuning knob defaults applied when a request leaves them zero.
const (
	DefaultCrawlDepth  = 2
	DefaultMaxURLs     = 100
	DefaultMaxLLMCalls = 50
)

// Stop-after selectors.
const (
	StopAfterDiscovery  = "discovery"
	StopAfterFetch      = "fetch"
	StopAfterSynthesize = "synthesize"
)

// Request is one pipeline invocation. Exactly one of the four starting
// inputs must be set; the chosen input decides which stages run.
type Request struct {
	Category string `json:"category"`

	TopicOrURL                 string `json:"topic_or_url,omitempty"`
	DiscoveryOutputFilePath    string `json:"discovery_output_file_path,omitempty"`
	FetchOutputDirPath         string `json:"fetch_output_dir_path,omitempty"`
	SynthesizedContentFilePath string `json:"synthesized_content_file_path,omitempty"`

	CrawlDepth  int `json:"crawl_depth,omitempty"`
	MaxURLs     int `json:"max_urls,omitempty"`
	MaxLLMCalls int `json:"max_llm_calls,omitempty"`

	StopAfterStage string `json:"stop_after_stage,omitempty"`
}

// Validate checks the request shape and applies knob defaults in place.
func (r *Request) Validate() error {
	if r.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidRequest)
	}

	inputs := 0
	for _, v := range []string{r.TopicOrURL, r.DiscoveryOutputFilePath, r.FetchOutputDirPath, r.SynthesizedContentFilePath} {
		if v != "" {
			inputs++
		}
	}
	if inputs != 1 {
		return fmt.Errorf("%w: exactly one of topic_or_url, discovery_output_file_path, fetch_output_dir_path, synthesized_content_file_path must be set (got %d)", ErrInvalidRequest, inputs)
	}

	switch r.StopAfterStage {
	case "", StopAfterDiscovery, StopAfterFetch, StopAfterSynthesize:
	default:
		return fmt.Errorf("%w: unknown stop_after_stage %q", ErrInvalidRequest, r.StopAfterStage)
	}

	if r.CrawlDepth < 0 || r.MaxURLs < 0 || r.MaxLLMCalls < 0 {
		return fmt.Errorf("%w: crawl_depth, max_urls, and max_llm_calls must be non-negative", ErrInvalidRequest)
	}
	if r.CrawlDepth == 0 {
		r.CrawlDepth = DefaultCrawlDepth
	}
	if r.MaxURLs == 0 {
		r.MaxURLs = DefaultMaxURLs
	}
	if r.MaxLLMCalls == 0 {
		r.MaxLLMCalls = DefaultMaxLLMCalls
	}
	return nil
}

// Stages returns the stage sequence this request runs: first matching input
// wins, then stop_after_stage trims the tail.
func (r *Request) Stages() []registry.Stage {
	var stages []registry.Stage
	switch {
	case r.SynthesizedContentFilePath != "":
		stages = []registry.Stage{registry.StageEmbed}
	case r.FetchOutputDirPath != "":
		stages = []registry.Stage{registry.StageSynthesize, registry.StageEmbed}
	case r.DiscoveryOutputFilePath != "":
		stages = []registry.Stage{registry.StageFetch, registry.StageSynthesize, registry.StageEmbed}
	default:
		stages = []registry.Stage{registry.StageDiscovery, registry.StageFetch, registry.StageSynthesize, registry.StageEmbed}
	}

	if r.StopAfterStage == "" {
		return stages
	}
	stop := map[string]registry.Stage{
		StopAfterDiscovery:  registry.StageDiscovery,
		StopAfterFetch:      registry.StageFetch,
		StopAfterSynthesize: registry.StageSynthesize,
	}[r.StopAfterStage]

	for i, s := range stages {
		if s == stop {
			return stages[:i+1]
		}
	}
	return stages
}

// RunsCleanup reports whether a successful run of this request ends with
// the cleanup pass: the pipeline must actually execute through Embed.
func (r *Request) RunsCleanup() bool {
	stages := r.Stages()
	return len(stages) > 0 && stages[len(stages)-1] == registry.StageEmbed
}
