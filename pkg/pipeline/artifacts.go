package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/docpipe/docpipe/pkg/registry"
)

// Artifact directory names under the data root.
const (
	discoveryOutputDir  = "discovery_output"
	fetchOutputDir      = "fetch_output"
	synthesizeOutputDir = "synthesize_output"
)

// DiscoveryArtifactPath is the sources JSON for one task.
func DiscoveryArtifactPath(dataDir, taskID string) string {
	return filepath.Join(dataDir, discoveryOutputDir, taskID+"-sources.json")
}

// FetchArtifactDir is the per-task directory of fetched Markdown files.
func FetchArtifactDir(dataDir, taskID string) string {
	return filepath.Join(dataDir, fetchOutputDir, taskID)
}

// SynthesizeArtifactPath is the aggregated summary for one task.
func SynthesizeArtifactPath(dataDir, taskID string) string {
	return filepath.Join(dataDir, synthesizeOutputDir, taskID+"-summary.md")
}

// WriteSources durably writes the discovery source list as a JSON array.
func WriteSources(path string, sources []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating discovery output dir: %w", err)
	}
	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing sources file: %w", err)
	}
	return nil
}

// ReadSources loads a discovery artifact.
func ReadSources(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sources file: %v", ErrInvalidRequest, err)
	}
	var sources []string
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("%w: sources file is not a JSON array of strings: %v", ErrInvalidRequest, err)
	}
	return sources, nil
}

// DiscoveryResult is the discovery stage's entry in task details.
type DiscoveryResult struct {
	SourcesFilePath string `json:"sourcesFilePath"`
	Category        string `json:"category"`
	IsSourceLocal   bool   `json:"isSourceLocal"`
	OriginalInput   string `json:"originalInput"`
}

// FetchResult is the fetch stage's entry in task details.
type FetchResult struct {
	FetchOutputDirPath string `json:"fetchOutputDirPath"`
	Category           string `json:"category"`
	OriginalInput      string `json:"originalInput"`
	SourceCount        int    `json:"sourceCount"`
}

// SynthesizeResult is the synthesize stage's entry in task details.
type SynthesizeResult struct {
	SummaryFilePath string `json:"summaryFilePath"`
	Category        string `json:"category"`
	OriginalInput   string `json:"originalInput"`
}

// EmbedResult is the embed stage's entry in task details.
type EmbedResult struct {
	SummaryFilePath string `json:"summaryFilePath"`
	Category        string `json:"category"`
	OriginalInput   string `json:"originalInput"`
	PointCount      int    `json:"pointCount"`
}

// StageDetails is the on-disk form of task details after a stage completes:
// a tagged union whose Result variant depends on Stage. It doubles as the
// restart protocol. Error is filled only when a later stage failed and the
// artifact metadata was preserved for restart.
type StageDetails struct {
	Stage  string          `json:"stage"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// newStageDetails builds the details union for one completed stage.
func newStageDetails(stage registry.Stage, result any) (StageDetails, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return StageDetails{}, err
	}
	return StageDetails{Stage: stageTag(stage), Result: raw}, nil
}

// EncodeStageDetails serializes one stage result for UpdateDetails.
func EncodeStageDetails(stage registry.Stage, result any) (string, error) {
	sd, err := newStageDetails(stage, result)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(sd)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeStageDetails parses a details string back into the union. ok is
// false when details is absent or not stage-result JSON.
func DecodeStageDetails(details string) (StageDetails, bool) {
	var sd StageDetails
	if err := json.Unmarshal([]byte(details), &sd); err != nil || sd.Stage == "" {
		return StageDetails{}, false
	}
	return sd, true
}

// stageTag is the lowercase stage name used inside details JSON.
func stageTag(stage registry.Stage) string {
	switch stage {
	case registry.StageDiscovery:
		return "discovery"
	case registry.StageFetch:
		return "fetch"
	case registry.StageSynthesize:
		return "synthesize"
	case registry.StageEmbed:
		return "embed"
	default:
		return string(stage)
	}
}

var originalInputPattern = regexp.MustCompile(`input '([^']+)'`)

// recoverOriginalInput pulls the original input out of a plain-text failure
// details line when JSON parsing is impossible.
func recoverOriginalInput(details string) string {
	if m := originalInputPattern.FindStringSubmatch(details); m != nil {
		return m[1]
	}
	return ""
}
