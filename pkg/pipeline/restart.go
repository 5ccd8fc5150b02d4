package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/docpipe/docpipe/pkg/registry"
)

// detailFields is the union of every stage result's fields; decoding into it
// lets the planner read whichever artifact the last completed stage left.
type detailFields struct {
	SourcesFilePath    string `json:"sourcesFilePath"`
	FetchOutputDirPath string `json:"fetchOutputDirPath"`
	SummaryFilePath    string `json:"summaryFilePath"`
	Category           string `json:"category"`
	OriginalInput      string `json:"originalInput"`
}

// PlanRestart builds the request that resumes a failed task at restartStage,
// feeding it the artifact the failed run recorded in its details. The
// returned request is not enqueued; the caller submits it like any other.
func PlanRestart(store *registry.Store, taskID, restartStage string) (Request, error) {
	rec, ok := store.Get(taskID)
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if rec.Status != registry.StatusFailed {
		return Request{}, fmt.Errorf("%w: task %s is %s, only failed tasks can be restarted", ErrInvalidRequest, taskID, rec.Status)
	}

	var fields detailFields
	lastStage := "none"
	if sd, parsed := DecodeStageDetails(rec.Details); parsed {
		lastStage = sd.Stage
		if err := json.Unmarshal(sd.Result, &fields); err != nil {
			return Request{}, fmt.Errorf("%w: task %s has unreadable stage details: %v", ErrInvalidRequest, taskID, err)
		}
	} else {
		// A failure before any stage completed leaves a plain-text line;
		// only the original input survives it.
		fields.OriginalInput = recoverOriginalInput(rec.Details)
	}

	req := Request{Category: fields.Category}
	switch restartStage {
	case "discovery":
		if fields.OriginalInput == "" {
			return Request{}, fmt.Errorf("%w: task %s recorded no original input; it was started from a pre-computed artifact", ErrInvalidRequest, taskID)
		}
		req.TopicOrURL = fields.OriginalInput
	case "fetch":
		if fields.SourcesFilePath == "" {
			return Request{}, fmt.Errorf("%w: task %s has no discovery artifact (last completed stage: %s); restart from discovery instead", ErrInvalidRequest, taskID, lastStage)
		}
		req.DiscoveryOutputFilePath = fields.SourcesFilePath
	case "synthesize":
		if fields.FetchOutputDirPath == "" {
			return Request{}, fmt.Errorf("%w: task %s has no fetch artifact (last completed stage: %s); restart from an earlier stage instead", ErrInvalidRequest, taskID, lastStage)
		}
		req.FetchOutputDirPath = fields.FetchOutputDirPath
	case "embed":
		if fields.SummaryFilePath == "" {
			return Request{}, fmt.Errorf("%w: task %s has no synthesize artifact (last completed stage: %s); restart from an earlier stage instead", ErrInvalidRequest, taskID, lastStage)
		}
		req.SynthesizedContentFilePath = fields.SummaryFilePath
	default:
		return Request{}, fmt.Errorf("%w: unknown restart stage %q", ErrInvalidRequest, restartStage)
	}

	if req.Category == "" {
		return Request{}, fmt.Errorf("%w: task %s recorded no category to restart with", ErrInvalidRequest, taskID)
	}
	return req, nil
}
