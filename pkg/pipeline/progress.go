package pipeline

import (
	"fmt"
	"time"

	"github.com/docpipe/docpipe/pkg/registry"
)

// ProgressSummary is the service-wide progress view.
type ProgressSummary struct {
	Totals  map[string]int `json:"totals"`
	Queued  int            `json:"queued"`
	Running []RunningTask  `json:"running"`
}

// RunningTask is one in-flight task in the summary view.
type RunningTask struct {
	TaskID          string `json:"taskId"`
	Stage           string `json:"stage"`
	Details         string `json:"details,omitempty"`
	ProgressCurrent *int   `json:"progressCurrent,omitempty"`
	ProgressTotal   *int   `json:"progressTotal,omitempty"`
	ElapsedSeconds  int64  `json:"elapsedSeconds"`
	ETATimestamp    *int64 `json:"etaTimestamp,omitempty"`
}

// TaskView is one task shaped for API consumers. Simple views collapse the
// stage-result JSON in details down to a one-line message.
type TaskView struct {
	TaskID          string `json:"taskId"`
	Status          string `json:"status"`
	Stage           string `json:"stage"`
	Message         string `json:"message,omitempty"`
	Details         string `json:"details,omitempty"`
	StartTime       int64  `json:"startTime"`
	EndTime         *int64 `json:"endTime,omitempty"`
	ProgressCurrent *int   `json:"progressCurrent,omitempty"`
	ProgressTotal   *int   `json:"progressTotal,omitempty"`
	ElapsedSeconds  int64  `json:"elapsedSeconds"`
	ETATimestamp    *int64 `json:"etaTimestamp,omitempty"`
}

// Detail levels for task views.
const (
	DetailSimple   = "simple"
	DetailDetailed = "detailed"
)

// Progress builds the service-wide summary from the registry.
func Progress(store *registry.Store, now time.Time) ProgressSummary {
	summary := ProgressSummary{Totals: make(map[string]int)}
	for status, n := range store.Counts() {
		summary.Totals[string(status)] = n
	}
	summary.Queued = summary.Totals[string(registry.StatusQueued)]

	for _, rec := range store.List(TaskPrefix) {
		if rec.Status != registry.StatusRunning {
			continue
		}
		rt := RunningTask{
			TaskID:          rec.TaskID,
			Stage:           string(rec.Stage),
			Details:         rec.Details,
			ProgressCurrent: rec.ProgressCurrent,
			ProgressTotal:   rec.ProgressTotal,
			ElapsedSeconds:  int64(rec.Elapsed(now).Seconds()),
		}
		if eta, ok := rec.ETATimestamp(now); ok {
			rt.ETATimestamp = &eta
		}
		summary.Running = append(summary.Running, rt)
	}
	return summary
}

// ViewTask shapes one record for the requested detail level.
func ViewTask(rec registry.TaskRecord, detailLevel string, now time.Time) TaskView {
	view := TaskView{
		TaskID:          rec.TaskID,
		Status:          string(rec.Status),
		Stage:           string(rec.Stage),
		StartTime:       rec.StartTime,
		EndTime:         rec.EndTime,
		ProgressCurrent: rec.ProgressCurrent,
		ProgressTotal:   rec.ProgressTotal,
		ElapsedSeconds:  int64(rec.Elapsed(now).Seconds()),
	}
	if eta, ok := rec.ETATimestamp(now); ok {
		view.ETATimestamp = &eta
	}

	if detailLevel == DetailDetailed {
		view.Details = rec.Details
		return view
	}
	view.Message = collapseDetails(rec.Details)
	return view
}

// collapseDetails reduces stage-result JSON to a short human line; plain
// text details pass through unchanged.
func collapseDetails(details string) string {
	sd, ok := DecodeStageDetails(details)
	if !ok {
		return details
	}
	if sd.Error != "" {
		return fmt.Sprintf("Failed after %s stage: %s", sd.Stage, sd.Error)
	}
	return fmt.Sprintf("Completed %s stage", sd.Stage)
}
