// Package registry tracks pipeline tasks in memory and mirrors every
// mutation to a JSON snapshot on disk for crash recovery.
package registry

import "time"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Stage labels the pipeline stage a task is currently in.
type Stage string

const (
	StageDiscovery  Stage = "Discovery"
	StageFetch      Stage = "Fetch"
	StageSynthesize Stage = "Synthesize"
	StageEmbed      Stage = "Embed"
	StageCleanup    Stage = "Cleanup"
	StageNone       Stage = "None"
)

// TaskRecord is the persisted state of one pipeline invocation.
//
// Details usually holds the last completed stage's result as JSON; it is the
// restart protocol and is never overwritten once the task reaches a terminal
// state. StartTime and EndTime are epoch milliseconds; EndTime is set on the
// first transition into a terminal state and never cleared.
type TaskRecord struct {
	TaskID          string `json:"taskId"`
	Status          Status `json:"status"`
	Details         string `json:"details,omitempty"`
	Stage           Stage  `json:"stage"`
	StartTime       int64  `json:"startTime"`
	EndTime         *int64 `json:"endTime,omitempty"`
	ProgressCurrent *int   `json:"progressCurrent,omitempty"`
	ProgressTotal   *int   `json:"progressTotal,omitempty"`
}

// Clone returns a copy safe to hand out to readers.
func (r *TaskRecord) Clone() TaskRecord {
	c := *r
	if r.EndTime != nil {
		v := *r.EndTime
		c.EndTime = &v
	}
	if r.ProgressCurrent != nil {
		v := *r.ProgressCurrent
		c.ProgressCurrent = &v
	}
	if r.ProgressTotal != nil {
		v := *r.ProgressTotal
		c.ProgressTotal = &v
	}
	return c
}

// Elapsed returns how long the task has been running (or ran, for terminal
// tasks) as of now.
func (r *TaskRecord) Elapsed(now time.Time) time.Duration {
	end := now.UnixMilli()
	if r.EndTime != nil {
		end = *r.EndTime
	}
	if end <= r.StartTime {
		return 0
	}
	return time.Duration(end-r.StartTime) * time.Millisecond
}

// ETATimestamp extrapolates a completion time (epoch millis) from the
// observed progress rate. It is derived on demand and never stored.
func (r *TaskRecord) ETATimestamp(now time.Time) (int64, bool) {
	if r.Status != StatusRunning || r.ProgressCurrent == nil || r.ProgressTotal == nil {
		return 0, false
	}
	current, total := *r.ProgressCurrent, *r.ProgressTotal
	if current <= 0 || total <= 0 {
		return 0, false
	}
	elapsed := now.UnixMilli() - r.StartTime
	if elapsed <= 0 {
		return 0, false
	}
	perUnit := float64(elapsed) / float64(current)
	remaining := int64(perUnit * float64(total-current))
	return now.UnixMilli() + remaining, true
}
