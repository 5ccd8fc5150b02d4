package pipeline

import (
	"context"
	"errors"

	"github.com/docpipe/docpipe/pkg/llm"
)

var (
	// ErrInvalidRequest marks malformed inputs, unknown providers, and
	// missing prior-stage artifacts. Never retried; surfaced to the caller.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCancelled is raised when a stage observes the task's cancellation
	// flag.
	ErrCancelled = errors.New("task cancelled")

	// ErrTaskNotFound is returned for operations on unknown task IDs.
	ErrTaskNotFound = errors.New("task not found")
)

// retryable is the stage-level retry classification: cancellation, invalid
// requests, and provider-fatal errors (auth failures, malformed requests)
// propagate unchanged; everything else, including a busy stage lock, gets
// another attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrCancelled),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, context.Canceled):
		return false
	case llm.IsFatal(err):
		return false
	}
	return true
}
