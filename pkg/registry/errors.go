package registry

import "errors"

var (
	// ErrNotFound indicates the task ID is unknown to the store.
	ErrNotFound = errors.New("task not found")

	// ErrTerminalState indicates a mutation was attempted on a task that
	// already reached a terminal status.
	ErrTerminalState = errors.New("task is in a terminal state")

	// ErrInvalidTransition indicates a status change the state machine
	// does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
)
