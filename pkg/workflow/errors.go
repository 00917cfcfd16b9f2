package workflow

import "errors"

var (
	ErrUnknownKind = errors.New("unknown workflow kind")

	// ErrWorkflowInFlight rejects a second submission on an action slot whose
	// current instance has not reached a terminal state. Without this check
	// two rapid submissions of the same kind could issue a duplicate
	// permission-granting operation.
	ErrWorkflowInFlight = errors.New("workflow already in flight for this kind")

	ErrNoActiveWorkflow = errors.New("no active workflow for this kind")
)
