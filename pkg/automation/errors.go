package automation

import "errors"

var (
	// ErrAlreadyRunning indicates Start was called while the engine is not stopped.
	ErrAlreadyRunning = errors.New("engine is already running")

	// ErrNotRunning indicates an operation that requires a running engine.
	ErrNotRunning = errors.New("engine is not running")

	// ErrUnknownWorkflow indicates the workflow id has not been registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrWorkflowExists indicates a workflow with the same id is already registered.
	ErrWorkflowExists = errors.New("workflow already registered")
)
