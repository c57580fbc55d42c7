package agent

import "fmt"

// CoordinatorErrorKind enumerates the ways Step can fail without
// producing an action.
type CoordinatorErrorKind string

const (
	CoordinatorErrorMemoryStore CoordinatorErrorKind = "MemoryStore"
	CoordinatorErrorAgentPanic CoordinatorErrorKind = "AgentPanic"
)

// CoordinatorError is returned by Step when the cycle could not complete.
// Tool dispatch failures never surface here — those are always routed
// through ExecutionResult.Success and handled by the agent itself.
type CoordinatorError struct {
	Kind  CoordinatorErrorKind
	Cause error
}

func (e *CoordinatorError) Error() string {
	if e.Cause == nil {
		return "coordinator: " + string(e.Kind)
	}
	return fmt.Sprintf("coordinator: %s: %v", e.Kind, e.Cause)
}

func (e *CoordinatorError) Unwrap() error { return e.Cause }
