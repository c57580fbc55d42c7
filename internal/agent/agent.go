// Package agent defines the Agent capability set and the Coordinator
// that drives one observation-to-action cycle per spec §4.1-§4.2.
package agent

import (
	"context"

	"github.com/agentkernel/core/internal/memory"
	"github.com/agentkernel/core/pkg/models"
)

// MemoryUpdate is the mutation an agent wants persisted atomically at
// the end of a coordinator step.
type MemoryUpdate struct {
	Updates []memory.Update
}

// Agent is polymorphic over an Observation and Action type, per spec
// §4.1. Implementations are expected to be pure between inputs: all I/O
// happens through emitted ToolCalls, never as background work inside
// these methods.
type Agent[Observation, Action any] interface {
	// Observe records obs for later phases. Never errors: a malformed
	// observation is the caller's problem, not the agent's.
	Observe(ctx context.Context, obs Observation)

	// CallTools is deterministic given current agent state and may
	// return an empty slice.
	CallTools(ctx context.Context) []models.ToolCall

	// HandleResult is invoked once per executed ToolCall, in dispatch
	// order. A failed dispatch still invokes HandleResult with
	// result.Success == false; the agent decides whether to retry by
	// emitting further calls on a later cycle. The coordinator never
	// synthesizes retries itself.
	HandleResult(ctx context.Context, result models.ExecutionResult)

	// UpdateContext returns the agent's intended memory mutation before
	// Act is called; the coordinator persists it atomically.
	UpdateContext(ctx context.Context) MemoryUpdate

	// Act produces this cycle's external action.
	Act(ctx context.Context) Action
}

// Kind optionally names an agent's provider/kind for metrics labeling.
// It is purely observational and not part of the coordinator contract.
type Kind interface {
	Kind() string
}
