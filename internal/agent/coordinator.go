package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentkernel/core/internal/memory"
	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/pkg/models"
)

// Dispatcher is the capability the coordinator needs from the tool
// registry: resolve and execute one ToolCall under security policy. The
// concrete implementation lives in internal/tools so internal/agent does
// not depend on it directly (dependency order: tool traits before agent,
// per spec §2 — the coordinator depends on the dispatcher interface, not
// the registry's construction details).
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, call models.ToolCall) models.ExecutionResult
}

// Coordinator drives one Agent through step()'s fixed five-phase cycle.
// One Coordinator owns exactly one agent instance and one memory handle;
// steps for that agent never interleave (enforced by serializing calls
// through stepMu).
type Coordinator[O, A any] struct {
	agentID    string
	agent      Agent[O, A]
	memory     memory.Writer
	dispatcher Dispatcher
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *observability.Logger
}

// Config bundles a Coordinator's collaborators.
type Config[O, A any] struct {
	AgentID    string
	Agent      Agent[O, A]
	Memory     memory.Writer
	Dispatcher Dispatcher
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	Logger     *observability.Logger
}

// New builds a Coordinator from cfg.
func New[O, A any](cfg Config[O, A]) *Coordinator[O, A] {
	return &Coordinator[O, A]{
		agentID:    cfg.AgentID,
		agent:      cfg.Agent,
		memory:     cfg.Memory,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		logger:     cfg.Logger,
	}
}

// zero is the Action type's zero value, returned alongside a non-nil
// error from Step.
func zero[A any]() A {
	var z A
	return z
}

// Step drives the agent through observe -> call_tools -> dispatch(each)
// -> handle_result -> update_context -> memory.store -> act, per spec
// §4.2. A panic anywhere in agent or dispatcher code is recovered at
// this boundary and converted to a CoordinatorError wrapping
// models.AgentError{Kind: Panic}; the coordinator remains usable for
// subsequent steps afterward.
func (c *Coordinator[O, A]) Step(ctx context.Context, observation O) (action A, err error) {
	correlationID := uuid.NewString()
	ctx = observability.WithCorrelationID(ctx, correlationID)
	ctx = observability.WithAgentID(ctx, c.agentID)

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.StartSpan(ctx, observability.SpanCoordinatorStep, correlationID)
		defer span.End()
	}

	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			if c.metrics != nil {
				c.metrics.ObserveError("tool")
			}
			err = &CoordinatorError{
				Kind: CoordinatorErrorAgentPanic,
				Cause: &models.AgentError{
					Kind:    models.AgentPanic,
					Message: fmt.Sprintf("%v", r),
					Stack:   stack,
				},
			}
			action = zero[A]()
		}
	}()

	c.agent.Observe(ctx, observation)

	calls := c.agent.CallTools(ctx)
	for _, call := range calls {
		start := time.Now()
		result := c.dispatcher.Dispatch(ctx, c.agentID, call)
		result.CorrelationID = correlationID
		if c.metrics != nil {
			c.metrics.ObserveToolExec(call.Tool.Name(), time.Since(start).Seconds())
			if !result.Success {
				c.metrics.ObserveError("tool")
			}
		}
		c.agent.HandleResult(ctx, result)
	}

	update := c.agent.UpdateContext(ctx)
	if len(update.Updates) > 0 {
		if err := c.memory.StoreMany(ctx, update.Updates); err != nil {
			if c.metrics != nil {
				c.metrics.ObserveError("memory")
			}
			return zero[A](), &CoordinatorError{
				Kind:  CoordinatorErrorMemoryStore,
				Cause: err,
			}
		}
		if c.metrics != nil {
			c.metrics.ObserveMemoryOp("write")
		}
	}

	return c.agent.Act(ctx), nil
}
