package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentkernel/core/internal/observability"
	"github.com/agentkernel/core/internal/security"
	"github.com/agentkernel/core/pkg/models"
)

// Registry resolves a ToolDispatch to a Tool in O(1) and drives the
// seven-step secure dispatch path of spec §4.3. It implements
// internal/agent.Dispatcher.
type Registry struct {
	mu       sync.RWMutex
	standard map[models.StandardTool]Tool
	custom   map[models.ToolName]Tool

	manager *security.Manager
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Config bundles a Registry's collaborators.
type Config struct {
	Manager *security.Manager
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// NewRegistry builds an empty registry. Standard tools are registered
// via RegisterStandard; a registry with no standard tools registered
// still resolves custom tools.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		standard: make(map[models.StandardTool]Tool),
		custom:   make(map[models.ToolName]Tool),
		manager:  cfg.Manager,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
	}
}

// RegisterStandard installs a standard tool's implementation. t.Name()
// must equal string(std); this is checked at registration, not dispatch.
func (r *Registry) RegisterStandard(std models.StandardTool, t Tool) error {
	if !std.IsValid() {
		return fmt.Errorf("tools: %q is not a member of the standard tool enum", std)
	}
	if t.Name() != models.ToolName(std) {
		return fmt.Errorf("tools: tool name %q does not match standard tool %q", t.Name(), std)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.standard[std] = t
	return nil
}

// Register installs a custom tool. Registration beyond the registry's
// cardinality budget is rejected here, not silently dropped at dispatch.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.custom[t.Name()]; exists {
		return fmt.Errorf("tools: %q is already registered", t.Name())
	}
	if len(r.custom) >= maxCustomTools {
		return fmt.Errorf("tools: custom tool budget exhausted (max %d)", maxCustomTools)
	}
	r.custom[t.Name()] = t
	return nil
}

func (r *Registry) resolve(dispatch models.ToolDispatch) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dispatch.IsStandard() {
		t, ok := r.standard[dispatch.Standard]
		return t, ok
	}
	t, ok := r.custom[dispatch.Custom]
	return t, ok
}

// Dispatch runs call through the full secure dispatch path: input
// validation, secret/suspicious scanning, tool-specific pre-checks
// (performed by the tool itself via the manager it was constructed
// with), a resource permit, a bounded deadline, output redaction, and an
// audit event. It never panics outward: dispatch failures and tool
// failures are both reported as a failed ExecutionResult.
func (r *Registry) Dispatch(ctx context.Context, agentID string, call models.ToolCall) models.ExecutionResult {
	start := time.Now()
	toolName := call.Tool.Name()

	if r.tracer != nil {
		correlationID := observability.CorrelationIDFromContext(ctx)
		var span trace.Span
		ctx, span = r.tracer.StartSpan(ctx, observability.SpanToolDispatch, correlationID)
		defer span.End()
	}

	if r.manager != nil && r.manager.Lockdown() {
		return r.fail(ctx, agentID, toolName, "Lockdown", start)
	}

	if r.manager != nil {
		if err := r.manager.ValidateInput(ctx, agentID, toolName, call.Input); err != nil {
			kind := "SuspiciousPattern"
			if k, ok := err.(interface{ Kind() string }); ok {
				kind = k.Kind()
			}
			return r.fail(ctx, agentID, toolName, kind, start)
		}
	}

	tool, ok := r.resolve(call.Tool)
	if !ok {
		return r.fail(ctx, agentID, toolName, "NotFound", start)
	}

	var guard *security.PermitGuard
	if r.manager != nil {
		g, err := r.manager.AcquireResourcePermit(ctx, agentID)
		if err != nil {
			return r.fail(ctx, agentID, toolName, "ConcurrencyLimit", start)
		}
		guard = g
		defer guard.Release()
	}

	dispatchCtx := ctx
	var cancel context.CancelFunc
	if r.manager != nil {
		if deadline := r.manager.MaxExecutionTime(); deadline > 0 {
			dispatchCtx, cancel = context.WithTimeout(ctx, deadline)
			defer cancel()
		}
	}

	result := r.callTool(dispatchCtx, tool, call.Input, toolName, start)
	result.Output = security.RedactSecrets(result.Output)

	if r.metrics != nil {
		r.metrics.ObserveToolExec(toolName, time.Since(start).Seconds())
		if !result.Success {
			r.metrics.ObserveError("tool")
		}
	}
	if r.manager != nil {
		r.manager.Audit(auditOutcome(agentID, toolName, call.Input, result))
	}
	return result
}

// callTool invokes tool.Call and converts a deadline exceeded into a
// Timeout ExecutionResult rather than letting the tool's own error
// shape leak through; a tool that has already begun an external effect
// is not rolled back, only reported as failed (§5).
func (r *Registry) callTool(ctx context.Context, tool Tool, input, toolName string, start time.Time) models.ExecutionResult {
	result := tool.Call(ctx, input)
	if ctx.Err() == context.DeadlineExceeded && result.Success {
		return models.Failure(toolName, "Timeout", time.Since(start))
	}
	result.ToolName = toolName
	return result
}

func (r *Registry) fail(ctx context.Context, agentID, toolName, kind string, start time.Time) models.ExecutionResult {
	result := models.Failure(toolName, kind, time.Since(start))
	if r.metrics != nil {
		r.metrics.ObserveError("tool")
	}
	if r.manager != nil {
		r.manager.Audit(security.AuditEvent{
			AgentID:     agentID,
			Tool:        toolName,
			Outcome:     security.OutcomeDenied,
			Reason:      kind,
			InputSHA256: "",
			DurationMS:  time.Since(start).Milliseconds(),
		})
	}
	return result
}

func auditOutcome(agentID, toolName, input string, result models.ExecutionResult) security.AuditEvent {
	outcome := security.OutcomeAllowed
	reason := ""
	if !result.Success {
		outcome = security.OutcomeDenied
		reason = result.Error
	}
	return security.AuditEvent{
		AgentID:     agentID,
		Tool:        toolName,
		InputSHA256: security.HashInput(input),
		Outcome:     outcome,
		Reason:      reason,
		DurationMS:  result.DurationMS,
	}
}
