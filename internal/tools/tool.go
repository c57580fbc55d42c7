// Package tools implements the tool registry and dispatch pipeline of
// spec §4.3: resolution of a ToolDispatch to a concrete Tool, the
// seven-step secure dispatch path, and the fixed eleven-member standard
// tool set.
package tools

import (
	"context"

	"github.com/agentkernel/core/pkg/models"
)

// Tool is the capability implemented by both standard and custom tools.
// Authors outside this module satisfy the same interface; the registry
// never calls a Tool directly, only through Dispatch.
type Tool interface {
	Name() models.ToolName
	Call(ctx context.Context, input string) models.ExecutionResult
}

// maxCustomTools caps registered custom tools so that total cardinality
// (standard + custom) never exceeds the 20-tool metrics budget. The 11
// standard tools are fixed at compile time and do not count against a
// caller's registration budget, but they do count toward the 20 cap
// enforced by the observability layer's bounded label set.
const maxCustomTools = 20 - len(models.StandardTools)
