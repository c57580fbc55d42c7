package files

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/agentkernel/core/internal/security"
	"github.com/agentkernel/core/pkg/models"
)

// listInput is the JSON envelope FileList expects: {"path"}. An empty
// path lists the workspace root. A plain, non-JSON string is also
// accepted and treated as a bare path, so a literal traversal string
// still reaches path validation.
type listInput struct {
	Path string `json:"path"`
}

// ListTool implements the FileList standard tool.
type ListTool struct {
	resolver Resolver
	manager  *security.Manager
}

// NewListTool builds a FileList tool scoped to workspace.
func NewListTool(workspace string, manager *security.Manager) *ListTool {
	return &ListTool{resolver: Resolver{Root: workspace}, manager: manager}
}

func (t *ListTool) Name() models.ToolName { return models.ToolName(models.FileList) }

func (t *ListTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	in := listInput{Path: strings.TrimSpace(input)}
	if strings.HasPrefix(in.Path, "{") {
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return models.Failure(string(models.FileList), "ExecutionFailed", time.Since(start))
		}
	}
	rel := in.Path
	if rel == "" {
		rel = "."
	}

	joined, err := t.resolver.Join(rel)
	if err != nil {
		return models.Failure(string(models.FileList), "PathDenied", time.Since(start))
	}
	resolved := joined
	if t.manager != nil {
		resolved, err = t.manager.ValidatePath(joined)
		if err != nil {
			return models.Failure(string(models.FileList), "PathDenied", time.Since(start))
		}
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return models.Failure(string(models.FileList), "ExecutionFailed", time.Since(start))
	}

	names := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		info, statErr := e.Info()
		size := int64(0)
		if statErr == nil {
			size = info.Size()
		}
		names = append(names, map[string]any{
			"name":   e.Name(),
			"is_dir": e.IsDir(),
			"size":   size,
		})
	}

	payload, _ := json.Marshal(map[string]any{"path": rel, "entries": names})
	return models.Succeed(string(models.FileList), string(payload), time.Since(start))
}
