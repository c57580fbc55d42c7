package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentkernel/core/internal/security"
	"github.com/agentkernel/core/pkg/models"
)

// writeInput is the JSON envelope FileWrite expects: {"path", "content",
// "append"}. A plain, non-JSON string is also accepted and treated as a
// bare path with empty content, so a literal traversal string still
// reaches path validation instead of failing JSON decoding first.
type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// WriteTool implements the FileWrite standard tool.
type WriteTool struct {
	resolver Resolver
	manager  *security.Manager
}

// NewWriteTool builds a FileWrite tool scoped to workspace.
func NewWriteTool(workspace string, manager *security.Manager) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: workspace}, manager: manager}
}

func (t *WriteTool) Name() models.ToolName { return models.ToolName(models.FileWrite) }

func (t *WriteTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	in := writeInput{Path: strings.TrimSpace(input)}
	if strings.HasPrefix(in.Path, "{") {
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return models.Failure(string(models.FileWrite), "ExecutionFailed", time.Since(start))
		}
	}
	if in.Path == "" {
		return models.Failure(string(models.FileWrite), "ExecutionFailed", time.Since(start))
	}

	joined, err := t.resolver.Join(in.Path)
	if err != nil {
		return models.Failure(string(models.FileWrite), "PathDenied", time.Since(start))
	}
	resolved := joined
	if t.manager != nil {
		resolved, err = t.manager.ValidatePath(joined)
		if err != nil {
			return models.Failure(string(models.FileWrite), "PathDenied", time.Since(start))
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return models.Failure(string(models.FileWrite), "ExecutionFailed", time.Since(start))
	}

	flags := os.O_CREATE | os.O_WRONLY
	if in.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return models.Failure(string(models.FileWrite), "ExecutionFailed", time.Since(start))
	}
	defer file.Close()

	n, err := file.WriteString(in.Content)
	if err != nil {
		return models.Failure(string(models.FileWrite), "ExecutionFailed", time.Since(start))
	}
	if err := file.Sync(); err != nil {
		return models.Failure(string(models.FileWrite), "ExecutionFailed", time.Since(start))
	}

	payload, _ := json.Marshal(map[string]any{
		"path":          in.Path,
		"bytes_written": n,
		"append":        in.Append,
	})
	return models.Succeed(string(models.FileWrite), string(payload), time.Since(start))
}
