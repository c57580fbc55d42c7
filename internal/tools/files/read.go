package files

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/agentkernel/core/internal/security"
	"github.com/agentkernel/core/pkg/models"
)

const defaultMaxReadBytes = 200_000

// readInput is the JSON envelope FileRead expects as its string input:
// {"path": "...", "offset": 0, "max_bytes": 0}. Only path is required. A
// plain, non-JSON string is also accepted and treated as a bare path, so
// a literal traversal string still reaches path validation.
type readInput struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int    `json:"max_bytes"`
}

// ReadTool implements the FileRead standard tool.
type ReadTool struct {
	resolver Resolver
	manager  *security.Manager
	maxBytes int
}

// NewReadTool builds a FileRead tool scoped to workspace.
func NewReadTool(workspace string, manager *security.Manager, maxBytes int) *ReadTool {
	if maxBytes <= 0 {
		maxBytes = defaultMaxReadBytes
	}
	return &ReadTool{resolver: Resolver{Root: workspace}, manager: manager, maxBytes: maxBytes}
}

func (t *ReadTool) Name() models.ToolName { return models.ToolName(models.FileRead) }

func (t *ReadTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	in := readInput{Path: strings.TrimSpace(input)}
	if strings.HasPrefix(in.Path, "{") {
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return models.Failure(string(models.FileRead), "ExecutionFailed", time.Since(start))
		}
	}
	if in.Path == "" {
		return models.Failure(string(models.FileRead), "ExecutionFailed", time.Since(start))
	}

	joined, err := t.resolver.Join(in.Path)
	if err != nil {
		return models.Failure(string(models.FileRead), "PathDenied", time.Since(start))
	}
	resolved := joined
	if t.manager != nil {
		resolved, err = t.manager.ValidatePath(joined)
		if err != nil {
			return models.Failure(string(models.FileRead), "PathDenied", time.Since(start))
		}
	}

	file, err := os.Open(resolved)
	if err != nil {
		return models.Failure(string(models.FileRead), "ExecutionFailed", time.Since(start))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return models.Failure(string(models.FileRead), "ExecutionFailed", time.Since(start))
	}

	if in.Offset > 0 {
		if _, err := file.Seek(in.Offset, io.SeekStart); err != nil {
			return models.Failure(string(models.FileRead), "ExecutionFailed", time.Since(start))
		}
	}

	limit := t.maxBytes
	if in.MaxBytes > 0 && in.MaxBytes < limit {
		limit = in.MaxBytes
	}
	remaining := info.Size() - in.Offset
	if remaining < 0 {
		remaining = 0
	}
	if remaining > int64(limit) {
		remaining = int64(limit)
	}

	buf, err := io.ReadAll(io.LimitReader(file, remaining))
	if err != nil {
		return models.Failure(string(models.FileRead), "ExecutionFailed", time.Since(start))
	}

	payload, _ := json.Marshal(map[string]any{
		"path":      in.Path,
		"content":   string(buf),
		"offset":    in.Offset,
		"bytes":     len(buf),
		"truncated": info.Size() > in.Offset+int64(len(buf)),
	})
	return models.Succeed(string(models.FileRead), string(payload), time.Since(start))
}
