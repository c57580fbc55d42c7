// Package json implements the JSONParse, JSONExtract and JSONPretty
// standard tools.
package json

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/agentkernel/core/pkg/models"
)

// ParseTool implements JSONParse: validates input is well-formed JSON
// and returns it re-encoded compactly.
type ParseTool struct{}

func NewParseTool() *ParseTool { return &ParseTool{} }

func (t *ParseTool) Name() models.ToolName { return models.ToolName(models.JSONParse) }

func (t *ParseTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return models.Failure(string(models.JSONParse), "ExecutionFailed", time.Since(start))
	}
	out, err := json.Marshal(v)
	if err != nil {
		return models.Failure(string(models.JSONParse), "ExecutionFailed", time.Since(start))
	}
	return models.Succeed(string(models.JSONParse), string(out), time.Since(start))
}

// extractInput is the JSON envelope JSONExtract expects:
// {"json": "...", "path": "a.b.0.c"}.
type extractInput struct {
	JSON string `json:"json"`
	Path string `json:"path"`
}

// ExtractTool implements JSONExtract: a dotted-path field/index walk
// over a parsed JSON document.
type ExtractTool struct{}

func NewExtractTool() *ExtractTool { return &ExtractTool{} }

func (t *ExtractTool) Name() models.ToolName { return models.ToolName(models.JSONExtract) }

func (t *ExtractTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	var in extractInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return models.Failure(string(models.JSONExtract), "ExecutionFailed", time.Since(start))
	}
	var doc any
	if err := json.Unmarshal([]byte(in.JSON), &doc); err != nil {
		return models.Failure(string(models.JSONExtract), "ExecutionFailed", time.Since(start))
	}

	cur := doc
	for _, segment := range strings.Split(in.Path, ".") {
		if segment == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[segment]
			if !ok {
				return models.Failure(string(models.JSONExtract), "ExecutionFailed", time.Since(start))
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return models.Failure(string(models.JSONExtract), "ExecutionFailed", time.Since(start))
			}
			cur = node[idx]
		default:
			return models.Failure(string(models.JSONExtract), "ExecutionFailed", time.Since(start))
		}
	}

	out, err := json.Marshal(cur)
	if err != nil {
		return models.Failure(string(models.JSONExtract), "ExecutionFailed", time.Since(start))
	}
	return models.Succeed(string(models.JSONExtract), string(out), time.Since(start))
}

// PrettyTool implements JSONPretty: re-encodes input with two-space
// indentation.
type PrettyTool struct{}

func NewPrettyTool() *PrettyTool { return &PrettyTool{} }

func (t *PrettyTool) Name() models.ToolName { return models.ToolName(models.JSONPretty) }

func (t *PrettyTool) Call(ctx context.Context, input string) models.ExecutionResult {
	start := time.Now()
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return models.Failure(string(models.JSONPretty), "ExecutionFailed", time.Since(start))
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.Failure(string(models.JSONPretty), "ExecutionFailed", time.Since(start))
	}
	return models.Succeed(string(models.JSONPretty), string(out), time.Since(start))
}
