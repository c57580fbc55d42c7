package models

import "time"

// StandardTool is the closed enum of built-in tools. The set is fixed at
// compile time to bound metric label cardinality (at most 20 distinct
// tool labels are ever emitted for the standard set).
type StandardTool string

const (
	HTTPGet       StandardTool = "http_get"
	HTTPPost      StandardTool = "http_post"
	FileRead      StandardTool = "file_read"
	FileWrite     StandardTool = "file_write"
	FileList      StandardTool = "file_list"
	JSONParse     StandardTool = "json_parse"
	JSONExtract   StandardTool = "json_extract"
	JSONPretty    StandardTool = "json_pretty"
	TextUppercase StandardTool = "text_uppercase"
	TextLowercase StandardTool = "text_lowercase"
	TextAnalyze   StandardTool = "text_analyze"
)

// StandardTools lists every member of the closed enum, in registration
// order.
var StandardTools = []StandardTool{
	HTTPGet, HTTPPost, FileRead, FileWrite, FileList,
	JSONParse, JSONExtract, JSONPretty,
	TextUppercase, TextLowercase, TextAnalyze,
}

// IsValid reports whether s names a member of the closed standard set.
func (s StandardTool) IsValid() bool {
	for _, t := range StandardTools {
		if t == s {
			return true
		}
	}
	return false
}

// ToolDispatch is the tagged union naming which tool a ToolCall invokes:
// either a member of the closed StandardTool enum, or a registered
// custom ToolName. Exactly one of Standard/Custom is set.
type ToolDispatch struct {
	Standard StandardTool
	Custom   ToolName
}

// IsStandard reports whether this dispatch names a standard tool.
func (d ToolDispatch) IsStandard() bool { return d.Standard != "" }

// Name returns the dispatch target's name regardless of which arm is set.
func (d ToolDispatch) Name() string {
	if d.IsStandard() {
		return string(d.Standard)
	}
	return string(d.Custom)
}

// DispatchStandard builds a ToolDispatch naming a standard tool.
func DispatchStandard(t StandardTool) ToolDispatch { return ToolDispatch{Standard: t} }

// DispatchCustom builds a ToolDispatch naming a custom tool.
func DispatchCustom(name ToolName) ToolDispatch { return ToolDispatch{Custom: name} }

// ToolCall is one request to invoke a tool with a plain string input.
type ToolCall struct {
	ID    string
	Tool  ToolDispatch
	Input string
}

// ExecutionResult is the outcome of dispatching one ToolCall. Error is
// the stable machine-readable error kind (e.g. "PathDenied", "Timeout");
// it is empty when Success is true.
type ExecutionResult struct {
	Success       bool
	Output        string
	Error         string
	DurationMS    int64
	ToolName      string
	CorrelationID string
}

// Duration returns DurationMS as a time.Duration.
func (r ExecutionResult) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Failure builds a failed ExecutionResult.
func Failure(toolName, errKind string, d time.Duration) ExecutionResult {
	return ExecutionResult{
		Success:    false,
		Error:      errKind,
		DurationMS: d.Milliseconds(),
		ToolName:   toolName,
	}
}

// Succeed builds a successful ExecutionResult.
func Succeed(toolName, output string, d time.Duration) ExecutionResult {
	return ExecutionResult{
		Success:    true,
		Output:     output,
		DurationMS: d.Milliseconds(),
		ToolName:   toolName,
	}
}
