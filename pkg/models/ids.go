// Package models defines the wire-level types shared across the
// coordination kernel: validated identifiers, tool calls, execution
// results, and mesh messages. Every other package in this module builds
// on these types rather than defining its own.
package models

import (
	"fmt"
	"regexp"
)

var (
	agentIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	memoryKeyPattern  = regexp.MustCompile(`^[A-Za-z0-9_\-./]{1,256}$`)
	toolNamePattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	meshNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)
)

// AgentID is a validated agent identifier: non-empty, at most 128 ASCII
// alphanumeric characters plus '-' and '_'.
type AgentID string

// NewAgentID validates s and returns it as an AgentID.
func NewAgentID(s string) (AgentID, error) {
	if !agentIDPattern.MatchString(s) {
		return "", &ValidationError{Field: "agent_id", Message: fmt.Sprintf("invalid agent id %q", s)}
	}
	return AgentID(s), nil
}

func (a AgentID) String() string { return string(a) }

// MemoryKey is a validated memory key: 1-256 chars matching
// [A-Za-z0-9_-./].
type MemoryKey string

// NewMemoryKey validates s and returns it as a MemoryKey.
func NewMemoryKey(s string) (MemoryKey, error) {
	if !memoryKeyPattern.MatchString(s) {
		return "", &ValidationError{Field: "memory_key", Message: fmt.Sprintf("invalid memory key %q (len=%d)", s, len(s))}
	}
	return MemoryKey(s), nil
}

func (k MemoryKey) String() string { return string(k) }

// ToolName is a validated custom tool identifier: 1-64 chars, no shell
// metacharacters (the pattern only admits alphanumerics, '-', '_').
type ToolName string

// NewToolName validates s and returns it as a ToolName.
func NewToolName(s string) (ToolName, error) {
	if !toolNamePattern.MatchString(s) {
		return "", &ValidationError{Field: "tool_name", Message: fmt.Sprintf("invalid tool name %q", s)}
	}
	return ToolName(s), nil
}

func (t ToolName) String() string { return string(t) }

// Topic is a validated mesh channel name: 1-128 chars matching
// [a-zA-Z0-9._-].
type Topic string

// NewTopic validates s and returns it as a Topic.
func NewTopic(s string) (Topic, error) {
	if !meshNamePattern.MatchString(s) {
		return "", &ValidationError{Field: "topic", Message: fmt.Sprintf("invalid topic %q", s)}
	}
	return Topic(s), nil
}

func (t Topic) String() string { return string(t) }

// MeshAgentID is the same validator as Topic but names an addressable
// mesh endpoint rather than a broadcast channel.
type MeshAgentID string

// NewMeshAgentID validates s and returns it as a MeshAgentID.
func NewMeshAgentID(s string) (MeshAgentID, error) {
	if !meshNamePattern.MatchString(s) {
		return "", &ValidationError{Field: "mesh_agent_id", Message: fmt.Sprintf("invalid mesh agent id %q", s)}
	}
	return MeshAgentID(s), nil
}

func (a MeshAgentID) String() string { return string(a) }

// BroadcastTopic is the well-known topic all registered presences
// subscribe to.
const BroadcastTopic Topic = "__broadcast__"
