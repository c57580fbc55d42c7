package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentkernel/core/internal/security"
)

func TestResolver_JoinRelativeUnderRoot(t *testing.T) {
	r := Resolver{Root: "/workspace"}
	got, err := r.Join("a/b.txt")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	want := filepath.Join("/workspace", "a/b.txt")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolver_JoinRejectsEmptyPath(t *testing.T) {
	r := Resolver{Root: "/workspace"}
	if _, err := r.Join("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeTool := NewWriteTool(dir, nil)
	readTool := NewReadTool(dir, nil, 0)

	writeInput, _ := json.Marshal(map[string]any{"path": "note.txt", "content": "hello"})
	wres := writeTool.Call(context.Background(), string(writeInput))
	if !wres.Success {
		t.Fatalf("write failed: %+v", wres)
	}

	readInput, _ := json.Marshal(map[string]any{"path": "note.txt"})
	rres := readTool.Call(context.Background(), string(readInput))
	if !rres.Success {
		t.Fatalf("read failed: %+v", rres)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(rres.Output), &out); err != nil {
		t.Fatalf("unmarshal read output: %v", err)
	}
	if out["content"] != "hello" {
		t.Fatalf("content = %v, want hello", out["content"])
	}
}

func TestWriteTool_AppendsWhenRequested(t *testing.T) {
	dir := t.TempDir()
	writeTool := NewWriteTool(dir, nil)

	first, _ := json.Marshal(map[string]any{"path": "log.txt", "content": "a"})
	writeTool.Call(context.Background(), string(first))
	second, _ := json.Marshal(map[string]any{"path": "log.txt", "content": "b", "append": true})
	if res := writeTool.Call(context.Background(), string(second)); !res.Success {
		t.Fatalf("append write failed: %+v", res)
	}

	content, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(content) != "ab" {
		t.Fatalf("content = %q, want ab", content)
	}
}

func TestReadTool_MissingFileFails(t *testing.T) {
	dir := t.TempDir()
	readTool := NewReadTool(dir, nil, 0)
	input, _ := json.Marshal(map[string]any{"path": "nope.txt"})
	res := readTool.Call(context.Background(), string(input))
	if res.Success {
		t.Fatal("expected failure for missing file")
	}
}

func managerScopedTo(dir string) *security.Manager {
	policy := security.DefaultPolicy()
	policy.FS.AllowPaths = []string{dir}
	return security.NewManager(policy, nil)
}

func TestReadTool_RawStringInputDeniesTraversal(t *testing.T) {
	dir := t.TempDir()
	readTool := NewReadTool(dir, managerScopedTo(dir), 0)

	res := readTool.Call(context.Background(), "../../etc/passwd")
	if res.Success {
		t.Fatal("expected traversal path to be denied")
	}
	if res.Error != "PathDenied" {
		t.Fatalf("error = %q, want PathDenied", res.Error)
	}
}

func TestReadTool_RawStringInputReadsPlainPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	readTool := NewReadTool(dir, managerScopedTo(dir), 0)

	res := readTool.Call(context.Background(), "note.txt")
	if !res.Success {
		t.Fatalf("read failed: %+v", res)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(res.Output), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["content"] != "hello" {
		t.Fatalf("content = %v, want hello", out["content"])
	}
}

func TestWriteTool_RawStringInputDeniesTraversal(t *testing.T) {
	dir := t.TempDir()
	writeTool := NewWriteTool(dir, managerScopedTo(dir))

	res := writeTool.Call(context.Background(), "../../etc/passwd")
	if res.Success {
		t.Fatal("expected traversal path to be denied")
	}
	if res.Error != "PathDenied" {
		t.Fatalf("error = %q, want PathDenied", res.Error)
	}
}

func TestListTool_RawStringInputDeniesTraversal(t *testing.T) {
	dir := t.TempDir()
	listTool := NewListTool(dir, managerScopedTo(dir))

	res := listTool.Call(context.Background(), "../../etc")
	if res.Success {
		t.Fatal("expected traversal path to be denied")
	}
	if res.Error != "PathDenied" {
		t.Fatalf("error = %q, want PathDenied", res.Error)
	}
}

func TestListTool_ListsWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	listTool := NewListTool(dir, nil)
	res := listTool.Call(context.Background(), "")
	if !res.Success {
		t.Fatalf("list failed: %+v", res)
	}
	var out struct {
		Entries []map[string]any `json:"entries"`
	}
	if err := json.Unmarshal([]byte(res.Output), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Entries) != 1 || out.Entries[0]["name"] != "a.txt" {
		t.Fatalf("entries = %v", out.Entries)
	}
}
