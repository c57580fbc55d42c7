package tools

import (
	"context"
	"testing"
	"time"

	"github.com/agentkernel/core/pkg/models"
)

type stubTool struct {
	name   models.ToolName
	result models.ExecutionResult
}

func (s *stubTool) Name() models.ToolName { return s.name }

func (s *stubTool) Call(ctx context.Context, input string) models.ExecutionResult {
	return s.result
}

func TestRegistry_DispatchResolvesStandardTool(t *testing.T) {
	r := NewRegistry(Config{})
	tool := &stubTool{name: models.ToolName(models.TextUppercase), result: models.Succeed("text_uppercase", "OK", time.Millisecond)}
	if err := r.RegisterStandard(models.TextUppercase, tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	result := r.Dispatch(context.Background(), "agent-1", models.ToolCall{
		Tool:  models.DispatchStandard(models.TextUppercase),
		Input: "hi",
	})
	if !result.Success || result.Output != "OK" {
		t.Fatalf("got %+v", result)
	}
}

func TestRegistry_DispatchUnresolvedToolFails(t *testing.T) {
	r := NewRegistry(Config{})
	result := r.Dispatch(context.Background(), "agent-1", models.ToolCall{
		Tool: models.DispatchCustom(models.ToolName("does_not_exist")),
	})
	if result.Success {
		t.Fatal("expected failure for unresolved tool")
	}
	if result.Error != "NotFound" {
		t.Fatalf("error = %q, want NotFound", result.Error)
	}
}

func TestRegistry_RegisterStandardRejectsMismatchedName(t *testing.T) {
	r := NewRegistry(Config{})
	tool := &stubTool{name: models.ToolName("wrong_name")}
	if err := r.RegisterStandard(models.TextUppercase, tool); err == nil {
		t.Fatal("expected error for name mismatch")
	}
}

func TestRegistry_RegisterStandardRejectsInvalidEnumMember(t *testing.T) {
	r := NewRegistry(Config{})
	tool := &stubTool{name: models.ToolName("not_standard")}
	if err := r.RegisterStandard(models.StandardTool("not_standard"), tool); err == nil {
		t.Fatal("expected error for non-member of the standard enum")
	}
}

func TestRegistry_RegisterCustomRejectsDuplicate(t *testing.T) {
	r := NewRegistry(Config{})
	tool := &stubTool{name: models.ToolName("custom1")}
	if err := r.Register(tool); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(tool); err == nil {
		t.Fatal("expected error registering the same custom tool twice")
	}
}

func TestRegistry_RegisterCustomRejectsOverBudget(t *testing.T) {
	r := NewRegistry(Config{})
	for i := 0; i < maxCustomTools; i++ {
		name := models.ToolName(string(rune('a' + i)))
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	over := &stubTool{name: models.ToolName("one_too_many")}
	if err := r.Register(over); err == nil {
		t.Fatal("expected error once custom tool budget is exhausted")
	}
}

func TestRegistry_DispatchConvertsDeadlineExceededToTimeout(t *testing.T) {
	r := NewRegistry(Config{})
	tool := &stubTool{name: models.ToolName("slow"), result: models.Succeed("slow", "too late", 0)}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	result := r.Dispatch(ctx, "agent-1", models.ToolCall{Tool: models.DispatchCustom("slow")})
	if result.Success {
		t.Fatal("expected timeout conversion when ctx is already past its deadline")
	}
	if result.Error != "Timeout" {
		t.Fatalf("error = %q, want Timeout", result.Error)
	}
}
