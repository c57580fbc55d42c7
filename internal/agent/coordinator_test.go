package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/agentkernel/core/internal/memory"
	"github.com/agentkernel/core/pkg/models"
)

// fakeAgent is a minimal Agent[string, string] whose behavior each test
// configures via its fields.
type fakeAgent struct {
	observed []string
	calls    []models.ToolCall
	results  []models.ExecutionResult
	update   MemoryUpdate
	action   string
	panicOn  string
}

func (a *fakeAgent) Observe(ctx context.Context, obs string) {
	if obs == a.panicOn {
		panic("boom")
	}
	a.observed = append(a.observed, obs)
}

func (a *fakeAgent) CallTools(ctx context.Context) []models.ToolCall { return a.calls }

func (a *fakeAgent) HandleResult(ctx context.Context, result models.ExecutionResult) {
	a.results = append(a.results, result)
}

func (a *fakeAgent) UpdateContext(ctx context.Context) MemoryUpdate { return a.update }

func (a *fakeAgent) Act(ctx context.Context) string { return a.action }

type fakeDispatcher struct {
	result models.ExecutionResult
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, agentID string, call models.ToolCall) models.ExecutionResult {
	return d.result
}

type fakeMemory struct {
	stored  []memory.Update
	failErr error
}

func (m *fakeMemory) Store(ctx context.Context, update memory.Update) error {
	return m.StoreMany(ctx, []memory.Update{update})
}

func (m *fakeMemory) StoreMany(ctx context.Context, updates []memory.Update) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.stored = append(m.stored, updates...)
	return nil
}

func TestCoordinator_StepRunsFullCycle(t *testing.T) {
	fa := &fakeAgent{
		calls:  []models.ToolCall{{ID: "c1", Tool: models.DispatchStandard(models.HTTPGet), Input: "http://x"}},
		update: MemoryUpdate{Updates: []memory.Update{{Key: "k", Value: []byte("v")}}},
		action: "acted",
	}
	fd := &fakeDispatcher{result: models.Succeed("http_get", "ok", 0)}
	fm := &fakeMemory{}

	c := New(Config[string, string]{
		AgentID:    "a1",
		Agent:      fa,
		Memory:     fm,
		Dispatcher: fd,
	})

	action, err := c.Step(context.Background(), "obs1")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if action != "acted" {
		t.Fatalf("action = %q, want acted", action)
	}
	if len(fa.observed) != 1 || fa.observed[0] != "obs1" {
		t.Fatalf("observed = %v", fa.observed)
	}
	if len(fa.results) != 1 || !fa.results[0].Success {
		t.Fatalf("results = %v", fa.results)
	}
	if len(fm.stored) != 1 {
		t.Fatalf("stored = %v", fm.stored)
	}
}

func TestCoordinator_StepRecoversPanic(t *testing.T) {
	fa := &fakeAgent{panicOn: "explode"}
	c := New(Config[string, string]{
		AgentID:    "a1",
		Agent:      fa,
		Memory:     &fakeMemory{},
		Dispatcher: &fakeDispatcher{},
	})

	action, err := c.Step(context.Background(), "explode")
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if action != "" {
		t.Fatalf("expected zero-value action, got %q", action)
	}
	var coordErr *CoordinatorError
	if !errors.As(err, &coordErr) {
		t.Fatalf("expected *CoordinatorError, got %T", err)
	}
	if coordErr.Kind != CoordinatorErrorAgentPanic {
		t.Fatalf("kind = %v, want AgentPanic", coordErr.Kind)
	}
}

func TestCoordinator_StepReturnsMemoryStoreError(t *testing.T) {
	fa := &fakeAgent{
		update: MemoryUpdate{Updates: []memory.Update{{Key: "k", Value: []byte("v")}}},
	}
	wantErr := errors.New("backend down")
	c := New(Config[string, string]{
		AgentID:    "a1",
		Agent:      fa,
		Memory:     &fakeMemory{failErr: wantErr},
		Dispatcher: &fakeDispatcher{},
	})

	_, err := c.Step(context.Background(), "obs")
	if err == nil {
		t.Fatal("expected memory store error")
	}
	var coordErr *CoordinatorError
	if !errors.As(err, &coordErr) {
		t.Fatalf("expected *CoordinatorError, got %T", err)
	}
	if coordErr.Kind != CoordinatorErrorMemoryStore {
		t.Fatalf("kind = %v, want MemoryStore", coordErr.Kind)
	}
	if !errors.Is(coordErr.Cause, wantErr) {
		t.Fatalf("cause = %v, want %v", coordErr.Cause, wantErr)
	}
}

func TestCoordinator_StepSkipsMemoryStoreWhenNoUpdates(t *testing.T) {
	fa := &fakeAgent{}
	fm := &fakeMemory{}
	c := New(Config[string, string]{
		AgentID:    "a1",
		Agent:      fa,
		Memory:     fm,
		Dispatcher: &fakeDispatcher{},
	})

	if _, err := c.Step(context.Background(), "obs"); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(fm.stored) != 0 {
		t.Fatalf("expected no stores, got %v", fm.stored)
	}
}
