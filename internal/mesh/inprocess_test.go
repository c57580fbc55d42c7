package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/agentkernel/core/pkg/models"
)

func TestInProcess_SendReceive(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())

	ctx := context.Background()
	msg := models.Message{ID: "m1", PayloadType: models.PayloadText, Payload: []byte("ping"), CreatedAt: time.Now()}
	if err := tr.Send(ctx, "agent-b", msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, ok, err := tr.Receive(ctx, "agent-b", time.Second)
	if err != nil || !ok {
		t.Fatalf("receive: ok=%v err=%v", ok, err)
	}
	if string(got.Payload) != "ping" {
		t.Fatalf("got payload %q, want ping", got.Payload)
	}
}

func TestInProcess_Receive_TimeoutWhenEmpty(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())

	_, ok, err := tr.Receive(context.Background(), "nobody", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no message within timeout")
	}
}

func TestInProcess_Send_BackpressureSaturated(t *testing.T) {
	tr := NewInProcess(BackpressureThresholds{WarningDepth: 1, CriticalDepth: 2, HardCap: 2})
	ctx := context.Background()
	msg := models.Message{ID: "m", PayloadType: models.PayloadText, Payload: []byte("x"), CreatedAt: time.Now()}

	if err := tr.Send(ctx, "a", msg); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := tr.Send(ctx, "a", msg); err != nil {
		t.Fatalf("send 2 (at hard cap - 1): %v", err)
	}
	if err := tr.Send(ctx, "a", msg); err == nil {
		t.Fatal("expected backpressure saturation at hard cap")
	} else if merr, ok := err.(*models.MeshError); !ok || merr.Kind != models.MeshBackpressureSaturated {
		t.Fatalf("expected MeshBackpressureSaturated, got %v", err)
	}
}

func TestInProcess_PublishSubscribe_FanOut(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())
	ctx := context.Background()

	sub1, err := tr.Subscribe(ctx, "news")
	if err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	sub2, err := tr.Subscribe(ctx, "news")
	if err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}
	defer sub1.Close()
	defer sub2.Close()

	msg := models.Message{ID: "m", PayloadType: models.PayloadText, Payload: []byte("hi"), CreatedAt: time.Now()}
	if err := tr.Publish(ctx, "news", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-sub1.Messages():
		if string(got.Payload) != "hi" {
			t.Fatalf("sub1 got %q", got.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("sub1 did not receive published message")
	}
	select {
	case got := <-sub2.Messages():
		if string(got.Payload) != "hi" {
			t.Fatalf("sub2 got %q", got.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("sub2 did not receive published message")
	}
}

func TestInProcess_Broadcast_UsesWellKnownTopic(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())
	ctx := context.Background()

	sub, err := tr.Subscribe(ctx, models.BroadcastTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	msg := models.Message{ID: "m", PayloadType: models.PayloadText, Payload: []byte("all"), CreatedAt: time.Now()}
	if err := tr.Broadcast(ctx, msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case got := <-sub.Messages():
		if string(got.Payload) != "all" {
			t.Fatalf("got %q", got.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast subscriber did not receive message")
	}
}

func TestInProcess_Presence_TTLExpiry(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())
	ctx := context.Background()

	if err := tr.RegisterPresence(ctx, "worker-1", 10*time.Millisecond); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !tr.IsPresent(ctx, "worker-1") {
		t.Fatal("expected presence immediately after registration")
	}
	time.Sleep(30 * time.Millisecond)
	if tr.IsPresent(ctx, "worker-1") {
		t.Fatal("expected presence to have expired")
	}
}

func TestInProcess_QueueDepth(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())
	ctx := context.Background()
	msg := models.Message{ID: "m", PayloadType: models.PayloadText, Payload: []byte("x"), CreatedAt: time.Now()}

	tr.Send(ctx, "a", msg)
	tr.Send(ctx, "a", msg)
	depth, err := tr.QueueDepth(ctx, "a")
	if err != nil {
		t.Fatalf("queue depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("depth = %d, want 2", depth)
	}
}
