package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/agentkernel/core/pkg/models"
)

func TestBroadcastGather_CollectsAllRepliesWithinDeadline(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())
	ctx := context.Background()

	workers := []models.MeshAgentID{"w1", "w2", "w3"}
	for _, w := range workers {
		w := w
		go func() {
			msg, ok, err := tr.Receive(ctx, w, 2*time.Second)
			if err != nil || !ok {
				return
			}
			GatherReply(ctx, tr, models.MeshAgentID(msg.Metadata["gather_from"]), w, msg.CorrelationID, models.PayloadText, []byte("ack-"+string(w)))
		}()
	}

	results, err := BroadcastGather(ctx, tr, "gatherer", workers, models.PayloadText, []byte("go"), time.Second)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.Reply == nil {
			t.Errorf("worker %s did not reply", r.Worker)
		}
	}
}

func TestBroadcastGather_PartialOnDeadline(t *testing.T) {
	tr := NewInProcess(DefaultBackpressureThresholds)
	defer tr.Close(context.Background())
	ctx := context.Background()

	workers := []models.MeshAgentID{"w1", "w2"}
	// Only w1 replies; w2 never does.
	go func() {
		msg, ok, err := tr.Receive(ctx, "w1", 2*time.Second)
		if err != nil || !ok {
			return
		}
		GatherReply(ctx, tr, models.MeshAgentID(msg.Metadata["gather_from"]), "w1", msg.CorrelationID, models.PayloadText, []byte("ack"))
	}()

	results, err := BroadcastGather(ctx, tr, "gatherer", workers, models.PayloadText, []byte("go"), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := 0
	for _, r := range results {
		if r.Reply != nil {
			got++
		}
	}
	if got != 1 {
		t.Fatalf("expected exactly 1 reply within deadline, got %d", got)
	}
}
