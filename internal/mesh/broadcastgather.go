package mesh

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentkernel/core/pkg/models"
)

// GatherResult pairs a worker with its reply, or a nil Reply if the
// deadline elapsed before that worker answered.
type GatherResult struct {
	Worker models.MeshAgentID
	Reply  *models.Message
}

// BroadcastGather scatters payload to every worker (via direct Send, not
// the well-known broadcast topic, so each worker's reply can be matched
// to the request) tagged with a shared correlation id, then collects at
// most len(workers) replies on "from"'s mailbox within deadline,
// returning a partial set if the deadline elapses first, per spec §4.6.
func BroadcastGather(ctx context.Context, t Transport, from models.MeshAgentID, workers []models.MeshAgentID, payloadType models.PayloadType, payload []byte, deadline time.Duration) ([]GatherResult, error) {
	corrID := uuid.NewString()
	results := make([]GatherResult, len(workers))
	pending := make(map[models.MeshAgentID]int, len(workers))
	for i, w := range workers {
		results[i] = GatherResult{Worker: w}
		pending[w] = i
		msg := models.Message{
			ID:            uuid.NewString(),
			PayloadType:   payloadType,
			Payload:       payload,
			CorrelationID: corrID,
			Metadata:      map[string]string{"gather_from": string(from)},
			CreatedAt:     time.Now(),
		}
		if err := t.Send(ctx, w, msg); err != nil {
			return nil, err
		}
	}

	deadlineAt := time.Now().Add(deadline)
	for len(pending) > 0 {
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			break
		}
		reply, ok, err := t.Receive(ctx, from, remaining)
		if err != nil {
			return results, err
		}
		if !ok {
			break
		}
		if reply.CorrelationID != corrID {
			continue
		}
		worker := models.MeshAgentID(reply.Metadata["gather_worker"])
		idx, known := pending[worker]
		if !known {
			continue
		}
		r := reply
		results[idx].Reply = &r
		delete(pending, worker)
	}

	return results, nil
}

// GatherReply replies to a BroadcastGather request, stamping the
// metadata the gatherer uses to attribute the reply to this worker.
func GatherReply(ctx context.Context, t Transport, from, worker models.MeshAgentID, correlationID string, payloadType models.PayloadType, payload []byte) error {
	msg := models.Message{
		ID:            uuid.NewString(),
		PayloadType:   payloadType,
		Payload:       payload,
		CorrelationID: correlationID,
		Metadata:      map[string]string{"gather_worker": string(worker)},
		CreatedAt:     time.Now(),
	}
	return t.Send(ctx, from, msg)
}
