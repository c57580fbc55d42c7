package mesh

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentkernel/core/pkg/models"
)

// Request sends payload to "to" with a fresh correlation id and blocks
// on "from"'s mailbox until a reply carrying that correlation id
// arrives or timeout elapses, per spec §4.6's request/reply pattern.
// Replies observed with a different correlation id (e.g. a stale
// message left over from an earlier exchange) are discarded rather than
// requeued; callers that need strict mailbox isolation per exchange
// should use a dedicated reply agent id.
func Request(ctx context.Context, t Transport, from, to models.MeshAgentID, payloadType models.PayloadType, payload []byte, timeout time.Duration) (models.Message, error) {
	corrID := uuid.NewString()
	msg := models.Message{
		ID:            uuid.NewString(),
		PayloadType:   payloadType,
		Payload:       payload,
		CorrelationID: corrID,
		CreatedAt:     time.Now(),
	}
	if err := t.Send(ctx, to, msg); err != nil {
		return models.Message{}, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return models.Message{}, &models.MeshError{Kind: models.MeshReplyTimeout, Message: string(to)}
		}
		reply, ok, err := t.Receive(ctx, from, remaining)
		if err != nil {
			return models.Message{}, err
		}
		if !ok {
			return models.Message{}, &models.MeshError{Kind: models.MeshReplyTimeout, Message: string(to)}
		}
		if reply.CorrelationID == corrID {
			return reply, nil
		}
	}
}

// Reply sends a response to "to" carrying the correlation id of the
// request it answers, completing the waiting Request call.
func Reply(ctx context.Context, t Transport, to models.MeshAgentID, correlationID string, payloadType models.PayloadType, payload []byte) error {
	msg := models.Message{
		ID:            uuid.NewString(),
		PayloadType:   payloadType,
		Payload:       payload,
		CorrelationID: correlationID,
		CreatedAt:     time.Now(),
	}
	return t.Send(ctx, to, msg)
}
