package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentkernel/core/pkg/models"
)

// Pipeline is an ordered chain of agent mailboxes: stage k reads from
// its own mailbox and, having produced output, advances it to stage
// k+1 via Advance. Backpressure at stage k+1's mailbox surfaces back to
// whichever caller invoked Advance for stage k, so a saturated
// downstream stage naturally stalls the stage feeding it rather than
// silently dropping work, per spec §4.6.
type Pipeline struct {
	transport Transport
	stages    []models.MeshAgentID
}

// NewPipeline builds a Pipeline over stages in order; stages[0] is the
// entry point, stages[len-1] the terminal stage.
func NewPipeline(transport Transport, stages []models.MeshAgentID) *Pipeline {
	return &Pipeline{transport: transport, stages: append([]models.MeshAgentID(nil), stages...)}
}

// Submit sends msg to the first stage.
func (p *Pipeline) Submit(ctx context.Context, payloadType models.PayloadType, payload []byte) error {
	if len(p.stages) == 0 {
		return fmt.Errorf("mesh: pipeline has no stages")
	}
	msg := models.Message{
		ID:          uuid.NewString(),
		PayloadType: payloadType,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
	return p.transport.Send(ctx, p.stages[0], msg)
}

// Receive pops the next message waiting at stageIndex's mailbox.
func (p *Pipeline) Receive(ctx context.Context, stageIndex int, timeout time.Duration) (models.Message, bool, error) {
	if stageIndex < 0 || stageIndex >= len(p.stages) {
		return models.Message{}, false, fmt.Errorf("mesh: pipeline stage index %d out of range", stageIndex)
	}
	return p.transport.Receive(ctx, p.stages[stageIndex], timeout)
}

// Advance forwards msg from stageIndex to stageIndex+1. Calling Advance
// on the final stage index is a caller error: the terminal stage's
// output is the pipeline's result and has no further stage to advance
// to.
func (p *Pipeline) Advance(ctx context.Context, stageIndex int, msg models.Message) error {
	if stageIndex < 0 || stageIndex >= len(p.stages)-1 {
		return fmt.Errorf("mesh: no stage after index %d", stageIndex)
	}
	return p.transport.Send(ctx, p.stages[stageIndex+1], msg)
}

// IsTerminal reports whether stageIndex is the pipeline's last stage.
func (p *Pipeline) IsTerminal(stageIndex int) bool {
	return stageIndex == len(p.stages)-1
}

// StageCount returns the number of stages in the pipeline.
func (p *Pipeline) StageCount() int { return len(p.stages) }
