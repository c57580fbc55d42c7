// Package mesh implements the multi-agent messaging layer of spec §4.6:
// a transport capability set (send/receive, broadcast, publish/
// subscribe, presence), backpressure signaling over mailbox depth, a
// bounded dead-letter queue, and the coordination patterns built on top
// (request/reply, supervisor/worker, broadcast/gather, pipeline).
package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/agentkernel/core/pkg/models"
)

// BackpressureLevel is the producer-visible saturation signal computed
// from mailbox/topic depth against configured thresholds.
type BackpressureLevel int

const (
	// Normal: proceed.
	Normal BackpressureLevel = iota
	// Warning: producers may throttle.
	Warning
	// Critical: producers must throttle or buffer locally.
	Critical
)

func (l BackpressureLevel) String() string {
	switch l {
	case Warning:
		return "Warning"
	case Critical:
		return "Critical"
	default:
		return "Normal"
	}
}

// BackpressureThresholds configures the three signal levels plus the
// hard cap beyond which sends are rejected outright.
type BackpressureThresholds struct {
	WarningDepth  int
	CriticalDepth int
	HardCap       int
}

// DefaultBackpressureThresholds mirrors a reasonably small in-memory
// mailbox: warn early, reject well before memory becomes a concern.
var DefaultBackpressureThresholds = BackpressureThresholds{
	WarningDepth:  100,
	CriticalDepth: 500,
	HardCap:       1000,
}

// Level classifies depth against the configured thresholds.
func (t BackpressureThresholds) Level(depth int) BackpressureLevel {
	switch {
	case depth >= t.CriticalDepth:
		return Critical
	case depth >= t.WarningDepth:
		return Warning
	default:
		return Normal
	}
}

// Exceeds reports whether depth is at or beyond the hard cap; a send at
// this depth must be rejected with MeshBackpressureSaturated.
func (t BackpressureThresholds) Exceeds(depth int) bool {
	return t.HardCap > 0 && depth >= t.HardCap
}

// Subscription is a live pub/sub stream returned by Transport.Subscribe.
// The channel is closed when the subscription is closed or the
// transport disconnects; it is finite only on disconnect per spec §4.6.
type Subscription interface {
	Messages() <-chan models.Message
	Close() error
}

// Transport is the capability set a mesh backend implements, per spec
// §4.6: point-to-point send/receive, broadcast, topic pub/sub, and
// presence registration. Point-to-point delivery is at-least-once
// (persistent mailbox + pop semantics); pub/sub is at-most-once (lost on
// subscriber absence, matching Redis semantics).
type Transport interface {
	Send(ctx context.Context, agentID models.MeshAgentID, msg models.Message) error
	Receive(ctx context.Context, agentID models.MeshAgentID, timeout time.Duration) (models.Message, bool, error)
	Broadcast(ctx context.Context, msg models.Message) error
	Publish(ctx context.Context, topic models.Topic, msg models.Message) error
	Subscribe(ctx context.Context, topic models.Topic) (Subscription, error)
	RegisterPresence(ctx context.Context, agentID models.MeshAgentID, ttl time.Duration) error
	DeregisterPresence(ctx context.Context, agentID models.MeshAgentID) error
	QueueDepth(ctx context.Context, agentID models.MeshAgentID) (int, error)
	Close(ctx context.Context) error
}

// ValidateMessage enforces spec §3's message invariants before a
// transport accepts msg: payload/ContentType agreement and the
// configured maximum serialized size.
func ValidateMessage(msg models.Message, maxBytes int) error {
	if ct, ok := msg.Metadata["ContentType"]; ok {
		if ct != string(msg.PayloadType) {
			return &models.ValidationError{Field: "content_type", Message: fmt.Sprintf("metadata ContentType %q does not match payload type %q", ct, msg.PayloadType)}
		}
	}
	if maxBytes <= 0 {
		maxBytes = models.MaxMessageBytes
	}
	encoded, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	if len(encoded) > maxBytes {
		return &models.ValidationError{Field: "message", Message: fmt.Sprintf("serialized size %d exceeds max %d bytes", len(encoded), maxBytes)}
	}
	return nil
}
