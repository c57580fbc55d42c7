package mesh

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentkernel/core/pkg/models"
)

// wireEnvelope is the on-wire shape of a Message per spec §6: JSON for
// Text and Json payloads (human-readable), base64-wrapped JSON for
// Binary. models.Message keeps Payload as raw bytes internally; this
// file is the only place that shape is translated to/from wire bytes.
type wireEnvelope struct {
	ID            string            `json:"id"`
	PayloadType   models.PayloadType `json:"payload_type"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Retries       int               `json:"retries,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
}

// EncodeMessage serializes msg to its wire envelope form.
func EncodeMessage(msg models.Message) ([]byte, error) {
	var payload json.RawMessage
	switch msg.PayloadType {
	case models.PayloadText:
		b, err := json.Marshal(string(msg.Payload))
		if err != nil {
			return nil, fmt.Errorf("mesh: encode text payload: %w", err)
		}
		payload = b
	case models.PayloadJSON:
		if !json.Valid(msg.Payload) {
			return nil, fmt.Errorf("mesh: json payload is not valid JSON")
		}
		payload = json.RawMessage(msg.Payload)
	case models.PayloadBinary:
		b, err := json.Marshal(base64.StdEncoding.EncodeToString(msg.Payload))
		if err != nil {
			return nil, fmt.Errorf("mesh: encode binary payload: %w", err)
		}
		payload = b
	default:
		return nil, fmt.Errorf("mesh: unknown payload type %q", msg.PayloadType)
	}

	env := wireEnvelope{
		ID:            msg.ID,
		PayloadType:   msg.PayloadType,
		Payload:       payload,
		Metadata:      msg.Metadata,
		CorrelationID: msg.CorrelationID,
		CreatedAt:     msg.CreatedAt,
		Retries:       msg.Retries,
		ExpiresAt:     msg.ExpiresAt,
	}
	return json.Marshal(env)
}

// DecodeMessage parses a wire envelope back into a Message, the inverse
// of EncodeMessage.
func DecodeMessage(data []byte) (models.Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.Message{}, fmt.Errorf("mesh: decode envelope: %w", err)
	}

	var payload []byte
	switch env.PayloadType {
	case models.PayloadText:
		var s string
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return models.Message{}, fmt.Errorf("mesh: decode text payload: %w", err)
		}
		payload = []byte(s)
	case models.PayloadJSON:
		payload = []byte(env.Payload)
	case models.PayloadBinary:
		var s string
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return models.Message{}, fmt.Errorf("mesh: decode binary payload: %w", err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return models.Message{}, fmt.Errorf("mesh: decode base64 payload: %w", err)
		}
		payload = b
	default:
		return models.Message{}, fmt.Errorf("mesh: unknown payload type %q", env.PayloadType)
	}

	return models.Message{
		ID:            env.ID,
		PayloadType:   env.PayloadType,
		Payload:       payload,
		Metadata:      env.Metadata,
		CorrelationID: env.CorrelationID,
		CreatedAt:     env.CreatedAt,
		Retries:       env.Retries,
		ExpiresAt:     env.ExpiresAt,
	}, nil
}
