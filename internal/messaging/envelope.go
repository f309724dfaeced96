// Package messaging defines the event contracts and bus adapters connecting
// the orchestrator, the external scanner workers and the results aggregator.
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the single wire shape for every inter-service message.
type Envelope struct {
	EventType string          `json:"eventType"`
	EventID   string          `json:"eventId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload, stamping an event ID and a UTC timestamp.
func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType: eventType,
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Marshal serializes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into out.
func (e Envelope) Decode(out interface{}) error {
	return json.Unmarshal(e.Payload, out)
}

// DecodeLenient parses body as an envelope, falling back to treating the
// whole body as a bare payload when no eventType tag is present. Legacy
// publishers send flat messages; consumers accept both.
func DecodeLenient(body []byte, out interface{}) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.EventType != "" && len(env.Payload) > 0 {
		return env.Decode(out)
	}
	return json.Unmarshal(body, out)
}
