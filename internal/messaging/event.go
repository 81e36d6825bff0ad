package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HeaderEventType carries the event type so consumers can route without decoding.
const HeaderEventType = "x-event-type"

// Event types published by the service.
const (
	EventOrderPlaced          = "order.placed"
	EventPaymentSubmitted     = "order.payment_submitted"
	EventPaymentRejected      = "order.payment_rejected"
	EventSettlementCompleted  = "settlement.completed"
	EventReservationDissolved = "reservation.dissolved"
)

// Envelope wraps every event written to the bus.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEnvelope builds an envelope for payload.
func NewEnvelope(eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// PublishEvent wraps payload in an envelope keyed by correlationID and publishes it.
// All events for one aggregate share a key so they land on the same partition.
func PublishEvent(ctx context.Context, client Client, eventType, correlationID string, payload any) error {
	if client == nil {
		return nil
	}
	env, err := NewEnvelope(eventType, correlationID, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return client.Publish(ctx, []byte(correlationID), body, map[string]string{HeaderEventType: eventType})
}

// DecodeEnvelope parses a consumed message body.
func DecodeEnvelope(msg Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType == "" {
		env.EventType = msg.Headers[HeaderEventType]
	}
	return env, nil
}
