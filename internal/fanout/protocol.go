package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charleschow/funding-arb/internal/events"
)

// Envelope is the wire format for events sent over the fanout WebSocket.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Venue     string          `json:"venue,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      string(evt.Type),
		ID:        evt.ID,
		SessionID: evt.SessionID,
		Venue:     evt.Venue,
		Symbol:    evt.Symbol,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		ID:        env.ID,
		Type:      events.EventType(env.Type),
		SessionID: env.SessionID,
		Venue:     env.Venue,
		Symbol:    env.Symbol,
		Timestamp: env.Timestamp,
	}

	var err error
	switch evt.Type {
	case events.EventOrderUpdate:
		evt.Payload, err = decode[events.OrderEvent](env.Payload)
	case events.EventHedge:
		evt.Payload, err = decode[events.HedgeEvent](env.Payload)
	case events.EventRenewal:
		evt.Payload, err = decode[events.RenewalEvent](env.Payload)
	case events.EventSession:
		evt.Payload, err = decode[events.SessionEvent](env.Payload)
	case events.EventAlert:
		evt.Payload, err = decode[events.AlertEvent](env.Payload)
	case events.EventStreamStatus:
		evt.Payload, err = decode[events.StreamStatusEvent](env.Payload)
	default:
		return evt, fmt.Errorf("unknown event type: %s", env.Type)
	}
	if err != nil {
		return evt, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return evt, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
