package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the envelope that flows through the event bus.
// Every domain event (order snapshot, hedge, renewal, summary) is wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	SessionID string
	Venue     string
	Symbol    string
	Timestamp time.Time
	Payload   any
}

// New wraps a payload in a fresh envelope.
func New(t EventType, sessionID, venue, symbol string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		Venue:     venue,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

type EventType string

const (
	// Primary order snapshots as processed by the engine
	EventOrderUpdate EventType = "order_update"
	// Hedge placements on the hedge venue
	EventHedge EventType = "hedge"
	// Cancel-and-replace cycles
	EventRenewal EventType = "renewal"
	// Session lifecycle: state changes and the final summary
	EventSession EventType = "session"
	// Operator-facing alerts
	EventAlert EventType = "alert"
	// Streaming connect/disconnect
	EventStreamStatus EventType = "stream_status"
)
