package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is the observability payload for an order snapshot.
type OrderEvent struct {
	OrderID        string           `json:"order_id"`
	Venue          string           `json:"venue"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	Status         string           `json:"status"`
	Size           decimal.Decimal  `json:"size"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	AveragePrice   *decimal.Decimal `json:"average_price,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// HedgeEvent is published once per confirmed (or finally failed) hedge.
type HedgeEvent struct {
	PrimaryOrderID string          `json:"primary_order_id"`
	HedgeOrderID   string          `json:"hedge_order_id,omitempty"`
	ClientOrderID  string          `json:"client_order_id"`
	Venue          string          `json:"venue"`
	Side           string          `json:"side"`
	Size           decimal.Decimal `json:"size"`
	Attempts       int             `json:"attempts"`
	Confirmed      bool            `json:"confirmed"`
	Error          string          `json:"error,omitempty"`
}

// RenewalEvent describes one cancel-and-replace cycle.
type RenewalEvent struct {
	OldOrderID   string          `json:"old_order_id"`
	NewOrderID   string          `json:"new_order_id,omitempty"`
	OldPrice     decimal.Decimal `json:"old_price"`
	NewPrice     decimal.Decimal `json:"new_price"`
	Reference    decimal.Decimal `json:"reference"`
	RaceFilled   decimal.Decimal `json:"race_filled"`
	Remaining    decimal.Decimal `json:"remaining"`
	RenewalCount int             `json:"renewal_count"`
}

// SessionEvent carries the engine's state and, once terminal, its summary.
type SessionEvent struct {
	State             string          `json:"state"`
	PrimaryVenue      string          `json:"primary_venue"`
	HedgeVenue        string          `json:"hedge_venue"`
	PrimaryOrderID    string          `json:"primary_order_id"`
	TotalFilled       decimal.Decimal `json:"total_filled"`
	TotalHedged       decimal.Decimal `json:"total_hedged"`
	TotalSize         decimal.Decimal `json:"total_size"`
	RenewalsCount     int             `json:"renewals_count"`
	PriceUpdatesCount int             `json:"price_updates_count"`
	FinalPrice        decimal.Decimal `json:"final_price"`
	Outcome           string          `json:"outcome,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	ManualAction      string          `json:"manual_action,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
}

type AlertLevel string

const (
	AlertWarn  AlertLevel = "warn"
	AlertFatal AlertLevel = "fatal"
)

// AlertEvent needs a human: an unhedged fill or an order left resting.
type AlertEvent struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	OrderID string     `json:"order_id,omitempty"`
}

// StreamStatusEvent signals a streaming session connect/disconnect.
type StreamStatusEvent struct {
	Stream    string `json:"stream"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}
