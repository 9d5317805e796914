package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

type State string

const (
	StateInit        State = "INIT"
	StateOrderPlaced State = "ORDER_PLACED"
	StateMonitoring  State = "MONITORING"
	StateRenewing    State = "RENEWING"
	StateHedging     State = "HEDGING"
	StateTerminal    State = "TERMINAL"
)

type Outcome string

const (
	OutcomeFilled    Outcome = "FILLED"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomeAborted   Outcome = "ABORTED"
)

// session is the mutable state of one open/close operation. It is only
// touched from the engine loop goroutine.
type session struct {
	id     string
	params Params
	state  State

	// order is the latest snapshot of the currently resting primary order.
	order trading.Order
	// carried is what replaced primary orders filled before they were cancelled.
	carried decimal.Decimal

	cumFilled decimal.Decimal
	cumHedged decimal.Decimal

	targetPrice decimal.Decimal
	reference   decimal.Decimal

	renewals     int
	priceUpdates int
	startedAt    time.Time
	lastFillAt   time.Time

	// lastQuote is the newest usable hedge-venue quote. A replacement is
	// priced from it, not from the quote that triggered the renewal.
	lastQuote trading.PriceQuote
	hasQuote  bool

	// cancelRequested is set between an accepted renewal cancel and the
	// replacement. While set, a CANCELLED snapshot for the current order is
	// ours, and settle re-queries the order until it turns terminal.
	cancelRequested bool
	settle          *time.Timer
	settleArmed     bool
}

func newSession(p Params) *session {
	return &session{
		id:        p.SessionID,
		params:    p,
		state:     StateInit,
		startedAt: time.Now(),
	}
}

// armSettle schedules the next re-query of an order whose cancel has not
// landed yet.
func (s *session) armSettle(d time.Duration) {
	if s.settle == nil {
		s.settle = time.NewTimer(d)
	} else {
		s.settle.Reset(d)
	}
	s.settleArmed = true
}

func (s *session) disarmSettle() {
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settleArmed = false
}

// settleC is nil unless a settle re-query is pending.
func (s *session) settleC() <-chan time.Time {
	if !s.settleArmed {
		return nil
	}
	return s.settle.C
}

// sessionFilled is the session-wide filled quantity implied by a snapshot of
// the current order.
func (s *session) sessionFilled(orderFilled decimal.Decimal) decimal.Decimal {
	return s.carried.Add(orderFilled)
}

func (s *session) remaining() decimal.Decimal {
	r := s.params.Size.Sub(s.cumFilled)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Summary is reported once the session is terminal.
type Summary struct {
	SessionID         string
	PrimaryOrderID    string
	TotalFilled       decimal.Decimal
	TotalHedged       decimal.Decimal
	TotalSize         decimal.Decimal
	RenewalsCount     int
	PriceUpdatesCount int
	FinalPrice        decimal.Decimal
	Outcome           Outcome
	Reason            string
	// ManualAction is set when an operator has to finish the job.
	ManualAction string
	Err          error
	Duration     time.Duration
}

func (s *session) summary(outcome Outcome, reason, manual string, err error) Summary {
	return Summary{
		SessionID:         s.id,
		PrimaryOrderID:    s.order.ID,
		TotalFilled:       s.cumFilled,
		TotalHedged:       s.cumHedged,
		TotalSize:         s.params.Size,
		RenewalsCount:     s.renewals,
		PriceUpdatesCount: s.priceUpdates,
		FinalPrice:        s.targetPrice,
		Outcome:           outcome,
		Reason:            reason,
		ManualAction:      manual,
		Err:               err,
		Duration:          time.Since(s.startedAt),
	}
}
