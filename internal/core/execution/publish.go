package execution

import (
	"fmt"
	"time"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

func (e *Engine) publishOrder(s *session, o trading.Order) {
	evt := events.OrderEvent{
		OrderID:        o.ID,
		Venue:          o.Venue,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Status:         string(o.Status),
		Size:           o.Size,
		FilledQuantity: o.FilledQuantity,
		Timestamp:      o.UpdatedAt,
	}
	if o.AveragePrice.Valid {
		avg := o.AveragePrice.Decimal
		evt.AveragePrice = &avg
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	e.bus.Publish(events.New(events.EventOrderUpdate, s.id, o.Venue, s.params.Symbol, evt))
}

// publishSession reports session progress. outcome is empty until terminal.
func (e *Engine) publishSession(s *session, outcome Outcome, reason, manual string) {
	p := s.params
	e.bus.Publish(events.New(events.EventSession, s.id, e.primary.Name(), p.Symbol, events.SessionEvent{
		State:             string(s.state),
		PrimaryVenue:      e.primary.Name(),
		HedgeVenue:        e.hedge.Name(),
		PrimaryOrderID:    s.order.ID,
		TotalFilled:       s.cumFilled,
		TotalHedged:       s.cumHedged,
		TotalSize:         p.Size,
		RenewalsCount:     s.renewals,
		PriceUpdatesCount: s.priceUpdates,
		FinalPrice:        s.targetPrice,
		Outcome:           string(outcome),
		Reason:            reason,
		ManualAction:      manual,
		StartedAt:         s.startedAt,
	}))
}

// publishStreamStatus is handed to the monitor, which calls it from its own
// goroutine. It only reads fields fixed before the monitor starts.
func (e *Engine) publishStreamStatus(s *session) func(venue.StreamStatus) {
	id, symbol := s.id, s.params.Symbol
	return func(st venue.StreamStatus) {
		evt := events.StreamStatusEvent{Stream: st.Stream, Connected: st.Connected}
		if st.Err != nil {
			evt.Error = st.Err.Error()
		}
		e.bus.Publish(events.New(events.EventStreamStatus, id, st.Venue, symbol, evt))
	}
}

func (e *Engine) alert(s *session, level events.AlertLevel, title, msg, orderID string) {
	e.bus.Publish(events.New(events.EventAlert, s.id, e.primary.Name(), s.params.Symbol, events.AlertEvent{
		Level:   level,
		Title:   title,
		Message: msg,
		OrderID: orderID,
	}))
}

// onFeedLost reports a price feed that stopped for good. The session goes on
// with the order at its current price and no further renewals.
func (e *Engine) onFeedLost(s *session, err error) {
	telemetry.Errorf("engine[%s]: price feed on %s stopped, renewals off: %v", short(s.id), e.hedge.Name(), err)
	e.publishStreamStatus(s)(venue.StreamStatus{
		Venue:  e.hedge.Name(),
		Stream: "book",
		At:     time.Now(),
		Err:    err,
	})
	e.alert(s, events.AlertWarn, "Price tracking stopped",
		fmt.Sprintf("book stream for %s on %s failed: %v; order %s stays at %s without renewals",
			s.params.Symbol, e.hedge.Name(), err, s.order.ID, s.targetPrice), s.order.ID)
}
