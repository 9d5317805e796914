package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/charleschow/funding-arb/internal/core/retry"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// applyFill advances cumFilled to what the current order snapshot implies
// and hedges the difference. Replaying a snapshot is a no-op.
func (e *Engine) applyFill(calls context.Context, s *session) error {
	filled := s.sessionFilled(s.order.FilledQuantity)
	if filled.GreaterThan(s.cumFilled) {
		telemetry.Infof("engine[%s]: fill +%s on %s (session %s/%s)",
			short(s.id), filled.Sub(s.cumFilled), s.order.ID, filled, s.params.Size)
		s.cumFilled = filled
		s.lastFillAt = time.Now()
	}
	return e.hedgePending(calls, s)
}

// hedgePending places one MARKET order for cumFilled - cumHedged.
// cumHedged only moves after the venue confirms the order; retries reuse the
// client order id so a venue that saw a timed-out attempt dedupes it.
func (e *Engine) hedgePending(calls context.Context, s *session) error {
	pending := s.cumFilled.Sub(s.cumHedged)
	if !pending.IsPositive() {
		return nil
	}

	prev := s.state
	s.state = StateHedging
	defer func() { s.state = prev }()

	p := s.params
	req := venue.PlaceRequest{
		Symbol:        p.Symbol,
		Side:          p.HedgeSide,
		Type:          trading.OrderTypeMarket,
		Size:          pending,
		ClientOrderID: uuid.NewString(),
	}

	attempts := 0
	var hedge trading.Order
	err := retry.Do(calls, e.opts.HedgeAttempts, e.opts.Backoff, venue.IsTransient, func(attempt int) error {
		attempts = attempt + 1
		if attempt > 0 {
			telemetry.Metrics.HedgeRetries.Inc()
			telemetry.Warnf("engine[%s]: retrying hedge %s %s on %s (attempt %d)",
				short(s.id), p.HedgeSide, pending, e.hedge.Name(), attempts)
		}
		ctx, cancel := context.WithTimeout(calls, e.opts.CallTimeout)
		defer cancel()
		start := time.Now()
		o, err := e.hedge.Place(ctx, req)
		telemetry.Metrics.AdapterLatency.Since(start)
		hedge = o
		return err
	})

	evt := events.HedgeEvent{
		PrimaryOrderID: s.order.ID,
		ClientOrderID:  req.ClientOrderID,
		Venue:          e.hedge.Name(),
		Side:           string(p.HedgeSide),
		Size:           pending,
		Attempts:       attempts,
	}
	if err != nil {
		telemetry.Metrics.HedgeFailures.Inc()
		evt.Error = err.Error()
		e.bus.Publish(events.New(events.EventHedge, s.id, e.hedge.Name(), p.Symbol, evt))
		return fmt.Errorf("%w: %s %s on %s after %d attempts: %w",
			ErrUnhedgedFill, p.HedgeSide, pending, e.hedge.Name(), attempts, err)
	}

	s.cumHedged = s.cumHedged.Add(pending)
	telemetry.Metrics.HedgesPlaced.Inc()
	if !s.lastFillAt.IsZero() {
		telemetry.Metrics.HedgeLatency.Since(s.lastFillAt)
	}

	hedge = fillPlaced(hedge, req, e.hedge.Name())
	evt.HedgeOrderID = hedge.ID
	evt.Confirmed = true
	e.bus.Publish(events.New(events.EventHedge, s.id, e.hedge.Name(), p.Symbol, evt))
	e.publishOrder(s, hedge)

	telemetry.Infof("engine[%s]: hedged %s %s on %s (order %s), hedged %s/%s",
		short(s.id), p.HedgeSide, pending, e.hedge.Name(), hedge.ID, s.cumHedged, s.cumFilled)
	return nil
}

// abortUnhedged ends the session after a hedge could not be placed. The
// primary order is left as is: cancelling it would not undo the fill.
func (e *Engine) abortUnhedged(s *session, err error) (Summary, bool) {
	p := s.params
	gap := s.cumFilled.Sub(s.cumHedged)
	manual := fmt.Sprintf("place %s %s %s on %s by hand; primary order %s on %s (%s/%s filled) was not touched",
		p.HedgeSide, gap, p.Symbol, e.hedge.Name(), s.order.ID, e.primary.Name(), s.order.FilledQuantity, s.order.Size)
	e.alert(s, events.AlertFatal, "Unhedged fill", manual, s.order.ID)
	return e.finish(s, OutcomeAborted, "hedge placement failed", manual, err)
}
