package execution

import (
	"context"
	"fmt"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// interrupt stops a session on operator interrupt or timeout. The primary
// order is queried first. A partially filled order is never cancelled: its
// fills are hedged and the operator decides what to do with the rest.
func (e *Engine) interrupt(calls context.Context, s *session, reason string) (Summary, bool) {
	telemetry.Warnf("engine[%s]: %s, checking %s before stopping", short(s.id), reason, s.order.ID)
	p := s.params

	snap, err := e.queryPrimary(calls, s, s.order.ID)
	if err != nil {
		manual := fmt.Sprintf("status of %s unknown; check it and cancel if still open: arb cancel --venue %s --order-id %s --symbol %s",
			s.order.ID, e.primary.Name(), s.order.ID, p.Symbol)
		e.alert(s, events.AlertFatal, "Order status unknown", manual, s.order.ID)
		return e.finish(s, OutcomeAborted, reason+": final status query failed", manual, err)
	}
	if e.absorb(s, snap) {
		if err := e.applyFill(calls, s); err != nil {
			return e.abortUnhedged(s, err)
		}
	}

	order := s.order
	switch {
	case order.Status == trading.StatusFilled:
		return e.finish(s, OutcomeFilled, reason+": order filled before stop", "", nil)

	case order.Status.IsTerminal():
		if s.cancelRequested {
			return e.finish(s, OutcomeCancelled, reason+": order already cancelled", "", nil)
		}
		return e.finish(s, OutcomeAborted, fmt.Sprintf("%s: order already %s", reason, order.Status), "", nil)

	case order.FilledQuantity.IsPositive():
		manual := fmt.Sprintf("order %s on %s is %s/%s filled and still resting; cancel it with: arb cancel --venue %s --order-id %s --symbol %s",
			order.ID, e.primary.Name(), order.FilledQuantity, order.Size, e.primary.Name(), order.ID, p.Symbol)
		err := fmt.Errorf("%w: %s filled %s of %s", ErrUnhedgedFillOnAbort, order.ID, order.FilledQuantity, order.Size)
		e.alert(s, events.AlertFatal, "Partially filled order left open", manual, order.ID)
		return e.finish(s, OutcomeAborted, reason+": partial fill, order left resting", manual, err)
	}

	ok, err := e.cancelPrimary(calls, s, order.ID)
	if err != nil || !ok {
		manual := fmt.Sprintf("cancel of %s may not have landed; verify and cancel: arb cancel --venue %s --order-id %s --symbol %s",
			order.ID, e.primary.Name(), order.ID, p.Symbol)
		if err == nil {
			err = fmt.Errorf("venue %s declined cancel of %s", e.primary.Name(), order.ID)
		}
		e.alert(s, events.AlertFatal, "Cancel failed", manual, order.ID)
		return e.finish(s, OutcomeAborted, reason+": cancel failed", manual, err)
	}
	s.order.Status = trading.StatusCancelled
	e.publishOrder(s, s.order)
	return e.finish(s, OutcomeCancelled, reason, "", nil)
}
