package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/monitor"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/tracker"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// onQuote runs the tracker against a fresh hedge-venue quote.
func (e *Engine) onQuote(calls context.Context, s *session, mon *monitor.Monitor, q trading.PriceQuote) (Summary, bool) {
	s.priceUpdates++
	p := s.params
	if tracker.ReferencePrice(p.PrimarySide, q).IsPositive() {
		s.lastQuote = q
		s.hasQuote = true
	}
	if s.cancelRequested {
		// The pending replacement is priced from lastQuote when it goes out.
		return Summary{}, false
	}
	dec, st, ok := tracker.Evaluate(p.PrimarySide, q, s.targetPrice, p.OffsetPct, p.TolerancePct)
	if !ok || !dec.Renew || dec.NewPrice.Equal(s.targetPrice) {
		return Summary{}, false
	}
	return e.renew(calls, s, mon, dec.NewPrice, st.Reference)
}

// renew is cancel, re-query, hedge whatever the re-query reveals, replace.
// The replacement is only placed once the old order is seen terminal. A
// cancel the venue accepted but that has not landed yet leaves the session
// waiting on settle re-queries; a declined cancel on a live order is no
// renewal at all.
func (e *Engine) renew(calls context.Context, s *session, mon *monitor.Monitor, price, ref decimal.Decimal) (Summary, bool) {
	s.state = StateRenewing
	old := s.order
	telemetry.Infof("engine[%s]: renewing %s: %s -> %s (reference %s)",
		short(s.id), old.ID, s.targetPrice, price, ref)

	accepted, err := e.cancelPrimary(calls, s, old.ID)
	if err != nil {
		if venue.IsAuthentication(err) {
			return e.finish(s, OutcomeAborted, "cancel rejected: authentication", "", err)
		}
		telemetry.Warnf("engine[%s]: cancel %s failed, keeping order: %v", short(s.id), old.ID, err)
		s.state = StateMonitoring
		return Summary{}, false
	}

	var snap trading.Order
	if accepted {
		s.cancelRequested = true
		snap, err = e.awaitTerminal(calls, s, old.ID)
	} else {
		telemetry.Warnf("engine[%s]: venue declined cancel of %s, checking its status", short(s.id), old.ID)
		snap, err = e.queryPrimary(calls, s, old.ID)
	}
	if err != nil {
		if venue.IsAuthentication(err) {
			return e.finish(s, OutcomeAborted, "re-query rejected: authentication", "", err)
		}
		if !accepted {
			telemetry.Warnf("engine[%s]: re-query of %s failed, keeping order: %v", short(s.id), old.ID, err)
			s.state = StateMonitoring
			return Summary{}, false
		}
		telemetry.Warnf("engine[%s]: re-query of %s failed: %v", short(s.id), old.ID, err)
		return e.deferReplacement(s)
	}

	if snap.FilledQuantity.GreaterThan(old.FilledQuantity) {
		telemetry.Metrics.RenewalRaces.Inc()
		telemetry.Warnf("engine[%s]: %v: %s filled %s more before cancel landed, hedging first",
			short(s.id), ErrRenewalRace, old.ID, snap.FilledQuantity.Sub(old.FilledQuantity))
	}
	if e.absorb(s, snap) {
		if err := e.applyFill(calls, s); err != nil {
			return e.abortUnhedged(s, err)
		}
	}

	status := s.order.Status
	switch {
	case status == trading.StatusFilled:
		return e.replace(calls, s, mon)
	case status.IsTerminal() && !s.cancelRequested:
		return e.finish(s, OutcomeAborted,
			fmt.Sprintf("primary order %s %s by venue", old.ID, status), "", nil)
	case status.IsTerminal():
		return e.replace(calls, s, mon)
	case !accepted:
		telemetry.Infof("engine[%s]: %s still %s, keeping it at %s", short(s.id), old.ID, status, s.targetPrice)
		s.state = StateMonitoring
		return Summary{}, false
	}
	telemetry.Warnf("engine[%s]: %s still %s after cancel", short(s.id), old.ID, status)
	return e.deferReplacement(s)
}

// deferReplacement hands an accepted but unsettled cancel to the settle
// timer, which re-queries the order at the poll interval.
func (e *Engine) deferReplacement(s *session) (Summary, bool) {
	telemetry.Warnf("engine[%s]: replacement for %s deferred, re-querying every %s",
		short(s.id), s.order.ID, s.params.PollInterval)
	s.state = StateMonitoring
	s.armSettle(s.params.PollInterval)
	return Summary{}, false
}

// onSettle re-queries an order whose cancel was accepted but not yet seen
// terminal. A terminal snapshot triggers the replacement through
// settleSnapshot, the same path a monitor update takes.
func (e *Engine) onSettle(calls context.Context, s *session, mon *monitor.Monitor) (Summary, bool) {
	s.settleArmed = false
	if !s.cancelRequested {
		return Summary{}, false
	}
	snap, err := e.queryPrimary(calls, s, s.order.ID)
	if err != nil {
		if venue.IsAuthentication(err) {
			return e.finish(s, OutcomeAborted, "re-query rejected: authentication", "", err)
		}
		telemetry.Warnf("engine[%s]: settle re-query of %s failed: %v", short(s.id), s.order.ID, err)
		s.armSettle(s.params.PollInterval)
		return Summary{}, false
	}
	if sum, done := e.settleSnapshot(calls, s, mon, snap); done {
		return sum, done
	}
	if s.cancelRequested {
		s.armSettle(s.params.PollInterval)
	}
	return Summary{}, false
}

// awaitTerminal re-queries an order whose cancel was requested until it
// reports a terminal status or SettleAttempts runs out. The last snapshot is
// returned either way.
func (e *Engine) awaitTerminal(calls context.Context, s *session, orderID string) (trading.Order, error) {
	var snap trading.Order
	for i := 0; i < e.opts.SettleAttempts; i++ {
		o, err := e.queryPrimary(calls, s, orderID)
		if err != nil {
			return trading.Order{}, err
		}
		snap = o
		if snap.Status.IsTerminal() {
			break
		}
		time.Sleep(e.opts.CancelSettle)
	}
	return snap, nil
}

// replacementPrice is the target derived from the newest quote, falling back
// to the current target when no usable quote has been seen.
func (e *Engine) replacementPrice(s *session) (price, ref decimal.Decimal) {
	p := s.params
	if s.hasQuote {
		ref = tracker.ReferencePrice(p.PrimarySide, s.lastQuote)
		if ref.IsPositive() {
			return tracker.TargetPrice(ref, p.OffsetPct), ref
		}
	}
	return s.targetPrice, s.reference
}

// replace places the replacement for a cancelled order whose fills have
// already been hedged.
func (e *Engine) replace(calls context.Context, s *session, mon *monitor.Monitor) (Summary, bool) {
	old := s.order
	s.cancelRequested = false
	s.disarmSettle()

	if old.Status == trading.StatusFilled || !s.remaining().IsPositive() {
		return e.finish(s, OutcomeFilled, "primary order filled during renewal", "", nil)
	}

	remaining := s.remaining()
	price, ref := e.replacementPrice(s)
	s.carried = s.cumFilled
	order, err := e.placePrimary(calls, s, remaining, price)
	if err != nil {
		return e.finish(s, OutcomeAborted,
			fmt.Sprintf("replacement for %s failed, nothing left resting", old.ID), "", err)
	}

	oldPrice := s.targetPrice
	s.order = order
	s.targetPrice = price
	s.reference = ref
	s.renewals++
	telemetry.Metrics.Renewals.Inc()
	mon.Retarget(order.ID)

	e.bus.Publish(events.New(events.EventRenewal, s.id, e.primary.Name(), s.params.Symbol, events.RenewalEvent{
		OldOrderID:   old.ID,
		NewOrderID:   order.ID,
		OldPrice:     oldPrice,
		NewPrice:     s.targetPrice,
		Reference:    s.reference,
		RaceFilled:   old.FilledQuantity,
		Remaining:    remaining,
		RenewalCount: s.renewals,
	}))
	e.publishOrder(s, order)
	telemetry.Infof("engine[%s]: renewal #%d: %s replaced by %s, %s @ %s",
		short(s.id), s.renewals, old.ID, order.ID, remaining, s.targetPrice)

	s.state = StateMonitoring
	e.publishSession(s, "", "", "")
	return e.settleSnapshot(calls, s, mon, order)
}
