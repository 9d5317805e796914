package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/charleschow/funding-arb/internal/core/monitor"
	"github.com/charleschow/funding-arb/internal/core/pricefeed"
	"github.com/charleschow/funding-arb/internal/core/retry"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/tracker"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// Engine runs synchronized execution sessions: a resting LIMIT order on the
// primary venue, pegged to the hedge venue's book, with every fill increment
// hedged by a MARKET order on the hedge venue.
//
// Each session is an actor. The order monitor, the price feed and the
// control signal (ctx cancellation or the session timeout) all feed one
// select loop, and only that loop touches the session. Adapter calls block
// the loop but each carries its own deadline, derived from a context that
// ignores the control signal so a step in progress always completes.
type Engine struct {
	primary venue.Adapter
	hedge   venue.Adapter
	bus     *events.Bus
	opts    Options
}

func NewEngine(primary, hedge venue.Adapter, bus *events.Bus, opts Options) *Engine {
	def := DefaultOptions()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = def.Backoff
	}
	if opts.PlaceAttempts <= 0 {
		opts.PlaceAttempts = def.PlaceAttempts
	}
	if opts.HedgeAttempts <= 0 {
		opts.HedgeAttempts = def.HedgeAttempts
	}
	if opts.QueryAttempts <= 0 {
		opts.QueryAttempts = def.QueryAttempts
	}
	if opts.CancelAttempts <= 0 {
		opts.CancelAttempts = def.CancelAttempts
	}
	if opts.SettleAttempts <= 0 {
		opts.SettleAttempts = def.SettleAttempts
	}
	if opts.FirstQuoteTimeout <= 0 {
		opts.FirstQuoteTimeout = def.FirstQuoteTimeout
	}
	return &Engine{primary: primary, hedge: hedge, bus: bus, opts: opts}
}

// Run executes one session to a terminal outcome. The returned error is the
// summary's Err: nil for FILLED and for a clean CANCELLED.
func (e *Engine) Run(ctx context.Context, p Params) (Summary, error) {
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	s := newSession(p)
	if err := p.Validate(); err != nil {
		sum := s.summary(OutcomeAborted, "invalid parameters", "", err)
		return sum, err
	}

	telemetry.Metrics.ActiveSessions.Inc()
	defer telemetry.Metrics.ActiveSessions.Dec()

	// calls outlives an interrupt so the final query and cancel still run.
	calls := context.WithoutCancel(ctx)
	streamCtx, stopStreams := context.WithCancel(calls)
	var streams errgroup.Group
	defer func() {
		stopStreams()
		_ = streams.Wait()
	}()

	telemetry.Infof("engine[%s]: %s %s %s on %s, hedge %s on %s (dynamic=%t offset=%s%% tol=%s%%)",
		short(s.id), p.PrimarySide, p.Size, p.Symbol, e.primary.Name(), p.HedgeSide, e.hedge.Name(),
		p.Dynamic, p.OffsetPct, p.TolerancePct)

	var (
		quotes   <-chan trading.PriceQuote
		feedLost chan error
	)
	if p.Dynamic {
		book, ok := e.hedge.(venue.BookStreamer)
		if !ok {
			sum, _ := e.finish(s, OutcomeAborted, "hedge venue has no book stream", "", ErrNoBookStream)
			return sum, sum.Err
		}
		feed := pricefeed.New(book, e.hedge.Name(), p.Symbol)
		feedLost = make(chan error, 1)
		streams.Go(func() error {
			err := feed.Run(streamCtx)
			if err != nil {
				feedLost <- err
			}
			return err
		})
		quotes = feed.Quotes()
	}

	price, err := e.initialPrice(ctx, s, quotes, feedLost)
	if err != nil {
		sum, _ := e.finish(s, OutcomeAborted, "no initial price", "", err)
		return sum, sum.Err
	}
	s.targetPrice = price

	order, err := e.placePrimary(calls, s, p.Size, price)
	if err != nil {
		sum, _ := e.finish(s, OutcomeAborted, "initial order failed", "", err)
		return sum, sum.Err
	}
	s.order = order
	s.state = StateOrderPlaced
	e.publishOrder(s, order)
	e.publishSession(s, "", "", "")
	if sum, done := e.settleSnapshot(calls, s, nil, order); done {
		return sum, sum.Err
	}

	mon := monitor.New(e.primary, order.ID, p.Symbol, monitor.Options{
		PollInterval:   p.PollInterval,
		ReconnectGrace: e.opts.ReconnectGrace,
		CallTimeout:    e.opts.CallTimeout,
		OnStatus:       e.publishStreamStatus(s),
	})
	streams.Go(func() error { return mon.Run(streamCtx) })
	s.state = StateMonitoring

	var timeout <-chan time.Time
	if p.Timeout > 0 {
		t := time.NewTimer(time.Until(s.startedAt.Add(p.Timeout)))
		defer t.Stop()
		timeout = t.C
	}

	updates := mon.Updates()
	for {
		var (
			sum  Summary
			done bool
		)
		select {
		case <-ctx.Done():
			sum, done = e.interrupt(calls, s, "interrupted")
		case <-timeout:
			sum, done = e.interrupt(calls, s, fmt.Sprintf("timed out after %s", p.Timeout))
		case u, ok := <-updates:
			if !ok {
				err := mon.Err()
				if err == nil {
					err = errors.New("order monitor stopped")
				}
				sum, done = e.finish(s, OutcomeAborted, "order monitor failed", "", err)
				break
			}
			sum, done = e.onUpdate(calls, s, mon, u)
		case q := <-quotes:
			sum, done = e.onQuote(calls, s, mon, q)
		case <-s.settleC():
			sum, done = e.onSettle(calls, s, mon)
		case err := <-feedLost:
			e.onFeedLost(s, err)
			quotes, feedLost = nil, nil
		}
		if done {
			return sum, sum.Err
		}
	}
}

// initialPrice is the limit price if given, otherwise the target derived
// from the first usable quote.
func (e *Engine) initialPrice(ctx context.Context, s *session, quotes <-chan trading.PriceQuote, feedLost <-chan error) (decimal.Decimal, error) {
	p := s.params
	if p.LimitPrice.Valid {
		return p.LimitPrice.Decimal, nil
	}
	wait := time.NewTimer(e.opts.FirstQuoteTimeout)
	defer wait.Stop()
	for {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-wait.C:
			return decimal.Zero, fmt.Errorf("%w within %s", ErrNoQuote, e.opts.FirstQuoteTimeout)
		case err := <-feedLost:
			return decimal.Zero, fmt.Errorf("%w: price feed stopped: %w", ErrNoQuote, err)
		case q := <-quotes:
			s.priceUpdates++
			ref := tracker.ReferencePrice(p.PrimarySide, q)
			if !ref.IsPositive() {
				continue
			}
			s.reference = ref
			s.lastQuote, s.hasQuote = q, true
			target := tracker.TargetPrice(ref, p.OffsetPct)
			telemetry.Infof("engine[%s]: first quote bid=%s ask=%s -> target %s",
				short(s.id), q.BestBid, q.BestAsk, target)
			return target, nil
		}
	}
}

// onUpdate handles one monitor event. Events for replaced orders are stale.
func (e *Engine) onUpdate(calls context.Context, s *session, mon *monitor.Monitor, u monitor.Update) (Summary, bool) {
	if u.OrderID != s.order.ID {
		telemetry.Debugf("engine[%s]: ignoring update for replaced order %s", short(s.id), u.OrderID)
		return Summary{}, false
	}
	return e.settleSnapshot(calls, s, mon, u.Snapshot)
}

// settleSnapshot applies a snapshot of the current primary order: hedge any
// new fill, then act on a terminal status.
func (e *Engine) settleSnapshot(calls context.Context, s *session, mon *monitor.Monitor, snap trading.Order) (Summary, bool) {
	if !e.absorb(s, snap) {
		return Summary{}, false
	}
	if err := e.applyFill(calls, s); err != nil {
		return e.abortUnhedged(s, err)
	}

	switch snap.Status {
	case trading.StatusFilled:
		return e.finish(s, OutcomeFilled, "primary order filled", "", nil)
	case trading.StatusCancelled, trading.StatusRejected:
		if s.cancelRequested && mon != nil {
			return e.replace(calls, s, mon)
		}
		return e.finish(s, OutcomeAborted,
			fmt.Sprintf("primary order %s %s by venue", snap.ID, snap.Status), "", nil)
	}
	return Summary{}, false
}

// absorb merges snap into the session's view of the current order. Stale or
// foreign snapshots are dropped.
func (e *Engine) absorb(s *session, snap trading.Order) bool {
	if snap.ID != s.order.ID {
		return false
	}
	if !snap.Supersedes(s.order) {
		telemetry.Debugf("engine[%s]: dropping stale snapshot %s", short(s.id), snap)
		return false
	}
	changed := snap.Advanced(s.order)
	s.order = mergeSnapshot(s.order, snap)
	if changed {
		e.publishOrder(s, s.order)
	}
	return true
}

// mergeSnapshot keeps fields a venue omitted in a partial update.
func mergeSnapshot(prev, next trading.Order) trading.Order {
	if next.Size.IsZero() {
		next.Size = prev.Size
	}
	if !next.Price.Valid {
		next.Price = prev.Price
	}
	if next.Side == "" {
		next.Side = prev.Side
	}
	if next.Type == "" {
		next.Type = prev.Type
	}
	if next.Symbol == "" {
		next.Symbol = prev.Symbol
	}
	if next.Venue == "" {
		next.Venue = prev.Venue
	}
	if next.ClientOrderID == "" {
		next.ClientOrderID = prev.ClientOrderID
	}
	if !next.AveragePrice.Valid {
		next.AveragePrice = prev.AveragePrice
	}
	return next
}

// placePrimary submits a LIMIT order on the primary venue. Transient failures
// are retried under one client order id; a rejection is final.
func (e *Engine) placePrimary(calls context.Context, s *session, size, price decimal.Decimal) (trading.Order, error) {
	p := s.params
	req := venue.PlaceRequest{
		Symbol:        p.Symbol,
		Side:          p.PrimarySide,
		Type:          trading.OrderTypeLimit,
		Size:          size,
		Price:         decimal.NewNullDecimal(price),
		ClientOrderID: uuid.NewString(),
	}
	var order trading.Order
	err := retry.Do(calls, e.opts.PlaceAttempts, e.opts.Backoff, venue.IsTransient, func(attempt int) error {
		if attempt > 0 {
			telemetry.Warnf("engine[%s]: retrying primary order (attempt %d)", short(s.id), attempt+1)
		}
		ctx, cancel := context.WithTimeout(calls, e.opts.CallTimeout)
		defer cancel()
		start := time.Now()
		o, err := e.primary.Place(ctx, req)
		telemetry.Metrics.AdapterLatency.Since(start)
		order = o
		return err
	})
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		telemetry.Errorf("engine[%s]: place %s %s @ %s on %s: %v",
			short(s.id), p.PrimarySide, size, price, e.primary.Name(), err)
		return trading.Order{}, err
	}
	telemetry.Metrics.OrdersPlaced.Inc()
	order = fillPlaced(order, req, e.primary.Name())
	telemetry.Infof("engine[%s]: placed %s", short(s.id), order)
	return order, nil
}

// fillPlaced completes fields an adapter may not echo back.
func fillPlaced(o trading.Order, req venue.PlaceRequest, venueName string) trading.Order {
	if o.Venue == "" {
		o.Venue = venueName
	}
	if o.Symbol == "" {
		o.Symbol = req.Symbol
	}
	if o.Side == "" {
		o.Side = req.Side
	}
	if o.Type == "" {
		o.Type = req.Type
	}
	if o.Size.IsZero() {
		o.Size = req.Size
	}
	if !o.Price.Valid {
		o.Price = req.Price
	}
	if o.ClientOrderID == "" {
		o.ClientOrderID = req.ClientOrderID
	}
	if o.Status == "" {
		o.Status = trading.StatusPending
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now()
	}
	return o
}

func (e *Engine) queryPrimary(calls context.Context, s *session, orderID string) (trading.Order, error) {
	var snap trading.Order
	err := retry.Do(calls, e.opts.QueryAttempts, e.opts.Backoff, venue.IsTransient, func(int) error {
		ctx, cancel := context.WithTimeout(calls, e.opts.CallTimeout)
		defer cancel()
		start := time.Now()
		o, err := e.primary.Query(ctx, orderID, s.params.Symbol)
		telemetry.Metrics.AdapterLatency.Since(start)
		snap = o
		return err
	})
	if err != nil {
		return trading.Order{}, err
	}
	if snap.ID == "" {
		snap.ID = orderID
	}
	return snap, nil
}

func (e *Engine) cancelPrimary(calls context.Context, s *session, orderID string) (bool, error) {
	var ok bool
	err := retry.Do(calls, e.opts.CancelAttempts, e.opts.Backoff, venue.IsTransient, func(int) error {
		ctx, cancel := context.WithTimeout(calls, e.opts.CallTimeout)
		defer cancel()
		start := time.Now()
		r, err := e.primary.Cancel(ctx, orderID, s.params.Symbol)
		telemetry.Metrics.AdapterLatency.Since(start)
		ok = r
		return err
	})
	return ok, err
}

// finish moves the session to TERMINAL and reports it.
func (e *Engine) finish(s *session, outcome Outcome, reason, manual string, err error) (Summary, bool) {
	s.state = StateTerminal
	s.disarmSettle()
	sum := s.summary(outcome, reason, manual, err)
	e.publishSession(s, outcome, reason, manual)

	line := fmt.Sprintf("engine[%s]: %s (%s) order=%s filled=%s/%s hedged=%s renewals=%d price_updates=%d final_price=%s",
		short(s.id), outcome, reason, sum.PrimaryOrderID, sum.TotalFilled, sum.TotalSize, sum.TotalHedged,
		sum.RenewalsCount, sum.PriceUpdatesCount, sum.FinalPrice)
	switch {
	case err != nil:
		telemetry.Errorf("%s: %v", line, err)
	case outcome == OutcomeFilled:
		telemetry.Infof("%s", line)
	default:
		telemetry.Warnf("%s", line)
	}
	if manual != "" {
		telemetry.Warnf("engine[%s]: MANUAL ACTION REQUIRED: %s", short(s.id), manual)
	}
	return sum, true
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
