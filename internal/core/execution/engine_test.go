package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/events"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func wait(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	return runResult{}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

func TestRun_RenewalWithRacingFill(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeBookVenue("hedge")
	// The cancel lands after half the order filled.
	primary.onCancel = func(o *trading.Order) {
		o.Status = trading.StatusCancelled
		o.FilledQuantity = d("0.05")
	}
	bus := events.NewBus()
	rec := newRecorder(bus)
	e := NewEngine(primary, hedge, bus, testOptions())

	p := shortParams("0.1", "49750")
	p.Dynamic = true
	done := start(context.Background(), e, p)

	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	hedge.quote("50200", "50210")

	eventually(t, func() bool { return len(primary.placements()) == 2 }, "replacement order")
	primary.set("primary-2", trading.StatusFilled, "0.05")

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, OutcomeFilled, r.sum.Outcome)
	assert.True(t, r.sum.TotalFilled.Equal(d("0.1")), "filled %s", r.sum.TotalFilled)
	assert.True(t, r.sum.TotalHedged.Equal(d("0.1")), "hedged %s", r.sum.TotalHedged)
	assert.Equal(t, 1, r.sum.RenewalsCount)
	assert.True(t, r.sum.FinalPrice.Equal(d("50200")), "final price %s", r.sum.FinalPrice)
	assert.Equal(t, "primary-2", r.sum.PrimaryOrderID)

	placed := primary.placements()
	assert.True(t, placed[1].Size.Equal(d("0.05")), "replacement size %s", placed[1].Size)
	assert.True(t, placed[1].Price.Decimal.Equal(d("50200")), "replacement price %s", placed[1].Price.Decimal)
	assert.Equal(t, []string{"primary-1"}, primary.cancelled())

	hedges := hedge.placements()
	require.Len(t, hedges, 2)
	for _, h := range hedges {
		assert.Equal(t, trading.SideLong, h.Side)
		assert.Equal(t, trading.OrderTypeMarket, h.Type)
		assert.True(t, h.Size.Equal(d("0.05")), "hedge size %s", h.Size)
	}

	renewals := rec.of(events.EventRenewal)
	require.Len(t, renewals, 1)
	ev := renewals[0].Payload.(events.RenewalEvent)
	assert.Equal(t, "primary-1", ev.OldOrderID)
	assert.Equal(t, "primary-2", ev.NewOrderID)
	assert.True(t, ev.RaceFilled.Equal(d("0.05")))
}

func TestRun_SmallMoveDoesNotRenew(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeBookVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	p := shortParams("0.1", "50000")
	p.Dynamic = true
	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, e, p)

	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	hedge.quote("50140", "50150")
	time.Sleep(30 * time.Millisecond)
	cancel()

	r := wait(t, done)
	assert.Equal(t, OutcomeCancelled, r.sum.Outcome)
	assert.Equal(t, 0, r.sum.RenewalsCount)
	assert.Len(t, primary.placements(), 1)
}

func TestRun_HedgesEveryIncrement(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())
	done := start(context.Background(), e, shortParams("0.3", "50000"))

	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	primary.set("primary-1", trading.StatusPartial, "0.1")
	eventually(t, func() bool { return len(hedge.placements()) == 1 }, "first hedge")
	primary.set("primary-1", trading.StatusPartial, "0.25")
	eventually(t, func() bool { return len(hedge.placements()) == 2 }, "second hedge")
	primary.set("primary-1", trading.StatusFilled, "0.3")

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, OutcomeFilled, r.sum.Outcome)

	var total decimal.Decimal
	var sizes []string
	for _, h := range hedge.placements() {
		total = total.Add(h.Size)
		sizes = append(sizes, h.Size.String())
	}
	assert.Equal(t, []string{"0.1", "0.15", "0.05"}, sizes)
	assert.True(t, total.Equal(r.sum.TotalFilled))
	assert.True(t, r.sum.TotalHedged.Equal(d("0.3")))
}

func TestSettleSnapshot_ReplayIsIdempotent(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())
	ctx := context.Background()

	s := newSession(shortParams("0.2", "50000"))
	order, err := e.placePrimary(ctx, s, s.params.Size, d("50000"))
	require.NoError(t, err)
	s.order = order

	partial := order
	partial.Status = trading.StatusPartial
	partial.FilledQuantity = d("0.1")

	_, done := e.settleSnapshot(ctx, s, nil, partial)
	require.False(t, done)
	_, done = e.settleSnapshot(ctx, s, nil, partial)
	require.False(t, done)

	older := partial
	older.FilledQuantity = d("0.05")
	_, done = e.settleSnapshot(ctx, s, nil, older)
	require.False(t, done)

	assert.Len(t, hedge.placements(), 1)
	assert.True(t, s.cumFilled.Equal(d("0.1")))
	assert.True(t, s.cumHedged.Equal(d("0.1")))
}

func TestHedge_TransientRetryReusesClientOrderID(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	hedge.placeErrs = []error{venue.Transient("hedge", "place", errors.New("gateway timeout")), nil}
	e := NewEngine(primary, hedge, nil, testOptions())
	ctx := context.Background()

	s := newSession(shortParams("0.1", "50000"))
	order, err := e.placePrimary(ctx, s, s.params.Size, d("50000"))
	require.NoError(t, err)
	s.order = order

	filled := order
	filled.Status = trading.StatusFilled
	filled.FilledQuantity = d("0.1")
	sum, done := e.settleSnapshot(ctx, s, nil, filled)
	require.True(t, done)
	assert.Equal(t, OutcomeFilled, sum.Outcome)

	placed := hedge.placements()
	require.Len(t, placed, 2)
	assert.NotEmpty(t, placed[0].ClientOrderID)
	assert.Equal(t, placed[0].ClientOrderID, placed[1].ClientOrderID)
	assert.True(t, s.cumHedged.Equal(d("0.1")))
}

func TestHedge_ExhaustedAbortsWithoutTouchingPrimary(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	flaky := venue.Transient("hedge", "place", errors.New("503"))
	hedge.placeErrs = []error{flaky, flaky, flaky}
	bus := events.NewBus()
	rec := newRecorder(bus)
	e := NewEngine(primary, hedge, bus, testOptions())
	ctx := context.Background()

	s := newSession(shortParams("0.2", "50000"))
	order, err := e.placePrimary(ctx, s, s.params.Size, d("50000"))
	require.NoError(t, err)
	s.order = order

	partial := order
	partial.Status = trading.StatusPartial
	partial.FilledQuantity = d("0.1")
	sum, done := e.settleSnapshot(ctx, s, nil, partial)
	require.True(t, done)

	assert.Equal(t, OutcomeAborted, sum.Outcome)
	assert.ErrorIs(t, sum.Err, ErrUnhedgedFill)
	assert.NotEmpty(t, sum.ManualAction)
	assert.True(t, sum.TotalFilled.Equal(d("0.1")))
	assert.True(t, sum.TotalHedged.IsZero())
	assert.Empty(t, primary.cancelled())
	assert.Len(t, hedge.placements(), 3)

	alerts := rec.of(events.EventAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, events.AlertFatal, alerts[0].Payload.(events.AlertEvent).Level)
}

func TestHedge_RejectionIsNotRetried(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	hedge.placeErrs = []error{venue.Rejected("hedge", "place", errors.New("insufficient margin"))}
	e := NewEngine(primary, hedge, nil, testOptions())
	ctx := context.Background()

	s := newSession(shortParams("0.1", "50000"))
	order, err := e.placePrimary(ctx, s, s.params.Size, d("50000"))
	require.NoError(t, err)
	s.order = order

	filled := order
	filled.Status = trading.StatusFilled
	filled.FilledQuantity = d("0.1")
	sum, done := e.settleSnapshot(ctx, s, nil, filled)
	require.True(t, done)
	assert.Equal(t, OutcomeAborted, sum.Outcome)
	assert.ErrorIs(t, sum.Err, ErrUnhedgedFill)
	assert.True(t, venue.IsRejected(sum.Err))
	assert.Len(t, hedge.placements(), 1)
}

func TestRun_InterruptCancelsUnfilledOrder(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, e, shortParams("0.1", "50000"))
	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	cancel()

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, OutcomeCancelled, r.sum.Outcome)
	assert.Equal(t, []string{"primary-1"}, primary.cancelled())
	assert.Empty(t, hedge.placements())
}

func TestRun_InterruptLeavesPartialFillResting(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, e, shortParams("0.1", "50000"))
	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	primary.set("primary-1", trading.StatusPartial, "0.04")
	eventually(t, func() bool { return len(hedge.placements()) == 1 }, "hedge of partial fill")
	cancel()

	r := wait(t, done)
	assert.Equal(t, OutcomeAborted, r.sum.Outcome)
	assert.ErrorIs(t, r.err, ErrUnhedgedFillOnAbort)
	assert.Empty(t, primary.cancelled())
	assert.Contains(t, r.sum.ManualAction, "arb cancel --venue primary --order-id primary-1 --symbol BTC")
	assert.True(t, r.sum.TotalHedged.Equal(d("0.04")))
}

func TestRun_InterruptWithUnknownStatusDoesNotCancel(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, e, shortParams("0.1", "50000"))
	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	time.Sleep(20 * time.Millisecond)
	primary.mu.Lock()
	primary.queryErr = venue.Transient("primary", "query", errors.New("connection reset"))
	primary.mu.Unlock()
	cancel()

	r := wait(t, done)
	assert.Equal(t, OutcomeAborted, r.sum.Outcome)
	assert.Empty(t, primary.cancelled())
	assert.NotEmpty(t, r.sum.ManualAction)
}

func TestRun_Timeout(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	p := shortParams("0.1", "50000")
	p.Timeout = 40 * time.Millisecond
	r := wait(t, start(context.Background(), e, p))

	assert.Equal(t, OutcomeCancelled, r.sum.Outcome)
	assert.Contains(t, r.sum.Reason, "timed out")
	assert.Equal(t, []string{"primary-1"}, primary.cancelled())
}

func TestRun_InitialRejectionAborts(t *testing.T) {
	primary := newFakeVenue("primary")
	primary.placeErrs = []error{venue.Rejected("primary", "place", errors.New("price out of band"))}
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	r := wait(t, start(context.Background(), e, shortParams("0.1", "50000")))
	assert.Equal(t, OutcomeAborted, r.sum.Outcome)
	assert.True(t, venue.IsRejected(r.err))
	assert.Len(t, primary.placements(), 1)
	assert.Empty(t, hedge.placements())
}

func TestRun_InitialTransientIsRetried(t *testing.T) {
	primary := newFakeVenue("primary")
	primary.placeErrs = []error{venue.Transient("primary", "place", errors.New("502")), nil}
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	done := start(context.Background(), e, shortParams("0.1", "50000"))
	eventually(t, func() bool { return len(primary.placements()) == 2 }, "retried order")
	primary.set("primary-1", trading.StatusFilled, "0.1")

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, OutcomeFilled, r.sum.Outcome)
	placed := primary.placements()
	assert.Equal(t, placed[0].ClientOrderID, placed[1].ClientOrderID)
}

func TestRun_ExternalCancelAborts(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	bus := events.NewBus()
	rec := newRecorder(bus)
	e := NewEngine(primary, hedge, bus, testOptions())

	done := start(context.Background(), e, shortParams("0.1", "50000"))
	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	primary.set("primary-1", trading.StatusCancelled, "0")

	r := wait(t, done)
	assert.Equal(t, OutcomeAborted, r.sum.Outcome)
	assert.Empty(t, primary.cancelled())

	sessions := rec.of(events.EventSession)
	require.NotEmpty(t, sessions)
	last := sessions[len(sessions)-1].Payload.(events.SessionEvent)
	assert.Equal(t, string(OutcomeAborted), last.Outcome)
	assert.Equal(t, string(StateTerminal), last.State)
}

func TestRun_InvalidParams(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	cases := map[string]func(*Params){
		"same side":        func(p *Params) { p.HedgeSide = trading.SideShort },
		"zero size":        func(p *Params) { p.Size = decimal.Zero },
		"same venue":       func(p *Params) { p.HedgeVenue = p.PrimaryVenue },
		"no price":         func(p *Params) { p.LimitPrice = decimal.NullDecimal{} },
		"negative price":   func(p *Params) { p.LimitPrice = decimal.NewNullDecimal(d("-1")) },
		"negative timeout": func(p *Params) { p.Timeout = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := shortParams("0.1", "50000")
			mutate(&p)
			sum, err := e.Run(context.Background(), p)
			assert.ErrorIs(t, err, ErrInvalidParams)
			assert.Equal(t, OutcomeAborted, sum.Outcome)
		})
	}
	assert.Empty(t, primary.placements())
}

func TestRun_DynamicNeedsBookStream(t *testing.T) {
	e := NewEngine(newFakeVenue("primary"), newFakeVenue("hedge"), nil, testOptions())
	p := shortParams("0.1", "50000")
	p.Dynamic = true
	_, err := e.Run(context.Background(), p)
	assert.ErrorIs(t, err, ErrNoBookStream)
}

func TestRun_DynamicPricesFromFirstQuote(t *testing.T) {
	primary := newFakeVenue("primary")
	hedge := newFakeBookVenue("hedge")
	e := NewEngine(primary, hedge, nil, testOptions())

	p := shortParams("0.1", "0")
	p.LimitPrice = decimal.NullDecimal{}
	p.Dynamic = true
	p.OffsetPct = d("-0.5")
	hedge.quote("50200", "50210")

	done := start(context.Background(), e, p)
	eventually(t, func() bool { return len(primary.placements()) == 1 }, "initial order")
	assert.True(t, primary.placements()[0].Price.Decimal.Equal(d("49949")))
	primary.set("primary-1", trading.StatusFilled, "0.1")

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.True(t, r.sum.FinalPrice.Equal(d("49949")))
}
