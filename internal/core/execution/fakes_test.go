package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/retry"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/events"
)

// fakeVenue keeps orders in memory. LIMIT orders rest until a test moves
// them, MARKET orders fill immediately.
type fakeVenue struct {
	name string

	mu        sync.Mutex
	seq       int
	orders    map[string]*trading.Order
	placed    []venue.PlaceRequest
	cancels   []string
	placeErrs []error
	queryErr  error
	cancelErr error
	// declineCancel makes Cancel answer (false, nil) and leave the order.
	declineCancel bool
	// onCancel replaces the default cancel behaviour. It runs with mu held.
	onCancel func(o *trading.Order)
}

func newFakeVenue(name string) *fakeVenue {
	return &fakeVenue{name: name, orders: make(map[string]*trading.Order)}
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) Place(_ context.Context, req venue.PlaceRequest) (trading.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if len(f.placeErrs) > 0 {
		err := f.placeErrs[0]
		f.placeErrs = f.placeErrs[1:]
		if err != nil {
			return trading.Order{}, err
		}
	}
	f.seq++
	o := &trading.Order{
		ID:            fmt.Sprintf("%s-%d", f.name, f.seq),
		ClientOrderID: req.ClientOrderID,
		Venue:         f.name,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		Status:        trading.StatusPending,
		UpdatedAt:     time.Now(),
	}
	if req.Type == trading.OrderTypeMarket {
		o.Status = trading.StatusFilled
		o.FilledQuantity = req.Size
	}
	f.orders[o.ID] = o
	return *o, nil
}

func (f *fakeVenue) Cancel(_ context.Context, orderID, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return false, venue.Rejected(f.name, "cancel", fmt.Errorf("unknown order %s", orderID))
	}
	if f.declineCancel {
		return false, nil
	}
	if f.onCancel != nil {
		f.onCancel(o)
		return true, nil
	}
	if !o.Status.IsTerminal() {
		o.Status = trading.StatusCancelled
	}
	return true, nil
}

func (f *fakeVenue) Query(_ context.Context, orderID, _ string) (trading.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return trading.Order{}, f.queryErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return trading.Order{}, venue.Rejected(f.name, "query", fmt.Errorf("unknown order %s", orderID))
	}
	return *o, nil
}

// set moves an order the way the venue's matching engine would.
func (f *fakeVenue) set(orderID string, st trading.Status, filled string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	o.Status = st
	o.FilledQuantity = decimal.RequireFromString(filled)
	o.UpdatedAt = time.Now()
}

func (f *fakeVenue) placements() []venue.PlaceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]venue.PlaceRequest(nil), f.placed...)
}

func (f *fakeVenue) cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancels...)
}

// fakeBookVenue adds a book stream fed by the test. An error sent on fail
// ends the stream for good.
type fakeBookVenue struct {
	*fakeVenue
	book chan trading.PriceQuote
	fail chan error
}

func newFakeBookVenue(name string) *fakeBookVenue {
	return &fakeBookVenue{
		fakeVenue: newFakeVenue(name),
		book:      make(chan trading.PriceQuote, 8),
		fail:      make(chan error, 1),
	}
}

func (f *fakeBookVenue) StreamBook(ctx context.Context, _ string, quotes chan<- trading.PriceQuote) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-f.fail:
			return err
		case q := <-f.book:
			select {
			case quotes <- q:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// silentStreamVenue streams orders but never delivers an update, like a
// push session that dropped without noticing.
type silentStreamVenue struct {
	*fakeVenue
}

func (silentStreamVenue) StreamOrders(ctx context.Context, _ chan<- trading.Order, _ chan<- venue.StreamStatus) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeBookVenue) quote(bid, ask string) {
	f.book <- trading.PriceQuote{
		Venue:      f.name,
		Symbol:     "BTC",
		BestBid:    decimal.RequireFromString(bid),
		BestAsk:    decimal.RequireFromString(ask),
		ObservedAt: time.Now(),
	}
}

func testOptions() Options {
	return Options{
		CallTimeout:       time.Second,
		PlaceAttempts:     3,
		HedgeAttempts:     3,
		QueryAttempts:     3,
		CancelAttempts:    3,
		Backoff:           retry.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond},
		SettleAttempts:    3,
		CancelSettle:      time.Millisecond,
		ReconnectGrace:    50 * time.Millisecond,
		FirstQuoteTimeout: time.Second,
	}
}

func shortParams(size, price string) Params {
	return Params{
		PrimaryVenue: "primary",
		PrimarySide:  trading.SideShort,
		HedgeVenue:   "hedge",
		HedgeSide:    trading.SideLong,
		Symbol:       "BTC",
		Size:         decimal.RequireFromString(size),
		LimitPrice:   decimal.NewNullDecimal(decimal.RequireFromString(price)),
		TolerancePct: DefaultTolerancePct,
		PollInterval: 5 * time.Millisecond,
	}
}

// recorder collects bus events for assertions.
type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func newRecorder(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e events.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.evs = append(r.evs, e)
		return nil
	}, events.EventOrderUpdate, events.EventHedge, events.EventRenewal, events.EventSession, events.EventAlert, events.EventStreamStatus)
	return r
}

func (r *recorder) of(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.evs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type runResult struct {
	sum Summary
	err error
}

// start runs the engine in the background.
func start(ctx context.Context, e *Engine, p Params) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		sum, err := e.Run(ctx, p)
		done <- runResult{sum, err}
	}()
	return done
}
