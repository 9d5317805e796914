package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
)

type queryResult struct {
	order trading.Order
	err   error
}

// fakeAdapter answers Query from a per-order script; the last entry repeats.
type fakeAdapter struct {
	mu      sync.Mutex
	scripts map[string][]queryResult
	calls   map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{scripts: make(map[string][]queryResult), calls: make(map[string]int)}
}

func (f *fakeAdapter) script(id string, results ...queryResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = results
}

func (f *fakeAdapter) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Place(context.Context, venue.PlaceRequest) (trading.Order, error) {
	return trading.Order{}, errors.New("not used")
}

func (f *fakeAdapter) Cancel(context.Context, string, string) (bool, error) {
	return false, errors.New("not used")
}

func (f *fakeAdapter) Query(_ context.Context, id, _ string) (trading.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.scripts[id]
	if len(script) == 0 {
		return trading.Order{}, venue.Rejected("fake", "query", errors.New("unknown order"))
	}
	n := f.calls[id]
	f.calls[id]++
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].order, script[n].err
}

// fakeStreamer adds a push feed to fakeAdapter.
type fakeStreamer struct {
	*fakeAdapter
	feed   chan trading.Order
	status chan venue.StreamStatus
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		fakeAdapter: newFakeAdapter(),
		feed:        make(chan trading.Order, 16),
		status:      make(chan venue.StreamStatus, 4),
	}
}

func (f *fakeStreamer) StreamOrders(ctx context.Context, updates chan<- trading.Order, status chan<- venue.StreamStatus) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case o := <-f.feed:
			updates <- o
		case st := <-f.status:
			status <- st
		}
	}
}

func snap(id string, st trading.Status, filled string) trading.Order {
	return trading.Order{
		ID:             id,
		Venue:          "fake",
		Symbol:         "BTC",
		Side:           trading.SideShort,
		Type:           trading.OrderTypeLimit,
		Size:           decimal.RequireFromString("0.1"),
		Status:         st,
		FilledQuantity: decimal.RequireFromString(filled),
	}
}

func next(t *testing.T, m *Monitor) Update {
	t.Helper()
	select {
	case u, ok := <-m.Updates():
		require.True(t, ok, "updates closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func start(t *testing.T, m *Monitor) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestPollRetriesTransientAndStopsOnTerminal(t *testing.T) {
	a := newFakeAdapter()
	a.script("1",
		queryResult{err: venue.Transient("fake", "query", errors.New("timeout"))},
		queryResult{order: snap("1", trading.StatusPartial, "0.05")},
		queryResult{order: snap("1", trading.StatusPartial, "0.05")},
		queryResult{order: snap("1", trading.StatusFilled, "0.1")},
	)
	m := New(a, "1", "BTC", Options{PollInterval: 5 * time.Millisecond})
	assert.Equal(t, ModePoll, m.Mode())
	cancel, done := start(t, m)

	u := next(t, m)
	assert.True(t, u.PreviousFilled.IsZero())
	assert.Equal(t, trading.StatusPartial, u.Snapshot.Status)

	u = next(t, m)
	assert.Equal(t, "0.05", u.PreviousFilled.String())
	assert.Equal(t, trading.StatusFilled, u.Snapshot.Status)

	calls := a.callCount("1")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, a.callCount("1"), "terminal order must not be polled again")

	cancel()
	assert.NoError(t, <-done)
	_, open := <-m.Updates()
	assert.False(t, open)
}

func TestPollAuthenticationErrorEndsMonitor(t *testing.T) {
	a := newFakeAdapter()
	a.script("1", queryResult{err: venue.Authentication("fake", "query", errors.New("bad key"))})
	m := New(a, "1", "BTC", Options{PollInterval: 5 * time.Millisecond})
	_, done := start(t, m)

	err := <-done
	assert.True(t, venue.IsAuthentication(err))
	assert.True(t, venue.IsAuthentication(m.Err()))
	_, open := <-m.Updates()
	assert.False(t, open)
}

func TestPollRetarget(t *testing.T) {
	a := newFakeAdapter()
	a.script("1", queryResult{order: snap("1", trading.StatusCancelled, "0.05")})
	a.script("2", queryResult{order: snap("2", trading.StatusPartial, "0.02")})
	m := New(a, "1", "BTC", Options{PollInterval: 5 * time.Millisecond})
	start(t, m)

	u := next(t, m)
	assert.Equal(t, "1", u.OrderID)
	assert.Equal(t, trading.StatusCancelled, u.Snapshot.Status)

	m.Retarget("2")
	u = next(t, m)
	assert.Equal(t, "2", u.OrderID)
	assert.True(t, u.PreviousFilled.IsZero())
	assert.Equal(t, "0.02", u.Snapshot.FilledQuantity.String())
}

func TestPushFiltersDedupsAndReplaysStash(t *testing.T) {
	s := newFakeStreamer()
	m := New(s, "1", "BTC", Options{ReconnectGrace: time.Hour})
	assert.Equal(t, ModePush, m.Mode())
	start(t, m)

	s.feed <- snap("9", trading.StatusPartial, "0.01")
	s.feed <- snap("1", trading.StatusPartial, "0.03")
	s.feed <- snap("1", trading.StatusPartial, "0.03")
	s.feed <- snap("1", trading.StatusPartial, "0.02")
	s.feed <- snap("1", trading.StatusPartial, "0.04")

	u := next(t, m)
	assert.Equal(t, "1", u.OrderID)
	assert.Equal(t, "0.03", u.Snapshot.FilledQuantity.String())

	u = next(t, m)
	assert.Equal(t, "0.03", u.PreviousFilled.String())
	assert.Equal(t, "0.04", u.Snapshot.FilledQuantity.String())

	m.Retarget("9")
	u = next(t, m)
	assert.Equal(t, "9", u.OrderID)
	assert.Equal(t, "0.01", u.Snapshot.FilledQuantity.String())
}

func TestPushReconnectGapIsRequeried(t *testing.T) {
	s := newFakeStreamer()
	s.script("1", queryResult{order: snap("1", trading.StatusFilled, "0.1")})

	var mu sync.Mutex
	var statuses []bool
	m := New(s, "1", "BTC", Options{
		ReconnectGrace: 10 * time.Millisecond,
		OnStatus: func(st venue.StreamStatus) {
			mu.Lock()
			statuses = append(statuses, st.Connected)
			mu.Unlock()
		},
	})
	start(t, m)

	s.status <- venue.StreamStatus{Connected: false}
	s.status <- venue.StreamStatus{Connected: true}

	u := next(t, m)
	assert.Equal(t, trading.StatusFilled, u.Snapshot.Status)
	assert.GreaterOrEqual(t, s.callCount("1"), 1)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2 && !statuses[0] && statuses[1]
	}, time.Second, 5*time.Millisecond)
}
