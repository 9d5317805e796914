// Package monitor turns a venue's order feed (push) or its query endpoint
// (poll) into one ordered stream of snapshots for the order being tracked.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultReconnectGrace = 3 * time.Second
	DefaultCallTimeout    = 5 * time.Second

	maxStashed = 32
)

// Update is one observed change of the tracked order.
type Update struct {
	OrderID        string
	PreviousFilled decimal.Decimal
	Snapshot       trading.Order
}

type Options struct {
	PollInterval   time.Duration
	ReconnectGrace time.Duration
	CallTimeout    time.Duration
	// OnStatus, when set, observes push-session connects and disconnects.
	OnStatus func(venue.StreamStatus)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ReconnectGrace <= 0 {
		o.ReconnectGrace = DefaultReconnectGrace
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// Monitor follows one order id at a time. The engine switches it to a
// replacement order with Retarget.
type Monitor struct {
	adapter  venue.Adapter
	streamer venue.OrderStreamer
	symbol   string
	opts     Options

	mu     sync.Mutex
	target string
	err    error

	wake    chan struct{}
	updates chan Update
}

// New picks push mode when the adapter can stream orders, poll otherwise.
func New(adapter venue.Adapter, orderID, symbol string, opts Options) *Monitor {
	m := &Monitor{
		adapter: adapter,
		symbol:  symbol,
		opts:    opts.withDefaults(),
		target:  orderID,
		wake:    make(chan struct{}, 1),
		updates: make(chan Update, 16),
	}
	if s, ok := adapter.(venue.OrderStreamer); ok {
		m.streamer = s
	}
	return m
}

func (m *Monitor) Mode() Mode {
	if m.streamer != nil {
		return ModePush
	}
	return ModePoll
}

// Updates is closed when Run returns.
func (m *Monitor) Updates() <-chan Update { return m.updates }

// Err is the reason Run stopped, nil on cancellation.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Retarget switches tracking to orderID. Never blocks.
func (m *Monitor) Retarget(orderID string) {
	m.mu.Lock()
	m.target = orderID
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Run blocks until ctx is done or the feed fails with an authentication
// error. Transient failures never end it.
func (m *Monitor) Run(ctx context.Context) error {
	telemetry.Infof("monitor[%s]: tracking order %s (%s mode)", m.adapter.Name(), m.current(), m.Mode())

	var err error
	if m.streamer != nil {
		err = m.runPush(ctx)
	} else {
		err = m.runPoll(ctx)
	}

	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	close(m.updates)
	return err
}

func (m *Monitor) query(ctx context.Context, orderID string) (trading.Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()
	start := time.Now()
	o, err := m.adapter.Query(callCtx, orderID, m.symbol)
	telemetry.Metrics.AdapterLatency.Since(start)
	return o, err
}

// tracking is the per-run view of the tracked order, owned by the Run goroutine.
type tracking struct {
	id       string
	last     trading.Order
	hasLast  bool
	terminal bool

	stash map[string]trading.Order
	order []string
}

func newTracking(id string) *tracking {
	return &tracking{id: id, stash: make(map[string]trading.Order)}
}

// sync picks up a retarget. It reports whether the tracked id changed and
// returns any snapshot already seen for the new id.
func (t *tracking) sync(m *Monitor) (changed bool, replay *trading.Order) {
	id := m.current()
	if id == t.id {
		return false, nil
	}
	telemetry.Infof("monitor[%s]: now tracking order %s (was %s)", m.adapter.Name(), id, t.id)
	t.id = id
	t.last = trading.Order{}
	t.hasLast = false
	t.terminal = false
	if o, ok := t.stash[id]; ok {
		delete(t.stash, id)
		return true, &o
	}
	return true, nil
}

// keep remembers the newest snapshot for an id we are not tracking yet.
func (t *tracking) keep(o trading.Order) {
	if prev, ok := t.stash[o.ID]; ok {
		if o.Supersedes(prev) {
			t.stash[o.ID] = o
		}
		return
	}
	if len(t.order) >= maxStashed {
		delete(t.stash, t.order[0])
		t.order = t.order[1:]
	}
	t.stash[o.ID] = o
	t.order = append(t.order, o.ID)
}

// emit forwards snap if it belongs to the tracked order and moved forward.
func (m *Monitor) emit(ctx context.Context, t *tracking, snap trading.Order) {
	if snap.ID != t.id {
		return
	}
	if t.hasLast {
		if !snap.Supersedes(t.last) {
			telemetry.Debugf("monitor[%s]: dropping stale snapshot %s (have %s)", m.adapter.Name(), snap, t.last)
			return
		}
		if !snap.Advanced(t.last) {
			return
		}
	}
	u := Update{OrderID: t.id, Snapshot: snap}
	if t.hasLast {
		u.PreviousFilled = t.last.FilledQuantity
	}
	t.last = snap
	t.hasLast = true
	t.terminal = snap.Status.IsTerminal()
	telemetry.Metrics.OrderUpdates.Inc()

	select {
	case m.updates <- u:
	case <-ctx.Done():
	}
}
