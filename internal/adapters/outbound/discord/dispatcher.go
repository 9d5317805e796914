package discord

import (
	"context"
	"time"

	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// Dispatcher forwards alerts and terminal session summaries from the bus to
// Discord on its own goroutine, so a slow webhook never blocks the engine.
type Dispatcher struct {
	n     *Notifier
	queue chan events.Event
	done  chan struct{}
}

func NewDispatcher(n *Notifier) *Dispatcher {
	d := &Dispatcher{n: n, queue: make(chan events.Event, 64), done: make(chan struct{})}
	go d.run()
	return d
}

// Attach subscribes to alerts and session events. A disabled notifier does
// not subscribe.
func (d *Dispatcher) Attach(bus *events.Bus) {
	if !d.n.Enabled() {
		return
	}
	bus.Subscribe(func(e events.Event) error {
		if se, ok := e.Payload.(events.SessionEvent); ok && se.Outcome == "" {
			return nil
		}
		select {
		case d.queue <- e:
		default:
			telemetry.Warnf("discord: queue full, dropping %s", e.Type)
		}
		return nil
	}, events.EventAlert, events.EventSession)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		var err error
		switch p := e.Payload.(type) {
		case events.AlertEvent:
			err = d.n.Alert(ctx, e.SessionID, e.Symbol, p)
		case events.SessionEvent:
			err = d.n.SessionSummary(ctx, e.SessionID, e.Symbol, p)
		}
		cancel()
		if err != nil {
			telemetry.Warnf("discord: %s: %v", e.Type, err)
		}
	}
}

// Close flushes queued messages. The bus must not publish afterwards.
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}
