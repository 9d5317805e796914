package tracking

import (
	"sync"

	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const recorderBuffer = 1024

// Recorder copies bus events into the journal. The bus calls handlers on
// the engine goroutine, so events are queued and written by a single
// background goroutine; a full queue drops the event rather than stall the
// engine.
type Recorder struct {
	store *Store
	queue chan events.Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		queue: make(chan events.Event, recorderBuffer),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Attach subscribes the recorder to every journaled event type.
func (r *Recorder) Attach(bus *events.Bus) {
	bus.Subscribe(r.enqueue,
		events.EventOrderUpdate,
		events.EventHedge,
		events.EventRenewal,
		events.EventSession,
		events.EventAlert,
		events.EventStreamStatus,
	)
}

func (r *Recorder) enqueue(e events.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	select {
	case r.queue <- e:
	default:
		telemetry.Warnf("journal: queue full, dropping %s event %s", e.Type, e.ID)
	}
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.store.Append(e); err != nil {
			telemetry.Warnf("journal: %v", err)
			continue
		}
		if se, ok := e.Payload.(events.SessionEvent); ok && se.Outcome != "" {
			if err := r.store.RecordSession(e.SessionID, e.Symbol, se, e.Timestamp); err != nil {
				telemetry.Warnf("journal: %v", err)
			}
		}
	}
}

// Close drains the queue and waits for the last write. Events published
// after Close are dropped.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
