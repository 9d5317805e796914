package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// runPush consumes the adapter's order stream. The stream replays nothing
// after a reconnect, so every connect (and every retarget) arms a grace
// timer; if the tracked order stays silent until it fires, the order is
// queried over REST to close the gap.
func (m *Monitor) runPush(ctx context.Context) error {
	orders := make(chan trading.Order, 64)
	status := make(chan venue.StreamStatus, 8)
	errc := make(chan error, 1)
	go func() { errc <- m.streamer.StreamOrders(ctx, orders, status) }()

	grace := time.NewTimer(m.opts.ReconnectGrace)
	defer grace.Stop()
	arm := func() { grace.Reset(m.opts.ReconnectGrace) }

	t := newTracking(m.current())
	for {
		if changed, replay := t.sync(m); changed {
			if replay != nil {
				m.emit(ctx, t, *replay)
			}
			arm()
		}

		select {
		case <-ctx.Done():
			return nil

		case err := <-errc:
			if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			telemetry.Errorf("monitor[%s]: order stream stopped: %v", m.adapter.Name(), err)
			return err

		case st := <-status:
			if m.opts.OnStatus != nil {
				m.opts.OnStatus(st)
			}
			if st.Connected {
				arm()
			}

		case o := <-orders:
			if o.ID != t.id {
				t.keep(o)
				continue
			}
			grace.Stop()
			m.emit(ctx, t, o)

		case <-grace.C:
			if t.terminal {
				continue
			}
			snap, err := m.query(ctx, t.id)
			switch {
			case err == nil:
				telemetry.Debugf("monitor[%s]: gap re-query %s -> %s", m.adapter.Name(), t.id, snap.Status)
				m.emit(ctx, t, snap)
			case ctx.Err() != nil:
				return nil
			case venue.IsAuthentication(err):
				return err
			default:
				telemetry.Warnf("monitor[%s]: gap re-query %s failed: %v", m.adapter.Name(), t.id, err)
				arm()
			}

		case <-m.wake:
		}
	}
}
