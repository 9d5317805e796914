package monitor

import (
	"context"
	"time"

	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// runPoll queries the tracked order every PollInterval. Once the order is
// terminal it stops querying and waits for a retarget.
func (m *Monitor) runPoll(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	t := newTracking(m.current())
	for {
		t.sync(m)

		if !t.terminal {
			snap, err := m.query(ctx, t.id)
			switch {
			case err == nil:
				m.emit(ctx, t, snap)
			case ctx.Err() != nil:
				return nil
			case venue.IsAuthentication(err):
				telemetry.Errorf("monitor[%s]: query %s: %v", m.adapter.Name(), t.id, err)
				return err
			default:
				telemetry.Warnf("monitor[%s]: query %s failed, retrying in %s: %v",
					m.adapter.Name(), t.id, m.opts.PollInterval, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-m.wake:
		}
	}
}
