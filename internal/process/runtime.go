package process

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charleschow/funding-arb/internal/adapters/inbound/status_http"
	"github.com/charleschow/funding-arb/internal/adapters/outbound/discord"
	"github.com/charleschow/funding-arb/internal/adapters/venues"
	"github.com/charleschow/funding-arb/internal/config"
	"github.com/charleschow/funding-arb/internal/core/execution"
	"github.com/charleschow/funding-arb/internal/core/retry"
	"github.com/charleschow/funding-arb/internal/core/symbols"
	"github.com/charleschow/funding-arb/internal/core/tracking"
	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/fanout"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// Runtime owns everything a session needs besides the engine itself: venue
// adapters, the event bus and the sinks attached to it.
type Runtime struct {
	cfg    *config.Config
	venues *venues.Registry
	bus    *events.Bus

	journal  *tracking.Store
	recorder *tracking.Recorder
	alerts   *discord.Dispatcher

	stopStatus context.CancelFunc
	statusDone chan struct{}
}

// NewRuntime wires the venues and sinks described by cfg. A journal that
// cannot be opened is logged and skipped; a bad venues file is fatal.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	// ── Venues ──────────────────────────────────────────────────
	venueCfg, err := config.LoadVenues(cfg.VenuesConfigPath)
	if err != nil {
		return nil, err
	}
	reg, err := venues.New(venueCfg)
	if err != nil {
		return nil, err
	}
	return newRuntime(cfg, reg), nil
}

func newRuntime(cfg *config.Config, reg *venues.Registry) *Runtime {
	rt := &Runtime{cfg: cfg, venues: reg, bus: events.NewBus()}
	telemetry.Infof("venues: %v", reg.Names())

	// ── Journal ─────────────────────────────────────────────────
	if cfg.JournalPath != "" {
		store, err := tracking.OpenStore(cfg.JournalPath)
		if err != nil {
			telemetry.Warnf("journal: disabled, open %s failed: %v", cfg.JournalPath, err)
		} else {
			rt.journal = store
			rt.recorder = tracking.NewRecorder(store)
			rt.recorder.Attach(rt.bus)
			telemetry.Infof("journal: %s", cfg.JournalPath)
		}
	}

	// ── Alerts ──────────────────────────────────────────────────
	rt.alerts = discord.NewDispatcher(discord.NewNotifier(cfg.DiscordWebhookURL))
	rt.alerts.Attach(rt.bus)

	// ── Status API ──────────────────────────────────────────────
	if cfg.StatusAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		rt.stopStatus = cancel
		rt.statusDone = make(chan struct{})
		srv := status_http.NewServer(rt.bus, fanout.NewServer(rt.bus))
		go func() {
			defer close(rt.statusDone)
			if err := srv.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				telemetry.Warnf("status: %v", err)
			}
		}()
	}
	return rt
}

// Bus exposes the event bus so callers can attach extra subscribers.
func (r *Runtime) Bus() *events.Bus { return r.bus }

func (r *Runtime) EngineOptions() execution.Options {
	opts := execution.DefaultOptions()
	opts.CallTimeout = r.cfg.CallTimeout
	opts.PlaceAttempts = r.cfg.PlaceAttempts
	opts.HedgeAttempts = r.cfg.HedgeAttempts
	opts.QueryAttempts = r.cfg.QueryAttempts
	opts.CancelAttempts = r.cfg.CancelAttempts
	opts.SettleAttempts = r.cfg.SettleAttempts
	opts.CancelSettle = r.cfg.CancelSettle
	opts.Backoff = retry.Backoff{Base: r.cfg.RetryBase, Max: r.cfg.RetryMax}
	opts.ReconnectGrace = r.cfg.ReconnectGrace
	opts.FirstQuoteTimeout = r.cfg.FirstQuoteTimeout
	return opts
}

// RunSession resolves both venues and drives one session to its outcome.
// Cancelling ctx is the operator interrupt.
func (r *Runtime) RunSession(ctx context.Context, p execution.Params) (execution.Summary, error) {
	primary, err := r.venues.Get(p.PrimaryVenue)
	if err != nil {
		return execution.Summary{}, err
	}
	hedge, err := r.venues.Get(p.HedgeVenue)
	if err != nil {
		return execution.Summary{}, err
	}
	p.PrimaryVenue, p.HedgeVenue = primary.Name(), hedge.Name()

	return execution.NewEngine(primary, hedge, r.bus, r.EngineOptions()).Run(ctx, p)
}

// Cancel sends one cancel to a venue. It reports whether the venue accepted
// it; a refused cancel usually means the order is already closed.
func (r *Runtime) Cancel(ctx context.Context, c CancelCommand) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	adapter, err := r.venues.Get(c.Venue)
	if err != nil {
		return false, err
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return adapter.Cancel(callCtx, c.OrderID, symbols.Normalize(c.Symbol))
}

// Close flushes the journal and alert queues and stops the status server.
func (r *Runtime) Close() {
	if r.stopStatus != nil {
		r.stopStatus()
		<-r.statusDone
	}
	r.alerts.Close()
	if r.recorder != nil {
		r.recorder.Close()
	}
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			telemetry.Warnf("journal: close: %v", err)
		}
	}
}

// PrintSummary writes the operator-facing session report.
func PrintSummary(w io.Writer, s execution.Summary) {
	fmt.Fprintf(w, "session    %s\n", s.SessionID)
	fmt.Fprintf(w, "outcome    %s (%s)\n", s.Outcome, s.Reason)
	fmt.Fprintf(w, "order      %s\n", s.PrimaryOrderID)
	fmt.Fprintf(w, "filled     %s / %s\n", s.TotalFilled, s.TotalSize)
	fmt.Fprintf(w, "hedged     %s\n", s.TotalHedged)
	fmt.Fprintf(w, "price      %s\n", s.FinalPrice)
	fmt.Fprintf(w, "renewals   %d\n", s.RenewalsCount)
	fmt.Fprintf(w, "quotes     %d\n", s.PriceUpdatesCount)
	fmt.Fprintf(w, "duration   %s\n", s.Duration.Round(time.Millisecond))
	if s.Err != nil {
		fmt.Fprintf(w, "error      %v\n", s.Err)
	}
	if s.ManualAction != "" {
		fmt.Fprintf(w, "\nMANUAL ACTION REQUIRED\n  %s\n", s.ManualAction)
	}
}
