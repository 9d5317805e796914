package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/fanout"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "status server host:port")
	session := flag.String("session", "", "only show this session")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	telemetry.Init(telemetry.ParseLogLevel(*level))

	bus := events.NewBus()
	bus.Subscribe(printEvent,
		events.EventOrderUpdate, events.EventHedge, events.EventRenewal,
		events.EventSession, events.EventAlert, events.EventStreamStatus)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	telemetry.Infof("Watching %s", *addr)
	if err := fanout.NewClient(*addr, *session, bus).ConnectWithRetry(ctx); err != nil && ctx.Err() == nil {
		telemetry.Errorf("watch: %v", err)
		os.Exit(1)
	}
}

func printEvent(e events.Event) error {
	ts := e.Timestamp.Format("15:04:05.000")
	id := e.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	switch p := e.Payload.(type) {
	case events.OrderEvent:
		fmt.Printf("%s %s order   %-11s %s %s %s %s/%s\n", ts, id, p.Venue, p.OrderID, p.Side, p.Status, p.FilledQuantity, p.Size)
	case events.HedgeEvent:
		fmt.Printf("%s %s hedge   %+v\n", ts, id, p)
	case events.RenewalEvent:
		fmt.Printf("%s %s renew   #%d %s -> %s  %s -> %s (ref %s)\n", ts, id, p.RenewalCount, p.OldOrderID, p.NewOrderID, p.OldPrice, p.NewPrice, p.Reference)
	case events.SessionEvent:
		fmt.Printf("%s %s session %s %s filled=%s hedged=%s/%s renewals=%d\n", ts, id, p.State, p.Outcome, p.TotalFilled, p.TotalHedged, p.TotalSize, p.RenewalsCount)
		if p.ManualAction != "" {
			fmt.Printf("%s %s MANUAL  %s\n", ts, id, p.ManualAction)
		}
	case events.AlertEvent:
		fmt.Printf("%s %s ALERT   [%s] %s: %s\n", ts, id, p.Level, p.Title, p.Message)
	case events.StreamStatusEvent:
		fmt.Printf("%s %s stream  %s/%s connected=%t %s\n", ts, id, e.Venue, p.Stream, p.Connected, p.Error)
	default:
		fmt.Printf("%s %s %s\n", ts, id, e.Type)
	}
	return nil
}
