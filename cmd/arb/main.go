package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charleschow/funding-arb/internal/config"
	"github.com/charleschow/funding-arb/internal/core/execution"
	"github.com/charleschow/funding-arb/internal/process"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const usage = `usage: arb <command> [flags]

commands:
  open    place a limit order on the primary venue and hedge every fill
  close   unwind a hedged position the same way
  cancel  cancel one order directly

run "arb <command> -h" for flags`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	var code int
	switch os.Args[1] {
	case "open":
		code = runOpen(cfg, os.Args[2:])
	case "close":
		code = runClose(cfg, os.Args[2:])
	case "cancel":
		code = runCancel(cfg, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		code = 2
	}
	os.Exit(code)
}

type sessionFlags struct {
	primarySide, hedgeSide *string
	req                    process.SessionRequest
}

func bindSession(fs *flag.FlagSet, sideHelp string) *sessionFlags {
	f := &sessionFlags{
		primarySide: fs.String("primary-side", "", "primary side: "+sideHelp),
		hedgeSide:   fs.String("hedge-side", "", "hedge side: "+sideHelp),
	}
	fs.StringVar(&f.req.PrimaryVenue, "primary", "", "venue that carries the resting limit order")
	fs.StringVar(&f.req.HedgeVenue, "hedge", "", "venue that receives the market hedges")
	fs.StringVar(&f.req.Symbol, "symbol", "", "base asset, e.g. BTC")
	fs.StringVar(&f.req.Size, "size", "", "total size in base units")
	fs.StringVar(&f.req.LimitPrice, "price", "", "limit price (required unless -dynamic)")
	fs.BoolVar(&f.req.Dynamic, "dynamic", false, "track the hedge venue's book and renew the order")
	fs.StringVar(&f.req.OffsetPct, "offset", "0", "dynamic price offset from the reference, percent")
	fs.StringVar(&f.req.TolerancePct, "tolerance", execution.DefaultTolerancePct.String(), "renew when the price drifts past this, percent")
	fs.Float64Var(&f.req.PollIntervalSeconds, "poll", execution.DefaultPollInterval.Seconds(), "order status poll interval, seconds")
	fs.Float64Var(&f.req.TimeoutSeconds, "timeout", 0, "session deadline in seconds, 0 for none")
	return f
}

func runOpen(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	f := bindSession(fs, "LONG or SHORT")
	fs.Parse(args)

	p, err := process.OpenCommand{PrimarySide: *f.primarySide, HedgeSide: *f.hedgeSide, SessionRequest: f.req}.Params()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return runSession(cfg, p)
}

func runClose(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	f := bindSession(fs, "CLOSE_LONG or CLOSE_SHORT")
	fs.Parse(args)

	p, err := process.CloseCommand{PrimarySide: *f.primarySide, HedgeSide: *f.hedgeSide, SessionRequest: f.req}.Params()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return runSession(cfg, p)
}

func runSession(cfg *config.Config, p execution.Params) int {
	rt, err := process.NewRuntime(cfg)
	if err != nil {
		telemetry.Errorf("startup: %v", err)
		return 1
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		telemetry.Infof("Interrupt received, stopping session...")
		cancel()
	}()

	sum, err := rt.RunSession(ctx, p)
	if sum.SessionID == "" {
		telemetry.Errorf("session: %v", err)
		return 1
	}
	process.PrintSummary(os.Stdout, sum)
	switch {
	case sum.ManualAction != "":
		return 3
	case err != nil:
		return 1
	}
	return 0
}

func runCancel(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	var c process.CancelCommand
	fs.StringVar(&c.Venue, "venue", "", "venue holding the order")
	fs.StringVar(&c.OrderID, "order-id", "", "venue order id")
	fs.StringVar(&c.Symbol, "symbol", "", "base asset, e.g. BTC")
	fs.Parse(args)

	if err := c.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	rt, err := process.NewRuntime(cfg)
	if err != nil {
		telemetry.Errorf("startup: %v", err)
		return 1
	}
	defer rt.Close()

	ok, err := rt.Cancel(context.Background(), c)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			telemetry.Errorf("cancel %s: timed out, check the order on %s", c.OrderID, c.Venue)
		} else {
			telemetry.Errorf("cancel %s: %v", c.OrderID, err)
		}
		return 1
	}
	if !ok {
		fmt.Printf("%s declined cancel of %s; it is probably already filled or cancelled\n", c.Venue, c.OrderID)
		return 1
	}
	fmt.Printf("cancelled %s on %s\n", c.OrderID, c.Venue)
	return 0
}
