// Package pricefeed turns a venue book stream into a latest-wins quote
// channel for the engine loop.
package pricefeed

import (
	"context"
	"errors"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const rawBuffer = 64

// Feed streams top-of-book for one symbol. Quotes whose bid and ask did not
// change are dropped; an unconsumed quote is replaced by a newer one.
type Feed struct {
	streamer venue.BookStreamer
	venue    string
	symbol   string
	out      chan trading.PriceQuote
}

func New(streamer venue.BookStreamer, venueName, symbol string) *Feed {
	return &Feed{
		streamer: streamer,
		venue:    venueName,
		symbol:   symbol,
		out:      make(chan trading.PriceQuote, 1),
	}
}

// Quotes is the engine-facing channel. It is never closed.
func (f *Feed) Quotes() <-chan trading.PriceQuote { return f.out }

// Run blocks until ctx is done or the underlying stream fails permanently.
func (f *Feed) Run(ctx context.Context) error {
	raw := make(chan trading.PriceQuote, rawBuffer)
	errc := make(chan error, 1)
	go func() { errc <- f.streamer.StreamBook(ctx, f.symbol, raw) }()

	var last trading.PriceQuote
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			telemetry.Errorf("pricefeed[%s]: book stream stopped: %v", f.venue, err)
			return err
		case q := <-raw:
			if !q.Valid() || q.SameTop(last) {
				continue
			}
			last = q
			telemetry.Metrics.PriceUpdates.Inc()
			f.offer(q)
		}
	}
}

// offer publishes q, evicting an unconsumed older quote. Run is the only
// sender so the second send cannot block.
func (f *Feed) offer(q trading.PriceQuote) {
	select {
	case f.out <- q:
		return
	default:
	}
	select {
	case <-f.out:
	default:
	}
	f.out <- q
}
