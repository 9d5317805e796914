package hyperliquid_ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/adapters/inbound/wsfeed"
	"github.com/charleschow/funding-arb/internal/adapters/outbound/hyperliquid_http"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// Streams serves the public l2Book channel. Hyperliquid order state is
// polled, so there is no StreamOrders.
type Streams struct {
	wsURL string
}

func NewStreams(wsURL string) *Streams { return &Streams{wsURL: wsURL} }

type subscription struct {
	Type string `json:"type"`
	Coin string `json:"coin"`
}

type subscribeCmd struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type level struct {
	Px decimal.Decimal `json:"px"`
	Sz decimal.Decimal `json:"sz"`
	N  int             `json:"n"`
}

type bookFrame struct {
	Channel string `json:"channel"`
	Data    struct {
		Coin   string    `json:"coin"`
		Time   int64     `json:"time"`
		Levels [][]level `json:"levels"`
	} `json:"data"`
}

// ParseBook returns ok=false for pongs, subscription acks and one-sided
// books.
func ParseBook(raw []byte) (trading.PriceQuote, bool, error) {
	var f bookFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return trading.PriceQuote{}, false, err
	}
	if f.Channel != "l2Book" {
		return trading.PriceQuote{}, false, nil
	}
	if len(f.Data.Levels) != 2 {
		return trading.PriceQuote{}, false, fmt.Errorf("l2Book: %d sides", len(f.Data.Levels))
	}
	bids, asks := f.Data.Levels[0], f.Data.Levels[1]
	if len(bids) == 0 || len(asks) == 0 {
		return trading.PriceQuote{}, false, nil
	}
	q := trading.PriceQuote{
		Venue:      hyperliquid_http.Venue,
		Symbol:     f.Data.Coin,
		BestBid:    bids[0].Px,
		BestAsk:    asks[0].Px,
		ObservedAt: time.Now(),
	}
	if f.Data.Time > 0 {
		q.ObservedAt = time.UnixMilli(f.Data.Time)
	}
	if !q.Valid() {
		return trading.PriceQuote{}, false, nil
	}
	return q, true, nil
}

func (s *Streams) StreamBook(ctx context.Context, symbol string, quotes chan<- trading.PriceQuote) error {
	coin := hyperliquid_http.Coin(symbol)
	return wsfeed.Run(ctx, wsfeed.Config{
		Venue:  hyperliquid_http.Venue,
		Stream: "book",
		URL:    wsfeed.StaticURL(s.wsURL),
		OnConnect: func(_ context.Context, c *wsfeed.Conn) error {
			return c.WriteJSON(subscribeCmd{Method: "subscribe", Subscription: subscription{Type: "l2Book", Coin: coin}})
		},
		Handle: func(ctx context.Context, _ *wsfeed.Conn, raw []byte) error {
			q, ok, err := ParseBook(raw)
			if err != nil {
				telemetry.Metrics.ParseErrors.Inc()
				telemetry.Debugf("hyperliquid_ws: parse book: %v", err)
				return nil
			}
			if !ok {
				return nil
			}
			select {
			case quotes <- q:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
		Ping: []byte(`{"method":"ping"}`),
	})
}
