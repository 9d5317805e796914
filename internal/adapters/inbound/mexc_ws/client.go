package mexc_ws

import (
	"context"
	"errors"
	"time"

	"github.com/charleschow/funding-arb/internal/adapters/inbound/wsfeed"
	"github.com/charleschow/funding-arb/internal/adapters/outbound/mexc_http"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

var pingPayload = []byte(`{"method":"ping"}`)

// Streams serves the MEXC futures edge socket. The private order channel
// needs an API key pair; the ticker does not.
type Streams struct {
	wsURL     string
	apiKey    string
	apiSecret string
	now       func() time.Time
}

func NewStreams(wsURL, apiKey, apiSecret string) *Streams {
	return &Streams{wsURL: wsURL, apiKey: apiKey, apiSecret: apiSecret, now: time.Now}
}

// StreamOrders logs in, subscribes to personal order pushes once the login
// is acknowledged, and forwards every update.
func (s *Streams) StreamOrders(ctx context.Context, updates chan<- trading.Order, status chan<- venue.StreamStatus) error {
	if s.apiKey == "" || s.apiSecret == "" {
		return venue.Authentication(mexc_http.Venue, "stream orders", errors.New("api key and secret required"))
	}
	return wsfeed.Run(ctx, wsfeed.Config{
		Venue:  mexc_http.Venue,
		Stream: "orders",
		URL:    wsfeed.StaticURL(s.wsURL),
		OnConnect: func(_ context.Context, c *wsfeed.Conn) error {
			return c.WriteJSON(loginCommand(s.apiKey, s.apiSecret, s.now()))
		},
		Handle: func(ctx context.Context, c *wsfeed.Conn, raw []byte) error {
			msg, err := ParseMessage(raw)
			if err != nil {
				telemetry.Metrics.ParseErrors.Inc()
				telemetry.Warnf("mexc_ws: parse private frame: %v", err)
				return nil
			}
			switch {
			case msg.LoginFailed != "":
				return venue.Authentication(mexc_http.Venue, "login", errors.New(msg.LoginFailed))
			case msg.LoggedIn:
				telemetry.Infof("mexc_ws: logged in, subscribing to order pushes")
				return c.WriteJSON(command{Method: "sub.personal.order", Param: struct{}{}})
			case msg.Order == nil:
				return nil
			}
			select {
			case updates <- *msg.Order:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
		Ping:   pingPayload,
		Status: status,
	})
}

type tickerParam struct {
	Symbol string `json:"symbol"`
}

// StreamBook follows sub.ticker, whose bid1/ask1 are the top of book.
func (s *Streams) StreamBook(ctx context.Context, symbol string, quotes chan<- trading.PriceQuote) error {
	pair := mexc_http.Symbol(symbol)
	return wsfeed.Run(ctx, wsfeed.Config{
		Venue:  mexc_http.Venue,
		Stream: "book",
		URL:    wsfeed.StaticURL(s.wsURL),
		OnConnect: func(_ context.Context, c *wsfeed.Conn) error {
			return c.WriteJSON(command{Method: "sub.ticker", Param: tickerParam{Symbol: pair}})
		},
		Handle: func(ctx context.Context, _ *wsfeed.Conn, raw []byte) error {
			q, ok, err := ParseTicker(raw)
			if err != nil {
				telemetry.Metrics.ParseErrors.Inc()
				telemetry.Debugf("mexc_ws: parse ticker: %v", err)
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
		Ping: pingPayload,
	})
}
