package aster_ws

import (
	"context"
	"strings"
	"time"

	"github.com/charleschow/funding-arb/internal/adapters/inbound/wsfeed"
	"github.com/charleschow/funding-arb/internal/adapters/outbound/aster_http"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// Streams serves the Aster user stream (orders) and the public depth stream.
type Streams struct {
	wsURL string
	keys  *aster_http.ListenKeys
}

// NewStreams takes the stream base URL, e.g. "wss://fstream.asterdex.com".
// keys may be nil when only the book stream is used.
func NewStreams(wsURL string, keys *aster_http.ListenKeys) *Streams {
	return &Streams{wsURL: strings.TrimSuffix(wsURL, "/"), keys: keys}
}

// StreamOrders follows ORDER_TRADE_UPDATE events for the account. The listen
// key is kept alive while the stream runs and deleted when it stops.
func (s *Streams) StreamOrders(ctx context.Context, updates chan<- trading.Order, status chan<- venue.StreamStatus) error {
	keepCtx, stopKeep := context.WithCancel(ctx)
	defer stopKeep()
	go s.keepAlive(keepCtx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.keys.Close(closeCtx); err != nil {
			telemetry.Debugf("aster_ws: close listen key: %v", err)
		}
	}()

	return wsfeed.Run(ctx, wsfeed.Config{
		Venue:  aster_http.Venue,
		Stream: "orders",
		URL: func(ctx context.Context) (string, error) {
			key, err := s.keys.Key(ctx)
			if err != nil {
				return "", err
			}
			return s.wsURL + "/ws/" + key, nil
		},
		Handle: func(ctx context.Context, _ *wsfeed.Conn, raw []byte) error {
			msg, err := ParseUserMessage(raw)
			if err != nil {
				telemetry.Metrics.ParseErrors.Inc()
				telemetry.Warnf("aster_ws: parse user event: %v", err)
				return nil
			}
			if msg.Expired {
				telemetry.Warnf("aster_ws: listen key expired, reconnecting")
				s.keys.Invalidate()
				return wsfeed.ErrReconnect
			}
			if msg.Order == nil {
				return nil
			}
			select {
			case updates <- *msg.Order:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
		Status: status,
	})
}

func (s *Streams) keepAlive(ctx context.Context) {
	t := time.NewTicker(aster_http.ListenKeyKeepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.keys.KeepAlive(callCtx)
		cancel()
		if err != nil {
			telemetry.Warnf("aster_ws: listen key keepalive failed, next dial gets a new key: %v", err)
		}
	}
}

type subscribeCmd struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// StreamBook follows <symbol>@depth20@100ms for one base asset.
func (s *Streams) StreamBook(ctx context.Context, symbol string, quotes chan<- trading.PriceQuote) error {
	stream := strings.ToLower(aster_http.Symbol(symbol)) + "@depth20@100ms"
	return wsfeed.Run(ctx, wsfeed.Config{
		Venue:  aster_http.Venue,
		Stream: "book",
		URL:    wsfeed.StaticURL(s.wsURL + "/ws"),
		OnConnect: func(_ context.Context, c *wsfeed.Conn) error {
			return c.WriteJSON(subscribeCmd{Method: "SUBSCRIBE", Params: []string{stream}, ID: 1})
		},
		Handle: func(ctx context.Context, _ *wsfeed.Conn, raw []byte) error {
			q, ok, err := ParseDepth(raw)
			if err != nil {
				telemetry.Metrics.ParseErrors.Inc()
				telemetry.Debugf("aster_ws: parse depth: %v", err)
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
	})
}
