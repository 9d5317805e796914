package fanout

import (
	"context"
	"net/url"

	"github.com/charleschow/funding-arb/internal/adapters/inbound/wsfeed"
	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// Client connects to a fanout server and republishes received events onto
// a local in-process bus.
type Client struct {
	url string
	bus *events.Bus
}

// NewClient takes the server's host:port. A non-empty session restricts the
// stream to that session.
func NewClient(addr, session string, bus *events.Bus) *Client {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if session != "" {
		u.RawQuery = url.Values{"session": {session}}.Encode()
	}
	return &Client{url: u.String(), bus: bus}
}

// ConnectWithRetry connects to the fanout server and reconnects on failure
// with exponential backoff. Blocks until ctx is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	return wsfeed.Run(ctx, wsfeed.Config{
		Venue:  "fanout",
		Stream: "events",
		URL:    wsfeed.StaticURL(c.url),
		Handle: func(_ context.Context, _ *wsfeed.Conn, msg []byte) error {
			evt, err := UnmarshalEvent(msg)
			if err != nil {
				telemetry.Warnf("fanout: unmarshal error: %v", err)
				return nil
			}
			c.bus.Publish(evt)
			return nil
		},
	})
}
