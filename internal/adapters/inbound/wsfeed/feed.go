// Package wsfeed is the dial/read/reconnect loop shared by every venue
// WebSocket stream.
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/funding-arb/internal/core/retry"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const (
	DefaultPingInterval = 20 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultStableAfter  = 5 * time.Minute

	writeTimeout = 5 * time.Second
)

// ErrReconnect, returned from a handler, drops the connection and dials again
// without counting as a failure.
var ErrReconnect = errors.New("reconnect requested")

// Config describes one logical stream. Only URL and Handle are required.
type Config struct {
	Venue  string
	Stream string

	// URL is resolved on every dial so it can carry fresh credentials.
	URL    func(ctx context.Context) (string, error)
	Header http.Header

	// OnConnect runs after the handshake and before the first read: login,
	// subscriptions.
	OnConnect func(ctx context.Context, c *Conn) error
	// Handle processes one text or binary frame. An authentication error
	// ends Run, any other error drops the connection.
	Handle func(ctx context.Context, c *Conn, msg []byte) error

	// Ping is an application-level ping payload. When nil a control ping
	// frame is sent instead.
	Ping         []byte
	PingInterval time.Duration
	ReadTimeout  time.Duration
	// StableAfter resets the backoff once a connection lived this long.
	StableAfter time.Duration
	Backoff     retry.Backoff

	// Status, when set, receives a StreamStatus on every connect and
	// disconnect.
	Status chan<- venue.StreamStatus
	Dialer *websocket.Dialer
}

func (c *Config) withDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.StableAfter <= 0 {
		c.StableAfter = DefaultStableAfter
	}
	if c.Backoff.Base <= 0 {
		c.Backoff = retry.Stream
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Conn serializes writes: gorilla/websocket allows one concurrent writer.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *Conn) WriteText(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Run connects and reconnects until ctx is done (nil) or the stream fails
// with an authentication error (returned).
func Run(ctx context.Context, cfg Config) error {
	cfg.withDefaults()
	tag := fmt.Sprintf("wsfeed[%s/%s]", cfg.Venue, cfg.Stream)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		connStart := time.Now()
		err := session(ctx, cfg)
		if ctx.Err() != nil {
			return nil
		}
		if venue.IsAuthentication(err) {
			telemetry.Errorf("%s: giving up: %v", tag, err)
			return err
		}
		if errors.Is(err, ErrReconnect) {
			telemetry.Infof("%s: reconnecting on request", tag)
			attempt = 0
			continue
		}

		if time.Since(connStart) > cfg.StableAfter {
			attempt = 0
		}
		backoff := cfg.Backoff.Delay(attempt)
		attempt++
		telemetry.Metrics.StreamReconnects.Inc()
		telemetry.Warnf("%s: connection lost (attempt %d): %v, retrying in %s", tag, attempt, err, backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func session(ctx context.Context, cfg Config) (err error) {
	url, err := cfg.URL(ctx)
	if err != nil {
		return fmt.Errorf("resolve url: %w", err)
	}

	ws, resp, err := cfg.Dialer.DialContext(ctx, url, cfg.Header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return venue.Authentication(cfg.Venue, cfg.Stream, fmt.Errorf("handshake: %s", resp.Status))
		}
		return venue.Transient(cfg.Venue, cfg.Stream, fmt.Errorf("dial: %w", err))
	}
	defer ws.Close()
	stopClose := context.AfterFunc(ctx, func() { ws.Close() })
	defer stopClose()

	conn := &Conn{ws: ws}
	if cfg.OnConnect != nil {
		if err := cfg.OnConnect(ctx, conn); err != nil {
			return err
		}
	}

	report(ctx, cfg, true, nil)
	defer func() { report(ctx, cfg, false, err) }()
	telemetry.Infof("wsfeed[%s/%s]: connected", cfg.Venue, cfg.Stream)

	extend := func() { ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)) }
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	ws.SetPingHandler(func(appData string) error {
		extend()
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go keepAlive(conn, cfg, pingDone)

	for {
		extend()
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		telemetry.Metrics.StreamMessages.Inc()
		if err := cfg.Handle(ctx, conn, msg); err != nil {
			return err
		}
	}
}

func keepAlive(conn *Conn, cfg Config, done <-chan struct{}) {
	t := time.NewTicker(cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
		}
		var err error
		if cfg.Ping != nil {
			err = conn.WriteText(cfg.Ping)
		} else {
			err = conn.ping()
		}
		if err != nil {
			telemetry.Debugf("wsfeed[%s/%s]: ping: %v", cfg.Venue, cfg.Stream, err)
			return
		}
	}
}

func report(ctx context.Context, cfg Config, connected bool, err error) {
	if cfg.Status == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	st := venue.StreamStatus{
		Venue:     cfg.Venue,
		Stream:    cfg.Stream,
		Connected: connected,
		At:        time.Now(),
		Err:       err,
	}
	select {
	case cfg.Status <- st:
	case <-ctx.Done():
	}
}

// StaticURL is a Config.URL for endpoints without per-dial credentials.
func StaticURL(u string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return u, nil }
}
