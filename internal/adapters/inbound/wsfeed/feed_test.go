package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/funding-arb/internal/core/retry"
	"github.com/charleschow/funding-arb/internal/core/venue"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRun_ReconnectsAndReportsStatus(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)
		// Expect the subscribe sent from OnConnect.
		_, msg, err := c.ReadMessage()
		if err != nil || string(msg) != `{"op":"sub"}` {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte("hello"))
		if n == 1 {
			// Drop the first connection.
			return
		}
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan string, 8)
	status := make(chan venue.StreamStatus, 8)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			Venue:  "test",
			Stream: "orders",
			URL:    StaticURL(wsURL(srv)),
			OnConnect: func(_ context.Context, c *Conn) error {
				return c.WriteJSON(map[string]string{"op": "sub"})
			},
			Handle: func(_ context.Context, _ *Conn, msg []byte) error {
				msgs <- string(msg)
				return nil
			},
			Backoff: retry.Backoff{Base: 5 * time.Millisecond, Max: 10 * time.Millisecond},
			Status:  status,
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case m := <-msgs:
			assert.Equal(t, "hello", m)
		case <-time.After(2 * time.Second):
			t.Fatal("no message")
		}
	}

	var seen []bool
	for len(seen) < 3 {
		select {
		case st := <-status:
			assert.Equal(t, "orders", st.Stream)
			seen = append(seen, st.Connected)
		case <-time.After(2 * time.Second):
			t.Fatal("missing status")
		}
	}
	assert.Equal(t, []bool{true, false, true}, seen)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestRun_HandshakeRejectionIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := Run(context.Background(), Config{
		Venue:   "test",
		Stream:  "orders",
		URL:     StaticURL(wsURL(srv)),
		Handle:  func(context.Context, *Conn, []byte) error { return nil },
		Backoff: retry.Backoff{Base: time.Millisecond, Max: time.Millisecond},
	})
	require.Error(t, err)
	assert.True(t, venue.IsAuthentication(err))
}

func TestRun_HandlerRequestsReconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		conns.Add(1)
		_ = c.WriteMessage(websocket.TextMessage, []byte("expired"))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = Run(ctx, Config{
			Venue:  "test",
			Stream: "orders",
			URL:    StaticURL(wsURL(srv)),
			Handle: func(context.Context, *Conn, []byte) error { return ErrReconnect },
			// A failure backoff this long would stall the test.
			Backoff: retry.Backoff{Base: time.Hour, Max: time.Hour},
		})
	}()

	assert.Eventually(t, func() bool { return conns.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}
