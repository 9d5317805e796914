package fanout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/funding-arb/internal/events"
)

func TestMarshalRoundTrip(t *testing.T) {
	in := events.New(events.EventHedge, "s1", "mexc", "BTC", events.HedgeEvent{
		PrimaryOrderID: "42",
		HedgeOrderID:   "h1",
		Size:           decimal.RequireFromString("0.05"),
		Confirmed:      true,
	})
	data, err := MarshalEvent(in)
	require.NoError(t, err)

	out, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, "s1", out.SessionID)
	h, ok := out.Payload.(events.HedgeEvent)
	require.True(t, ok)
	assert.True(t, h.Size.Equal(decimal.RequireFromString("0.05")))

	_, err = UnmarshalEvent([]byte(`{"type":"nope","payload":{}}`))
	assert.Error(t, err)
}

type collector struct {
	mu  sync.Mutex
	got []events.Event
}

func (c *collector) handle(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
	return nil
}

func (c *collector) sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.got {
		out = append(out, e.SessionID)
	}
	return out
}

func TestServerToClient_FiltersBySession(t *testing.T) {
	serverBus := events.NewBus()
	srv := NewServer(serverBus)
	hs := httptest.NewServer(httpHandler(srv))
	defer hs.Close()

	localBus := events.NewBus()
	var col collector
	localBus.Subscribe(col.handle, events.EventSession, events.EventAlert)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewClient(strings.TrimPrefix(hs.URL, "http://"), "s1", localBus).ConnectWithRetry(ctx)

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, 3*time.Second, 10*time.Millisecond)

	serverBus.Publish(events.New(events.EventSession, "s2", "aster", "BTC", events.SessionEvent{State: "MONITORING"}))
	serverBus.Publish(events.New(events.EventAlert, "s1", "aster", "BTC", events.AlertEvent{Level: events.AlertFatal, Title: "x"}))

	require.Eventually(t, func() bool { return len(col.sessions()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"s1"}, col.sessions())
}

func httpHandler(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	return mux
}
