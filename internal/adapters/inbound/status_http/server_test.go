package status_http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/fanout"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSessionEndpoints(t *testing.T) {
	bus := events.NewBus()
	s := NewServer(bus, fanout.NewServer(bus))
	h := s.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/session").Code)

	bus.Publish(events.New(events.EventSession, "s1", "aster", "BTC", events.SessionEvent{State: "MONITORING"}))
	bus.Publish(events.New(events.EventSession, "s2", "aster", "ETH", events.SessionEvent{
		State:       "DONE",
		Outcome:     "FILLED",
		TotalFilled: decimal.RequireFromString("0.1"),
	}))

	rec := get(t, h, "/api/v1/session")
	require.Equal(t, http.StatusOK, rec.Code)
	var view SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "s2", view.SessionID)
	assert.Equal(t, "FILLED", view.Session.Outcome)

	rec = get(t, h, "/api/v1/sessions/s1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "MONITORING", view.Session.State)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/sessions/nope").Code)
}

func TestMetricsAndHealth(t *testing.T) {
	bus := events.NewBus()
	h := NewServer(bus, fanout.NewServer(bus)).Handler()

	rec := get(t, h, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.NotEmpty(t, m)

	rec = get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","watchers":0}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	bus := events.NewBus()
	h := NewServer(bus, nil).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/metrics", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
