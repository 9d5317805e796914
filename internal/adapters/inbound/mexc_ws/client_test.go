package mexc_ws

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
)

const orderPush = `{"channel":"push.personal.order","ts":1700000000200,"data":{
	"orderId":"739113577038255616","symbol":"BTC_USDT","externalOid":"cid-1","side":3,"orderType":1,
	"state":2,"vol":0.1,"price":50000,"dealVol":0.04,"dealAvgPrice":50000,"updateTime":1700000000100}}`

func TestLoginCommand(t *testing.T) {
	cmd := loginCommand("key", "secret", time.UnixMilli(1700000000000))
	assert.Equal(t, "login", cmd.Method)
	p := cmd.Param.(loginParam)
	assert.Equal(t, "1700000000000", p.ReqTime)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("key1700000000000"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), p.Signature)
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(orderPush))
	require.NoError(t, err)
	require.NotNil(t, msg.Order)
	o := msg.Order
	assert.Equal(t, "739113577038255616", o.ID)
	assert.Equal(t, "cid-1", o.ClientOrderID)
	assert.Equal(t, "BTC", o.Symbol)
	assert.Equal(t, trading.SideShort, o.Side)
	assert.Equal(t, trading.OrderTypeLimit, o.Type)
	assert.Equal(t, trading.StatusPartial, o.Status)
	assert.True(t, o.FilledQuantity.Equal(decimal.RequireFromString("0.04")))
	assert.Equal(t, int64(1700000000100), o.UpdatedAt.UnixMilli())

	msg, err = ParseMessage([]byte(`{"channel":"rs.login","data":"success","ts":1}`))
	require.NoError(t, err)
	assert.True(t, msg.LoggedIn)

	msg, err = ParseMessage([]byte(`{"channel":"rs.login","data":"signature error","ts":1}`))
	require.NoError(t, err)
	assert.Equal(t, "signature error", msg.LoginFailed)

	msg, err = ParseMessage([]byte(`{"channel":"pong","data":1700000000000}`))
	require.NoError(t, err)
	assert.Equal(t, Message{}, msg)

	_, err = ParseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseTicker(t *testing.T) {
	q, ok, err := ParseTicker([]byte(`{"channel":"push.ticker","data":{"symbol":"BTC_USDT",
		"bid1":50000.1,"ask1":50000.5,"timestamp":1700000000000}}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTC", q.Symbol)
	assert.True(t, q.BestBid.Equal(decimal.RequireFromString("50000.1")))
	assert.True(t, q.BestAsk.Equal(decimal.RequireFromString("50000.5")))

	_, ok, err = ParseTicker([]byte(`{"channel":"rs.sub.ticker","data":"success"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestStreamOrders_LoginThenSubscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var login command
		if err := c.ReadJSON(&login); err != nil || login.Method != "login" {
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte(`{"channel":"rs.login","data":"success","ts":1}`))

		var sub map[string]json.RawMessage
		if err := c.ReadJSON(&sub); err != nil || string(sub["method"]) != `"sub.personal.order"` {
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte(orderPush))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan trading.Order, 4)
	go NewStreams(wsURL(srv), "key", "secret").StreamOrders(ctx, updates, nil)

	select {
	case o := <-updates:
		assert.Equal(t, "739113577038255616", o.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("no order update")
	}
}

func TestStreamOrders_LoginFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		var login command
		c.ReadJSON(&login)
		c.WriteMessage(websocket.TextMessage, []byte(`{"channel":"rs.login","data":"api key invalid","ts":1}`))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := NewStreams(wsURL(srv), "key", "secret").StreamOrders(ctx, make(chan trading.Order, 1), nil)
	assert.True(t, venue.IsAuthentication(err))
}

func TestStreamOrders_NeedsCredentials(t *testing.T) {
	err := NewStreams("ws://unused", "", "").StreamOrders(context.Background(), nil, nil)
	assert.True(t, venue.IsAuthentication(err))
}
