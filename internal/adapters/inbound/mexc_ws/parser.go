package mexc_ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/adapters/outbound/mexc_http"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

const (
	channelLogin  = "rs.login"
	channelError  = "rs.error"
	channelOrder  = "push.personal.order"
	channelTicker = "push.ticker"
)

type command struct {
	Method string `json:"method"`
	Param  any    `json:"param"`
}

type loginParam struct {
	APIKey    string `json:"apiKey"`
	ReqTime   string `json:"reqTime"`
	Signature string `json:"signature"`
}

// loginCommand signs apiKey+reqTime with HMAC-SHA256 of the API secret.
func loginCommand(apiKey, secret string, now time.Time) command {
	reqTime := strconv.FormatInt(now.UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(apiKey + reqTime))
	return command{Method: "login", Param: loginParam{
		APIKey:    apiKey,
		ReqTime:   reqTime,
		Signature: hex.EncodeToString(mac.Sum(nil)),
	}}
}

type frame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	Ts      int64           `json:"ts"`
}

// Message is the parsed form of one private-stream frame. At most one field
// is set.
type Message struct {
	LoggedIn    bool
	LoginFailed string
	Order       *trading.Order
}

// ParseMessage decodes login results and personal order pushes. Pongs and
// unknown channels yield an empty message.
func ParseMessage(raw []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Message{}, err
	}
	switch f.Channel {
	case channelLogin:
		var s string
		if err := json.Unmarshal(f.Data, &s); err != nil {
			return Message{LoginFailed: string(f.Data)}, nil
		}
		if s == "success" {
			return Message{LoggedIn: true}, nil
		}
		return Message{LoginFailed: s}, nil
	case channelError:
		return Message{LoginFailed: string(f.Data)}, nil
	case channelOrder:
	default:
		return Message{}, nil
	}

	var d mexc_http.OrderData
	if err := json.Unmarshal(f.Data, &d); err != nil {
		return Message{}, fmt.Errorf("order push: %w", err)
	}
	o, err := d.ToOrder("")
	if err != nil {
		return Message{}, fmt.Errorf("order push: %w", err)
	}
	switch {
	case d.UpdateTime > 0:
		o.UpdatedAt = time.UnixMilli(d.UpdateTime)
	case f.Ts > 0:
		o.UpdatedAt = time.UnixMilli(f.Ts)
	default:
		o.UpdatedAt = time.Now()
	}
	return Message{Order: &o}, nil
}

type tickerData struct {
	Symbol    string          `json:"symbol"`
	Bid1      decimal.Decimal `json:"bid1"`
	Ask1      decimal.Decimal `json:"ask1"`
	Timestamp int64           `json:"timestamp"`
}

// ParseTicker returns ok=false for frames that are not a usable ticker push.
func ParseTicker(raw []byte) (trading.PriceQuote, bool, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return trading.PriceQuote{}, false, err
	}
	if f.Channel != channelTicker {
		return trading.PriceQuote{}, false, nil
	}
	var d tickerData
	if err := json.Unmarshal(f.Data, &d); err != nil {
		return trading.PriceQuote{}, false, fmt.Errorf("ticker push: %w", err)
	}
	q := trading.PriceQuote{
		Venue:      mexc_http.Venue,
		Symbol:     mexc_http.BaseSymbol(d.Symbol),
		BestBid:    d.Bid1,
		BestAsk:    d.Ask1,
		ObservedAt: time.Now(),
	}
	if d.Timestamp > 0 {
		q.ObservedAt = time.UnixMilli(d.Timestamp)
	}
	if !q.Valid() {
		return trading.PriceQuote{}, false, nil
	}
	return q, true, nil
}
