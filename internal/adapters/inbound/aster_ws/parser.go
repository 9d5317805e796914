package aster_ws

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/adapters/outbound/aster_http"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

// userEvent covers the user-stream events we act on.
type userEvent struct {
	Event string         `json:"e"`
	Time  int64          `json:"E"`
	Order orderTradeData `json:"o"`
}

type orderTradeData struct {
	OrderID       int64           `json:"i"`
	ClientOrderID string          `json:"c"`
	Symbol        string          `json:"s"`
	Status        string          `json:"X"`
	Side          string          `json:"S"`
	ReduceOnly    bool            `json:"R"`
	Type          string          `json:"o"`
	OrigQty       decimal.Decimal `json:"q"`
	Price         decimal.Decimal `json:"p"`
	FilledQty     decimal.Decimal `json:"z"`
	AvgPrice      decimal.Decimal `json:"ap"`
	TradeTime     int64           `json:"T"`
}

// UserMessage is the parsed form of one user-stream frame.
type UserMessage struct {
	Order   *trading.Order
	Expired bool
}

// ParseUserMessage decodes ORDER_TRADE_UPDATE and listenKeyExpired frames.
// Anything else yields an empty message.
func ParseUserMessage(raw []byte) (UserMessage, error) {
	var ev userEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return UserMessage{}, err
	}
	switch ev.Event {
	case "listenKeyExpired":
		return UserMessage{Expired: true}, nil
	case "ORDER_TRADE_UPDATE":
	default:
		return UserMessage{}, nil
	}

	d := ev.Order
	o := trading.Order{
		ID:             strconv.FormatInt(d.OrderID, 10),
		ClientOrderID:  d.ClientOrderID,
		Venue:          aster_http.Venue,
		Symbol:         aster_http.BaseSymbol(d.Symbol),
		Side:           aster_http.ParseSide(d.Side, d.ReduceOnly),
		Type:           aster_http.ParseType(d.Type),
		Size:           d.OrigQty,
		Price:          aster_http.Positive(d.Price),
		Status:         aster_http.ParseStatus(d.Status),
		FilledQuantity: d.FilledQty,
		AveragePrice:   aster_http.Positive(d.AvgPrice),
	}
	switch {
	case d.TradeTime > 0:
		o.UpdatedAt = time.UnixMilli(d.TradeTime)
	case ev.Time > 0:
		o.UpdatedAt = time.UnixMilli(ev.Time)
	default:
		o.UpdatedAt = time.Now()
	}
	return UserMessage{Order: &o}, nil
}

type depthEvent struct {
	Event  string              `json:"e"`
	Time   int64               `json:"E"`
	Symbol string              `json:"s"`
	Bids   [][]decimal.Decimal `json:"b"`
	Asks   [][]decimal.Decimal `json:"a"`
}

// ParseDepth extracts the top of book from a depth20 frame. ok is false for
// subscription acks and frames with an empty side.
func ParseDepth(raw []byte) (q trading.PriceQuote, ok bool, err error) {
	var ev depthEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return trading.PriceQuote{}, false, err
	}
	if ev.Event != "depthUpdate" || len(ev.Bids) == 0 || len(ev.Asks) == 0 ||
		len(ev.Bids[0]) == 0 || len(ev.Asks[0]) == 0 {
		return trading.PriceQuote{}, false, nil
	}
	q = trading.PriceQuote{
		Venue:      aster_http.Venue,
		Symbol:     aster_http.BaseSymbol(ev.Symbol),
		BestBid:    ev.Bids[0][0],
		BestAsk:    ev.Asks[0][0],
		ObservedAt: time.Now(),
	}
	return q, true, nil
}
