package hyperliquid_http

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

type orderWire struct {
	Coin       string          `json:"coin"`
	IsBuy      bool            `json:"is_buy"`
	Sz         json.Number     `json:"sz"`
	LimitPx    *json.Number    `json:"limit_px"`
	OrderType  json.RawMessage `json:"order_type"`
	ReduceOnly bool            `json:"reduce_only"`
	Cloid      string          `json:"cloid,omitempty"`
}

type orderAction struct {
	Type     string      `json:"type"`
	Orders   []orderWire `json:"orders"`
	Grouping string      `json:"grouping"`
}

type cancelWire struct {
	Coin string `json:"coin"`
	Oid  int64  `json:"oid"`
}

type cancelAction struct {
	Type    string       `json:"type"`
	Cancels []cancelWire `json:"cancels"`
}

var (
	gtcType    = json.RawMessage(`{"limit":{"tif":"Gtc"}}`)
	marketType = json.RawMessage(`{"market":{}}`)
)

// placeStatus is one entry of the order action's statuses.
type placeStatus struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting"`
	Filled *struct {
		Oid     int64           `json:"oid"`
		TotalSz decimal.Decimal `json:"totalSz"`
		AvgPx   decimal.Decimal `json:"avgPx"`
	} `json:"filled"`
	Error string `json:"error"`
}

func (c *Client) Place(ctx context.Context, req venue.PlaceRequest) (trading.Order, error) {
	w := orderWire{
		Coin:       Coin(req.Symbol),
		IsBuy:      req.Side.IsBuy(),
		Sz:         json.Number(req.Size.String()),
		OrderType:  marketType,
		ReduceOnly: req.Side.ReduceOnly(),
		Cloid:      Cloid(req.ClientOrderID),
	}
	if req.Type == trading.OrderTypeLimit {
		if !req.Price.Valid {
			return trading.Order{}, venue.Rejected(Venue, "place", fmt.Errorf("limit order without price"))
		}
		px := json.Number(req.Price.Decimal.String())
		w.LimitPx = &px
		w.OrderType = gtcType
	}

	statuses, err := c.exchange(ctx, "place", orderAction{Type: "order", Orders: []orderWire{w}, Grouping: "na"})
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		return trading.Order{}, err
	}
	var st placeStatus
	if err := json.Unmarshal(statuses[0], &st); err != nil {
		return trading.Order{}, venue.Transient(Venue, "place", fmt.Errorf("unmarshal status: %w", err))
	}

	o := trading.Order{
		ClientOrderID: req.ClientOrderID,
		Venue:         Venue,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		Status:        trading.StatusPending,
		UpdatedAt:     time.Now(),
	}
	switch {
	case st.Error != "":
		telemetry.Metrics.OrderErrors.Inc()
		return trading.Order{}, classify("place", st.Error)
	case st.Filled != nil:
		o.ID = strconv.FormatInt(st.Filled.Oid, 10)
		o.FilledQuantity = st.Filled.TotalSz
		if o.FilledQuantity.GreaterThanOrEqual(req.Size) {
			o.Status = trading.StatusFilled
		} else {
			o.Status = trading.StatusPartial
		}
		if st.Filled.AvgPx.IsPositive() {
			o.AveragePrice = decimal.NewNullDecimal(st.Filled.AvgPx)
		}
	case st.Resting != nil:
		o.ID = strconv.FormatInt(st.Resting.Oid, 10)
	default:
		return trading.Order{}, venue.Transient(Venue, "place", fmt.Errorf("unrecognized status %s", statuses[0]))
	}

	telemetry.Infof("hyperliquid: order placed %s %s %s @ %s -> %s (%s)",
		w.Coin, req.Side, req.Size, req.Price.Decimal, o.ID, o.Status)
	return o, nil
}

// Cancel reports false without error when the exchange says the order is
// no longer open.
func (c *Client) Cancel(ctx context.Context, orderID, symbol string) (bool, error) {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, venue.Rejected(Venue, "cancel", fmt.Errorf("order id %q: %w", orderID, err))
	}
	statuses, err := c.exchange(ctx, "cancel", cancelAction{
		Type:    "cancel",
		Cancels: []cancelWire{{Coin: Coin(symbol), Oid: oid}},
	})
	if err != nil {
		return false, err
	}
	var ok string
	if json.Unmarshal(statuses[0], &ok) == nil && ok == "success" {
		return true, nil
	}
	var st struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(statuses[0], &st); err != nil {
		return false, venue.Transient(Venue, "cancel", fmt.Errorf("unmarshal status: %w", err))
	}
	telemetry.Warnf("hyperliquid: cancel %s refused: %s", orderID, st.Error)
	return false, nil
}

type orderStatusRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
	Oid  int64  `json:"oid"`
}

type orderStatusResponse struct {
	Status string `json:"status"`
	Order  struct {
		Order struct {
			Coin       string          `json:"coin"`
			Side       string          `json:"side"`
			LimitPx    decimal.Decimal `json:"limitPx"`
			Sz         decimal.Decimal `json:"sz"`
			OrigSz     decimal.Decimal `json:"origSz"`
			Oid        int64           `json:"oid"`
			Cloid      string          `json:"cloid"`
			OrderType  string          `json:"orderType"`
			ReduceOnly bool            `json:"reduceOnly"`
		} `json:"order"`
		Status          string `json:"status"`
		StatusTimestamp int64  `json:"statusTimestamp"`
	} `json:"order"`
}

// Query uses the orderStatus info request, which covers open and closed
// orders alike. Filled size is origSz minus the remaining sz.
func (c *Client) Query(ctx context.Context, orderID, symbol string) (trading.Order, error) {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return trading.Order{}, venue.Rejected(Venue, "query", fmt.Errorf("order id %q: %w", orderID, err))
	}
	var resp orderStatusResponse
	if err := c.info(ctx, "query", orderStatusRequest{
		Type: "orderStatus",
		User: c.signer.Address().Hex(),
		Oid:  oid,
	}, &resp); err != nil {
		return trading.Order{}, err
	}
	if resp.Status != "order" {
		return trading.Order{}, venue.Rejected(Venue, "query", fmt.Errorf("order %s: %s", orderID, resp.Status))
	}

	w := resp.Order.Order
	filled := w.OrigSz.Sub(w.Sz)
	status := ParseStatus(resp.Order.Status, filled)
	if status == trading.StatusFilled {
		filled = w.OrigSz
	}
	o := trading.Order{
		ID:             orderID,
		ClientOrderID:  w.Cloid,
		Venue:          Venue,
		Symbol:         w.Coin,
		Side:           ParseSide(w.Side, w.ReduceOnly),
		Type:           trading.OrderTypeLimit,
		Size:           w.OrigSz,
		Status:         status,
		FilledQuantity: filled,
		UpdatedAt:      time.Now(),
	}
	if o.Symbol == "" {
		o.Symbol = symbol
	}
	if w.OrderType == "Market" {
		o.Type = trading.OrderTypeMarket
	}
	if w.LimitPx.IsPositive() {
		o.Price = decimal.NewNullDecimal(w.LimitPx)
	}
	if resp.Order.StatusTimestamp > 0 {
		o.UpdatedAt = time.UnixMilli(resp.Order.StatusTimestamp)
	}
	return o, nil
}
