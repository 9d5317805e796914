package aster_http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const orderPath = "/fapi/v3/order"

// orderResponse is the order object returned by place, cancel and query.
type orderResponse struct {
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Status        string          `json:"status"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	ReduceOnly    bool            `json:"reduceOnly"`
	OrigQty       decimal.Decimal `json:"origQty"`
	Price         decimal.Decimal `json:"price"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	UpdateTime    int64           `json:"updateTime"`
}

func (r orderResponse) toOrder() trading.Order {
	o := trading.Order{
		ID:             fmt.Sprintf("%d", r.OrderID),
		ClientOrderID:  r.ClientOrderID,
		Venue:          Venue,
		Symbol:         BaseSymbol(r.Symbol),
		Side:           ParseSide(r.Side, r.ReduceOnly),
		Type:           ParseType(r.Type),
		Size:           r.OrigQty,
		Price:          Positive(r.Price),
		Status:         ParseStatus(r.Status),
		FilledQuantity: r.ExecutedQty,
		AveragePrice:   Positive(r.AvgPrice),
	}
	if r.UpdateTime > 0 {
		o.UpdatedAt = time.UnixMilli(r.UpdateTime)
	} else {
		o.UpdatedAt = time.Now()
	}
	return o
}

func (c *Client) Place(ctx context.Context, req venue.PlaceRequest) (trading.Order, error) {
	params := map[string]string{
		"symbol":   Symbol(req.Symbol),
		"side":     orderSide(req.Side),
		"type":     string(req.Type),
		"quantity": req.Size.String(),
	}
	if req.Type == trading.OrderTypeLimit {
		if !req.Price.Valid {
			return trading.Order{}, venue.Rejected(Venue, "place", fmt.Errorf("limit order without price"))
		}
		params["price"] = req.Price.Decimal.String()
		params["timeInForce"] = "GTC"
	}
	if req.Side.ReduceOnly() {
		params["reduceOnly"] = "true"
	}
	if req.ClientOrderID != "" {
		params["newClientOrderId"] = req.ClientOrderID
	}

	body, err := c.do(ctx, "place", http.MethodPost, orderPath, params)
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		return trading.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return trading.Order{}, venue.Transient(Venue, "place", fmt.Errorf("unmarshal order response: %w", err))
	}
	o := resp.toOrder()
	// The place echo omits reduceOnly on some gateways.
	o.Side = req.Side
	telemetry.Infof("aster: order placed %s %s %s @ %s -> %s (%s)",
		params["symbol"], req.Side, req.Size, req.Price.Decimal, o.ID, resp.Status)
	return o, nil
}

// Cancel reports false without error when Aster no longer knows the order
// as open.
func (c *Client) Cancel(ctx context.Context, orderID, symbol string) (bool, error) {
	body, err := c.do(ctx, "cancel", http.MethodDelete, orderPath, map[string]string{
		"symbol":  Symbol(symbol),
		"orderId": orderID,
	})
	if isUnknownOrder(body, err) {
		telemetry.Warnf("aster: cancel %s: order not open", orderID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Query(ctx context.Context, orderID, symbol string) (trading.Order, error) {
	body, err := c.do(ctx, "query", http.MethodGet, orderPath, map[string]string{
		"symbol":  Symbol(symbol),
		"orderId": orderID,
	})
	if err != nil {
		return trading.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return trading.Order{}, venue.Transient(Venue, "query", fmt.Errorf("unmarshal order: %w", err))
	}
	return resp.toOrder(), nil
}
