package mexc_http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// submitRequest is the payload for POST /order/submit. Quantities go out as
// JSON numbers.
type submitRequest struct {
	Symbol      string      `json:"symbol"`
	Side        int         `json:"side"`
	Vol         json.Number `json:"vol"`
	Type        int         `json:"type"`
	Price       json.Number `json:"price,omitempty"`
	ExternalOid string      `json:"externalOid,omitempty"`
}

type cancelRequest struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id"`
}

func (c *Client) Place(ctx context.Context, req venue.PlaceRequest) (trading.Order, error) {
	body := submitRequest{
		Symbol:      Symbol(req.Symbol),
		Side:        SideCode(req.Side),
		Vol:         json.Number(req.Size.String()),
		Type:        typeCode(req.Type),
		ExternalOid: req.ClientOrderID,
	}
	if req.Type == trading.OrderTypeLimit {
		if !req.Price.Valid {
			return trading.Order{}, venue.Rejected(Venue, "place", fmt.Errorf("limit order without price"))
		}
		body.Price = json.Number(req.Price.Decimal.String())
	}

	data, err := c.do(ctx, "place", http.MethodPost, "/order/submit", body)
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		return trading.Order{}, err
	}
	id, err := ParseID(data)
	if err != nil {
		return trading.Order{}, venue.Transient(Venue, "place", fmt.Errorf("parse order id: %w", err))
	}

	telemetry.Infof("mexc: order placed %s %s %s @ %s -> %s",
		body.Symbol, req.Side, req.Size, req.Price.Decimal, id)

	// The submit response only carries the id.
	return trading.Order{
		ID:            id,
		ClientOrderID: req.ClientOrderID,
		Venue:         Venue,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		Status:        trading.StatusPending,
		UpdatedAt:     time.Now(),
	}, nil
}

// Cancel reports false without error when MEXC refuses the cancel, which
// happens once the order is no longer open.
func (c *Client) Cancel(ctx context.Context, orderID, symbol string) (bool, error) {
	_, err := c.do(ctx, "cancel", http.MethodPost, "/order/cancel", cancelRequest{
		Symbol:  Symbol(symbol),
		OrderID: orderID,
	})
	if err != nil {
		if venue.IsRejected(err) {
			telemetry.Warnf("mexc: cancel %s refused: %v", orderID, err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) Query(ctx context.Context, orderID, symbol string) (trading.Order, error) {
	q := url.Values{}
	q.Set("symbol", Symbol(symbol))
	q.Set("order_id", orderID)
	data, err := c.do(ctx, "query", http.MethodGet, "/order/get?"+q.Encode(), nil)
	if err != nil {
		return trading.Order{}, err
	}
	var d OrderData
	if err := json.Unmarshal(data, &d); err != nil {
		return trading.Order{}, venue.Transient(Venue, "query", fmt.Errorf("unmarshal order: %w", err))
	}
	o, err := d.ToOrder(orderID)
	if err != nil {
		return trading.Order{}, venue.Transient(Venue, "query", err)
	}
	if o.Symbol == "" {
		o.Symbol = symbol
	}
	if d.UpdateTime > 0 {
		o.UpdatedAt = time.UnixMilli(d.UpdateTime)
	} else {
		o.UpdatedAt = time.Now()
	}
	return o, nil
}
