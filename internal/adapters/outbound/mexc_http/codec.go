package mexc_http

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

// Symbol maps a base asset to the contract: BTC -> BTC_USDT.
func Symbol(base string) string { return base + "_USDT" }

func BaseSymbol(pair string) string { return strings.TrimSuffix(pair, "_USDT") }

// Side codes: 1 open long, 2 close short, 3 open short, 4 close long.
var sideCodes = map[trading.Side]int{
	trading.SideLong:       1,
	trading.SideCloseShort: 2,
	trading.SideShort:      3,
	trading.SideCloseLong:  4,
}

func SideCode(s trading.Side) int { return sideCodes[s] }

func ParseSide(code int) (trading.Side, bool) {
	for side, c := range sideCodes {
		if c == code {
			return side, true
		}
	}
	return "", false
}

// Order type codes.
const (
	typeLimit  = 1
	typeMarket = 2
)

func typeCode(t trading.OrderType) int {
	if t == trading.OrderTypeMarket {
		return typeMarket
	}
	return typeLimit
}

// ParseState maps an order state: 3 completed, 4 cancelled, 5 invalid.
// States 1 and 2 are both live orders and are split on the dealt volume.
func ParseState(state int, dealVol decimal.Decimal) trading.Status {
	switch state {
	case 3:
		return trading.StatusFilled
	case 4:
		return trading.StatusCancelled
	case 5:
		return trading.StatusRejected
	}
	if dealVol.IsPositive() {
		return trading.StatusPartial
	}
	return trading.StatusPending
}

// OrderData is the order object shared by the REST query and the
// push.personal.order channel. Both spellings of the renamed fields are
// accepted.
type OrderData struct {
	OrderID      json.RawMessage `json:"orderId"`
	ExternalOid  string          `json:"externalOid"`
	Symbol       string          `json:"symbol"`
	Side         int             `json:"side"`
	Type         int             `json:"type"`
	OrderType    int             `json:"orderType"`
	State        int             `json:"state"`
	Status       int             `json:"status"`
	Vol          decimal.Decimal `json:"vol"`
	Price        decimal.Decimal `json:"price"`
	DealVol      decimal.Decimal `json:"dealVol"`
	DealVolSnake decimal.Decimal `json:"deal_vol"`
	DealAvgPrice decimal.Decimal `json:"dealAvgPrice"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	UpdateTime   int64           `json:"updateTime"`
}

// ToOrder normalizes d. fallbackID is used when the payload has no id.
func (d OrderData) ToOrder(fallbackID string) (trading.Order, error) {
	id := fallbackID
	if len(d.OrderID) > 0 {
		parsed, err := ParseID(d.OrderID)
		if err != nil {
			return trading.Order{}, err
		}
		id = parsed
	}
	filled := d.DealVol
	if filled.IsZero() {
		filled = d.DealVolSnake
	}
	avg := d.DealAvgPrice
	if avg.IsZero() {
		avg = d.AvgPrice
	}
	state := d.State
	if state == 0 {
		state = d.Status
	}
	typ := d.Type
	if typ == 0 {
		typ = d.OrderType
	}

	o := trading.Order{
		ID:             id,
		ClientOrderID:  d.ExternalOid,
		Venue:          Venue,
		Symbol:         BaseSymbol(d.Symbol),
		Type:           trading.OrderTypeMarket,
		Size:           d.Vol,
		Status:         ParseState(state, filled),
		FilledQuantity: filled,
	}
	if typ == typeLimit {
		o.Type = trading.OrderTypeLimit
	}
	if side, ok := ParseSide(d.Side); ok {
		o.Side = side
	}
	if d.Price.IsPositive() {
		o.Price = decimal.NewNullDecimal(d.Price)
	}
	if avg.IsPositive() {
		o.AveragePrice = decimal.NewNullDecimal(avg)
	}
	return o, nil
}

// ParseID accepts an order id sent as a JSON string, a number, or an object
// with an orderId field.
func ParseID(raw json.RawMessage) (string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing order id")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{':
		var obj struct {
			OrderID json.RawMessage `json:"orderId"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", err
		}
		return ParseID(obj.OrderID)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
