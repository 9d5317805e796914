package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong       Side = "LONG"
	SideShort      Side = "SHORT"
	SideCloseLong  Side = "CLOSE_LONG"
	SideCloseShort Side = "CLOSE_SHORT"
)

// ParseSide accepts any casing ("short", "close_long").
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	switch side {
	case SideLong, SideShort, SideCloseLong, SideCloseShort:
		return side, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// IsBuy reports whether the side adds to a long or reduces a short.
func (s Side) IsBuy() bool { return s == SideLong || s == SideCloseShort }

// ReduceOnly reports whether the side closes an existing position.
func (s Side) ReduceOnly() bool { return s == SideCloseLong || s == SideCloseShort }

// IsOpening reports whether the side opens a new position.
func (s Side) IsOpening() bool { return s == SideLong || s == SideShort }

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Order is a venue-normalized order snapshot.
type Order struct {
	ID             string
	ClientOrderID  string
	Venue          string
	Symbol         string
	Side           Side
	Type           OrderType
	Size           decimal.Decimal
	Price          decimal.NullDecimal
	Status         Status
	FilledQuantity decimal.Decimal
	AveragePrice   decimal.NullDecimal
	UpdatedAt      time.Time
}

// Remaining returns the unfilled quantity, floored at zero.
func (o Order) Remaining() decimal.Decimal {
	r := o.Size.Sub(o.FilledQuantity)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Supersedes reports whether o is a legal successor of prev for the same
// order: filled quantity never goes backwards and the status move is legal.
// An identical snapshot is accepted (it carries no new information but is
// not a violation).
func (o Order) Supersedes(prev Order) bool {
	if o.FilledQuantity.LessThan(prev.FilledQuantity) {
		return false
	}
	if o.Status == prev.Status {
		return !o.Status.IsTerminal() || o.FilledQuantity.Equal(prev.FilledQuantity)
	}
	return CanTransition(prev.Status, o.Status)
}

// Advanced reports whether o carries new fill or status information over prev.
func (o Order) Advanced(prev Order) bool {
	return o.FilledQuantity.GreaterThan(prev.FilledQuantity) || o.Status != prev.Status
}

func (o Order) String() string {
	return fmt.Sprintf("%s[%s %s %s %s/%s %s]", o.Venue, o.ID, o.Symbol, o.Side,
		o.FilledQuantity.String(), o.Size.String(), o.Status)
}
