package aster_http

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

// Symbol maps a base asset to the Aster contract: BTC -> BTCUSDT.
func Symbol(base string) string { return base + "USDT" }

// BaseSymbol is the inverse of Symbol.
func BaseSymbol(pair string) string { return strings.TrimSuffix(pair, "USDT") }

// ParseStatus maps Aster order statuses. Insurance-fund and ADL executions
// close the order completely, so they count as FILLED.
func ParseStatus(s string) trading.Status {
	switch s {
	case "PARTIALLY_FILLED":
		return trading.StatusPartial
	case "FILLED", "NEW_INSURANCE", "NEW_ADL":
		return trading.StatusFilled
	case "CANCELED", "EXPIRED":
		return trading.StatusCancelled
	case "REJECTED":
		return trading.StatusRejected
	default:
		return trading.StatusPending
	}
}

// ParseSide recovers the position side from the order side and reduceOnly.
func ParseSide(side string, reduceOnly bool) trading.Side {
	switch {
	case side == "BUY" && !reduceOnly:
		return trading.SideLong
	case side == "SELL" && !reduceOnly:
		return trading.SideShort
	case side == "SELL":
		return trading.SideCloseLong
	default:
		return trading.SideCloseShort
	}
}

func orderSide(s trading.Side) string {
	if s.IsBuy() {
		return "BUY"
	}
	return "SELL"
}

// ParseType treats stop and take-profit orders as resting limits.
func ParseType(t string) trading.OrderType {
	switch t {
	case "LIMIT", "STOP", "TAKE_PROFIT":
		return trading.OrderTypeLimit
	default:
		return trading.OrderTypeMarket
	}
}

// Positive turns Aster's "0" placeholders into an absent value.
func Positive(d decimal.Decimal) decimal.NullDecimal {
	if d.IsPositive() {
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}
