package hyperliquid_http

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

// Coins are traded under their base name, so symbols pass through.
func Coin(symbol string) string { return strings.ToUpper(symbol) }

// ParseSide maps the book side ("B" bid, "A" ask) plus reduce-only.
func ParseSide(side string, reduceOnly bool) trading.Side {
	buy := side == "B"
	switch {
	case buy && reduceOnly:
		return trading.SideCloseShort
	case buy:
		return trading.SideLong
	case reduceOnly:
		return trading.SideCloseLong
	default:
		return trading.SideShort
	}
}

// ParseStatus maps an orderStatus status. Every cancel reason
// ("canceled", "marginCanceled", "reduceOnlyCanceled", ...) is CANCELLED.
func ParseStatus(status string, filled decimal.Decimal) trading.Status {
	switch {
	case status == "filled":
		return trading.StatusFilled
	case status == "rejected" || strings.HasSuffix(status, "Rejected"):
		return trading.StatusRejected
	case strings.HasSuffix(strings.ToLower(status), "canceled"):
		return trading.StatusCancelled
	case filled.IsPositive():
		return trading.StatusPartial
	default:
		return trading.StatusPending
	}
}

// Cloid renders a uuid client order id as the 16-byte hex cloid the
// exchange accepts. Other ids are not sent.
func Cloid(clientOrderID string) string {
	id, err := uuid.Parse(clientOrderID)
	if err != nil {
		return ""
	}
	return "0x" + hex.EncodeToString(id[:])
}
