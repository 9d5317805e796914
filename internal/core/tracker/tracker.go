// Package tracker decides when a resting limit order should follow the
// hedge venue's book. Everything here is pure; the engine owns state.
package tracker

import (
	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

var hundred = decimal.NewFromInt(100)

// Decision is the outcome of comparing the resting price with a new target.
type Decision struct {
	Renew    bool
	NewPrice decimal.Decimal
}

// ReferencePrice picks the hedge-venue price the primary order follows.
// A primary SHORT (or CLOSE_SHORT) tracks the hedge bid, a primary LONG
// (or CLOSE_LONG) tracks the hedge ask.
func ReferencePrice(primary trading.Side, q trading.PriceQuote) decimal.Decimal {
	switch primary {
	case trading.SideShort, trading.SideCloseShort:
		return q.BestBid
	default:
		return q.BestAsk
	}
}

// TargetPrice applies a percentage offset: ref * (1 + offsetPct/100).
func TargetPrice(ref, offsetPct decimal.Decimal) decimal.Decimal {
	return ref.Mul(decimal.NewFromInt(1).Add(offsetPct.Div(hundred)))
}

// Decide fires when |target-current|/current >= tolerancePct/100.
// The comparison is cross-multiplied so no rounding is involved.
func Decide(current, target, tolerancePct decimal.Decimal) Decision {
	if !current.IsPositive() || !target.IsPositive() {
		return Decision{NewPrice: target}
	}
	move := target.Sub(current).Abs().Mul(hundred)
	threshold := current.Mul(tolerancePct)
	return Decision{
		Renew:    move.GreaterThanOrEqual(threshold),
		NewPrice: target,
	}
}

// State is the derived view of what the resting order is pegged to.
type State struct {
	Reference decimal.Decimal
	Target    decimal.Decimal
}

// Evaluate runs the full rule for one quote: reference selection, target,
// renewal decision. ok is false when the quote has no usable side.
func Evaluate(primary trading.Side, q trading.PriceQuote, current, offsetPct, tolerancePct decimal.Decimal) (d Decision, s State, ok bool) {
	ref := ReferencePrice(primary, q)
	if !ref.IsPositive() {
		return Decision{}, State{}, false
	}
	target := TargetPrice(ref, offsetPct)
	return Decide(current, target, tolerancePct), State{Reference: ref, Target: target}, true
}
