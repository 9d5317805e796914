package trading

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a top-of-book observation from a venue's order book.
// Consumers must assume a newer quote may already be in flight.
type PriceQuote struct {
	Venue      string
	Symbol     string
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	ObservedAt time.Time
}

// SameTop reports whether both quotes carry the same best bid and ask.
func (q PriceQuote) SameTop(other PriceQuote) bool {
	return q.BestBid.Equal(other.BestBid) && q.BestAsk.Equal(other.BestAsk)
}

// Valid reports whether both sides of the book are positive.
func (q PriceQuote) Valid() bool {
	return q.BestBid.IsPositive() && q.BestAsk.IsPositive()
}
