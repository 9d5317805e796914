package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

// PlaceRequest describes one order submission. Price is required for LIMIT.
// ClientOrderID is reused across retries of the same logical order so venues
// that deduplicate on it never open a second position.
type PlaceRequest struct {
	Symbol        string
	Side          trading.Side
	Type          trading.OrderType
	Size          decimal.Decimal
	Price         decimal.NullDecimal
	ClientOrderID string
}

// Adapter is the minimum capability every venue provides.
// Symbols are normalized base assets ("BTC"); adapters map them.
type Adapter interface {
	Name() string
	Place(ctx context.Context, req PlaceRequest) (trading.Order, error)
	Cancel(ctx context.Context, orderID, symbol string) (bool, error)
	Query(ctx context.Context, orderID, symbol string) (trading.Order, error)
}

// StreamStatus reports a connect or disconnect of a streaming session.
type StreamStatus struct {
	Venue     string
	Stream    string
	Connected bool
	At        time.Time
	Err       error
}

// OrderStreamer pushes order updates for the authenticated account.
// StreamOrders blocks, reconnecting internally, until ctx is done or a
// non-recoverable error (authentication) occurs.
type OrderStreamer interface {
	StreamOrders(ctx context.Context, updates chan<- trading.Order, status chan<- StreamStatus) error
}

// BookStreamer pushes top-of-book quotes for one symbol. Same blocking
// contract as OrderStreamer.
type BookStreamer interface {
	StreamBook(ctx context.Context, symbol string, quotes chan<- trading.PriceQuote) error
}
