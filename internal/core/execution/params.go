package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/retry"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
)

var (
	DefaultTolerancePct = decimal.RequireFromString("0.3")
	DefaultPollInterval = 2 * time.Second
)

// Params is one open or close request.
type Params struct {
	SessionID    string
	PrimaryVenue string
	PrimarySide  trading.Side
	HedgeVenue   string
	HedgeSide    trading.Side
	Symbol       string
	Size         decimal.Decimal
	LimitPrice   decimal.NullDecimal
	Dynamic      bool
	OffsetPct    decimal.Decimal
	TolerancePct decimal.Decimal
	PollInterval time.Duration
	// Timeout is the whole-session deadline; zero means none.
	Timeout time.Duration
}

func (p Params) Validate() error {
	var errs []error
	if p.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if !p.Size.IsPositive() {
		errs = append(errs, fmt.Errorf("size must be positive, got %s", p.Size))
	}
	if p.PrimaryVenue == "" || p.HedgeVenue == "" {
		errs = append(errs, errors.New("primary and hedge venues are required"))
	} else if p.PrimaryVenue == p.HedgeVenue {
		errs = append(errs, fmt.Errorf("primary and hedge venue are both %s", p.PrimaryVenue))
	}
	if p.PrimarySide.IsBuy() == p.HedgeSide.IsBuy() {
		errs = append(errs, fmt.Errorf("hedge side %s does not offset primary side %s", p.HedgeSide, p.PrimarySide))
	}
	if p.LimitPrice.Valid && !p.LimitPrice.Decimal.IsPositive() {
		errs = append(errs, fmt.Errorf("limit price must be positive, got %s", p.LimitPrice.Decimal))
	}
	if !p.LimitPrice.Valid && !p.Dynamic {
		errs = append(errs, errors.New("limit price is required unless dynamic mode is on"))
	}
	if p.TolerancePct.IsNegative() {
		errs = append(errs, fmt.Errorf("tolerance must not be negative, got %s", p.TolerancePct))
	}
	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", p.Timeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
	}
	return nil
}

// Options are engine-wide knobs, independent of any one session.
type Options struct {
	// CallTimeout bounds every adapter call.
	CallTimeout    time.Duration
	PlaceAttempts  int
	HedgeAttempts  int
	QueryAttempts  int
	CancelAttempts int
	Backoff        retry.Backoff
	// SettleAttempts bounds the post-cancel re-queries waiting for a
	// terminal status, CancelSettle is the pause between them.
	SettleAttempts    int
	CancelSettle      time.Duration
	ReconnectGrace    time.Duration
	FirstQuoteTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		CallTimeout:       5 * time.Second,
		PlaceAttempts:     3,
		HedgeAttempts:     5,
		QueryAttempts:     3,
		CancelAttempts:    3,
		Backoff:           retry.Backoff{Base: 200 * time.Millisecond, Max: 5 * time.Second},
		SettleAttempts:    5,
		CancelSettle:      250 * time.Millisecond,
		ReconnectGrace:    3 * time.Second,
		FirstQuoteTimeout: 15 * time.Second,
	}
}
