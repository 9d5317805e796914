package process

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/charleschow/funding-arb/internal/core/execution"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/symbols"
)

var (
	validate     *validator.Validate
	onceValidate sync.Once
)

// Validator returns the shared validator with the decimal and symbol tags
// registered.
func Validator() *validator.Validate {
	onceValidate.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("dec", func(fl validator.FieldLevel) bool {
			_, err := decimal.NewFromString(fl.Field().String())
			return err == nil
		})
		validate.RegisterValidation("posdec", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && d.IsPositive()
		})
		validate.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
			return symbols.Valid(symbols.Normalize(fl.Field().String()))
		})
	})
	return validate
}

// SessionRequest holds the fields shared by open and close.
type SessionRequest struct {
	PrimaryVenue        string `validate:"required,nefield=HedgeVenue"`
	HedgeVenue          string `validate:"required"`
	Symbol              string `validate:"required,symbol"`
	Size                string `validate:"required,posdec"`
	LimitPrice          string `validate:"omitempty,posdec"`
	Dynamic             bool
	OffsetPct           string  `validate:"omitempty,dec"`
	TolerancePct        string  `validate:"omitempty,dec"`
	PollIntervalSeconds float64 `validate:"gt=0"`
	TimeoutSeconds      float64 `validate:"gte=0"`
}

// OpenCommand opens a hedged position. Both sides must be opening sides.
type OpenCommand struct {
	PrimarySide string `validate:"required,oneof=LONG SHORT"`
	HedgeSide   string `validate:"required,oneof=LONG SHORT,nefield=PrimarySide"`
	SessionRequest
}

// CloseCommand unwinds a hedged position. Both sides must be closing sides.
type CloseCommand struct {
	PrimarySide string `validate:"required,oneof=CLOSE_LONG CLOSE_SHORT"`
	HedgeSide   string `validate:"required,oneof=CLOSE_LONG CLOSE_SHORT,nefield=PrimarySide"`
	SessionRequest
}

// CancelCommand cancels one order directly, the manual action printed when
// a session leaves an order resting.
type CancelCommand struct {
	Venue   string `validate:"required"`
	OrderID string `validate:"required"`
	Symbol  string `validate:"required,symbol"`
}

func (c OpenCommand) Params() (execution.Params, error) {
	if err := Validator().Struct(c); err != nil {
		return execution.Params{}, fmt.Errorf("open: %w", err)
	}
	return c.SessionRequest.params(trading.Side(c.PrimarySide), trading.Side(c.HedgeSide))
}

func (c CloseCommand) Params() (execution.Params, error) {
	if err := Validator().Struct(c); err != nil {
		return execution.Params{}, fmt.Errorf("close: %w", err)
	}
	return c.SessionRequest.params(trading.Side(c.PrimarySide), trading.Side(c.HedgeSide))
}

func (c CancelCommand) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

func (r SessionRequest) params(primary, hedge trading.Side) (execution.Params, error) {
	p := execution.Params{
		PrimaryVenue: r.PrimaryVenue,
		PrimarySide:  primary,
		HedgeVenue:   r.HedgeVenue,
		HedgeSide:    hedge,
		Symbol:       symbols.Normalize(r.Symbol),
		Size:         decimal.RequireFromString(r.Size),
		Dynamic:      r.Dynamic,
		TolerancePct: execution.DefaultTolerancePct,
		PollInterval: time.Duration(r.PollIntervalSeconds * float64(time.Second)),
		Timeout:      time.Duration(r.TimeoutSeconds * float64(time.Second)),
	}
	if r.LimitPrice != "" {
		p.LimitPrice = decimal.NewNullDecimal(decimal.RequireFromString(r.LimitPrice))
	}
	if r.OffsetPct != "" {
		p.OffsetPct = decimal.RequireFromString(r.OffsetPct)
	}
	if r.TolerancePct != "" {
		p.TolerancePct = decimal.RequireFromString(r.TolerancePct)
	}
	if err := p.Validate(); err != nil {
		return execution.Params{}, err
	}
	return p, nil
}
