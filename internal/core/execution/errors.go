package execution

import "errors"

var (
	ErrInvalidParams = errors.New("invalid session parameters")
	ErrNoQuote       = errors.New("no reference quote from hedge venue")
	ErrNoBookStream  = errors.New("hedge venue cannot stream its book")

	// ErrUnhedgedFill means a primary fill could not be hedged after all
	// retries. Bookkeeping is kept and the primary order is left alone.
	ErrUnhedgedFill = errors.New("fill left unhedged")

	// ErrUnhedgedFillOnAbort means the session stopped while a partially
	// filled primary order was still resting; it was not cancelled.
	ErrUnhedgedFillOnAbort = errors.New("partially filled order left resting")

	// ErrRenewalRace tags a fill discovered between a renewal decision and
	// the cancel taking effect. It is logged, never returned.
	ErrRenewalRace = errors.New("fill raced with renewal")
)
