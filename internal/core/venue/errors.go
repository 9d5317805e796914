package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrTransient          = errors.New("transient venue error")
	ErrAuthentication     = errors.New("authentication failed")
	ErrRejected           = errors.New("rejected by venue")
	ErrStreamDisconnected = errors.New("stream disconnected")
)

// Error is a classified adapter failure. errors.Is matches both the kind
// sentinel and the wrapped cause.
type Error struct {
	Venue string
	Op    string
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Venue, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Venue, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Transient(venue, op string, err error) error {
	return &Error{Venue: venue, Op: op, Kind: ErrTransient, Err: err}
}

func Rejected(venue, op string, err error) error {
	return &Error{Venue: venue, Op: op, Kind: ErrRejected, Err: err}
}

func Authentication(venue, op string, err error) error {
	return &Error{Venue: venue, Op: op, Kind: ErrAuthentication, Err: err}
}

// FromHTTP classifies a non-2xx response.
func FromHTTP(venue, op string, status int, body []byte) error {
	cause := fmt.Errorf("status=%d body=%s", status, truncate(body, 256))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Authentication(venue, op, cause)
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return Transient(venue, op, cause)
	default:
		return Rejected(venue, op, cause)
	}
}

// FromTransport classifies an error returned before any HTTP status was seen.
// A cancelled caller context is passed through unchanged; network errors and
// per-call deadlines are transient.
func FromTransport(venue, op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return Transient(venue, op, err)
	}
	return &Error{Venue: venue, Op: op, Kind: ErrTransient, Err: fmt.Errorf("transport: %w", err)}
}

func IsTransient(err error) bool      { return errors.Is(err, ErrTransient) }
func IsRejected(err error) bool       { return errors.Is(err, ErrRejected) }
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
