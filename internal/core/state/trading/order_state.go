package trading

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// transitions lists the legal successors of each non-terminal status.
// Terminal statuses have no entry.
var transitions = map[Status][]Status{
	StatusPending: {StatusPartial, StatusFilled, StatusCancelled, StatusRejected},
	StatusPartial: {StatusPartial, StatusFilled, StatusCancelled},
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
// Staying in PENDING is allowed so repeated snapshots of a resting order
// are not treated as violations.
func CanTransition(from, to Status) bool {
	if from == to && from == StatusPending {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}
