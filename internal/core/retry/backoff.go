package retry

import "time"

// Backoff is an exponential delay schedule: Base * 2^attempt, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Stream is the reconnect schedule shared by every WebSocket feed.
var Stream = Backoff{Base: time.Second, Max: 60 * time.Second}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}
	// 2^30 seconds is far beyond any cap we use.
	if attempt > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<attempt)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
