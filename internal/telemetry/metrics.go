package telemetry

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Counter struct {
	val atomic.Int64
}

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

type Gauge struct {
	val atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.val.Store(v) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	maxKeep int
}

func NewLatencyTracker(maxKeep int) *LatencyTracker {
	return &LatencyTracker{maxKeep: maxKeep}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.samples = append(lt.samples, d)
	if len(lt.samples) > lt.maxKeep {
		lt.samples = lt.samples[len(lt.samples)-lt.maxKeep:]
	}
}

// Since records the time elapsed from start.
func (lt *LatencyTracker) Since(start time.Time) { lt.Record(time.Since(start)) }

func (lt *LatencyTracker) P50() time.Duration { return lt.percentile(0.50) }
func (lt *LatencyTracker) P99() time.Duration { return lt.percentile(0.99) }

func (lt *LatencyTracker) percentile(p float64) time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if len(lt.samples) == 0 {
		return 0
	}
	sorted := slices.Clone(lt.samples)
	slices.Sort(sorted)
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Metrics is the global metrics registry.
var Metrics = struct {
	OrdersPlaced     Counter
	OrderErrors      Counter
	OrderUpdates     Counter
	HedgesPlaced     Counter
	HedgeRetries     Counter
	HedgeFailures    Counter
	Renewals         Counter
	RenewalRaces     Counter
	PriceUpdates     Counter
	StreamReconnects Counter
	StreamMessages   Counter
	ParseErrors      Counter
	ActiveSessions   Gauge
	AdapterLatency   *LatencyTracker
	HedgeLatency     *LatencyTracker
	RateLimiterWait  *LatencyTracker
}{
	AdapterLatency:  NewLatencyTracker(1000),
	HedgeLatency:    NewLatencyTracker(1000),
	RateLimiterWait: NewLatencyTracker(1000),
}

// Snapshot renders the registry as plain values for the status API.
func Snapshot() map[string]any {
	m := &Metrics
	return map[string]any{
		"orders_placed":       m.OrdersPlaced.Value(),
		"order_errors":        m.OrderErrors.Value(),
		"order_updates":       m.OrderUpdates.Value(),
		"hedges_placed":       m.HedgesPlaced.Value(),
		"hedge_retries":       m.HedgeRetries.Value(),
		"hedge_failures":      m.HedgeFailures.Value(),
		"renewals":            m.Renewals.Value(),
		"renewal_races":       m.RenewalRaces.Value(),
		"price_updates":       m.PriceUpdates.Value(),
		"stream_reconnects":   m.StreamReconnects.Value(),
		"stream_messages":     m.StreamMessages.Value(),
		"parse_errors":        m.ParseErrors.Value(),
		"active_sessions":     m.ActiveSessions.Value(),
		"adapter_latency_p50": m.AdapterLatency.P50().String(),
		"adapter_latency_p99": m.AdapterLatency.P99().String(),
		"hedge_latency_p50":   m.HedgeLatency.P50().String(),
		"hedge_latency_p99":   m.HedgeLatency.P99().String(),
		"rate_limit_wait_p99": m.RateLimiterWait.P99().String(),
	}
}
