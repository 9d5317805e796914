// Package venues builds venue adapters from configuration and exposes each
// one with exactly the capabilities it supports, so the engine's type
// assertions pick push or poll mode correctly.
package venues

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charleschow/funding-arb/internal/adapters/aster_auth"
	"github.com/charleschow/funding-arb/internal/adapters/hyperliquid_auth"
	"github.com/charleschow/funding-arb/internal/adapters/inbound/aster_ws"
	"github.com/charleschow/funding-arb/internal/adapters/inbound/hyperliquid_ws"
	"github.com/charleschow/funding-arb/internal/adapters/inbound/mexc_ws"
	"github.com/charleschow/funding-arb/internal/adapters/outbound/aster_http"
	"github.com/charleschow/funding-arb/internal/adapters/outbound/hyperliquid_http"
	"github.com/charleschow/funding-arb/internal/adapters/outbound/mexc_http"
	"github.com/charleschow/funding-arb/internal/config"
	"github.com/charleschow/funding-arb/internal/core/state/trading"
	"github.com/charleschow/funding-arb/internal/core/venue"
)

// streaming has push order updates and a book stream.
type streaming struct {
	venue.Adapter
	orders venue.OrderStreamer
	book   venue.BookStreamer
}

func (v streaming) StreamOrders(ctx context.Context, updates chan<- trading.Order, status chan<- venue.StreamStatus) error {
	return v.orders.StreamOrders(ctx, updates, status)
}

func (v streaming) StreamBook(ctx context.Context, symbol string, quotes chan<- trading.PriceQuote) error {
	return v.book.StreamBook(ctx, symbol, quotes)
}

// bookOnly is polled for order state but streams its book.
type bookOnly struct {
	venue.Adapter
	book venue.BookStreamer
}

func (v bookOnly) StreamBook(ctx context.Context, symbol string, quotes chan<- trading.PriceQuote) error {
	return v.book.StreamBook(ctx, symbol, quotes)
}

// Registry holds the adapters built for one process.
type Registry struct {
	adapters map[string]venue.Adapter
}

// New builds an adapter for every configured venue. Credentials are handed
// to each constructor and kept nowhere else.
func New(cfg config.Venues) (*Registry, error) {
	r := &Registry{adapters: make(map[string]venue.Adapter)}

	if a := cfg.Aster; a != nil {
		signer, err := aster_auth.NewSigner(a.WalletAddress, a.SignerAddress, a.PrivateKey)
		if err != nil {
			return nil, err
		}
		client := aster_http.NewClient(a.RESTURL, signer, a.Limits.ReadPerSec, a.Limits.WritePerSec)
		streams := aster_ws.NewStreams(a.WSURL, aster_http.NewListenKeys(client))
		r.adapters[aster_http.Venue] = streaming{Adapter: client, orders: streams, book: streams}
	}

	if m := cfg.MEXC; m != nil {
		client := mexc_http.NewClient(m.RESTURL, m.SessionCookie, m.Limits.ReadPerSec, m.Limits.WritePerSec)
		streams := mexc_ws.NewStreams(m.WSURL, m.APIKey, m.APISecret)
		if m.APIKey != "" && m.APISecret != "" {
			r.adapters[mexc_http.Venue] = streaming{Adapter: client, orders: streams, book: streams}
		} else {
			r.adapters[mexc_http.Venue] = bookOnly{Adapter: client, book: streams}
		}
	}

	if h := cfg.Hyperliquid; h != nil {
		signer, err := hyperliquid_auth.NewSigner(h.PrivateKey)
		if err != nil {
			return nil, err
		}
		client := hyperliquid_http.NewClient(h.RESTURL, signer, h.Limits.ReadPerSec, h.Limits.WritePerSec)
		r.adapters[hyperliquid_http.Venue] = bookOnly{Adapter: client, book: hyperliquid_ws.NewStreams(h.WSURL)}
	}
	return r, nil
}

// With builds a registry from ready-made adapters, keyed by their names.
func With(adapters ...venue.Adapter) *Registry {
	r := &Registry{adapters: make(map[string]venue.Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[strings.ToLower(a.Name())] = a
	}
	return r
}

// Get returns the adapter for a venue name, case-insensitively.
func (r *Registry) Get(name string) (venue.Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("venue %q not configured (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return a, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
