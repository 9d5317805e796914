package aster_http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/charleschow/funding-arb/internal/adapters/aster_auth"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const Venue = "aster"

// Client talks to the Aster futures REST API. Every request is signed;
// params travel in the query string for all methods.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	signer       *aster_auth.Signer
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

// NewClient uses 20 reads/s and 10 writes/s when the rates are zero.
func NewClient(baseURL string, signer *aster_auth.Signer, readPerSec, writePerSec float64) *Client {
	if readPerSec <= 0 {
		readPerSec = 20
	}
	if writePerSec <= 0 {
		writePerSec = 10
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		signer:       signer,
		readLimiter:  rate.NewLimiter(rate.Limit(readPerSec), int(readPerSec)),
		writeLimiter: rate.NewLimiter(rate.Limit(writePerSec), int(writePerSec)),
	}
}

func (c *Client) Name() string { return Venue }

// apiError is the body Aster returns with a non-2xx status.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) do(ctx context.Context, op, method, path string, params map[string]string) ([]byte, error) {
	lim := c.readLimiter
	if method != http.MethodGet {
		lim = c.writeLimiter
	}
	waitStart := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return nil, venue.FromTransport(Venue, op, fmt.Errorf("rate limit wait: %w", err))
	}
	telemetry.Metrics.RateLimiterWait.Since(waitStart)

	query, err := c.signer.Sign(params)
	if err != nil {
		return nil, venue.Authentication(Venue, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, venue.Rejected(Venue, op, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, venue.FromTransport(Venue, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venue.FromTransport(Venue, op, fmt.Errorf("read response: %w", err))
	}

	telemetry.Debugf("aster_http: %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, venue.FromHTTP(Venue, op, resp.StatusCode, body)
	}
	return body, nil
}

// errorCode extracts Aster's numeric error code from a failed call.
func errorCode(body []byte) int {
	var e apiError
	if json.Unmarshal(body, &e) != nil {
		return 0
	}
	return e.Code
}

// isUnknownOrder matches -2011 "Unknown order sent", returned when cancelling
// an order that is already closed.
func isUnknownOrder(body []byte, err error) bool {
	return err != nil && venue.IsRejected(err) && errorCode(body) == -2011
}
