package mexc_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const (
	Venue       = "mexc"
	privatePath = "/api/v1/private"
)

// Client uses the MEXC futures web endpoints, authenticated by the browser
// session cookie.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	cookie       string
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

// NewClient uses 20 reads/s and 10 writes/s when the rates are zero.
func NewClient(baseURL, sessionCookie string, readPerSec, writePerSec float64) *Client {
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
		cookie:       sessionCookie,
		readLimiter:  rate.NewLimiter(rate.Limit(readPerSec), int(readPerSec)),
		writeLimiter: rate.NewLimiter(rate.Limit(writePerSec), int(writePerSec)),
	}
}

func (c *Client) Name() string { return Venue }

// envelope wraps every MEXC response. Failures usually come back as HTTP 200
// with success=false.
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (json.RawMessage, error) {
	lim := c.readLimiter
	if method != http.MethodGet {
		lim = c.writeLimiter
	}
	waitStart := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return nil, venue.FromTransport(Venue, op, fmt.Errorf("rate limit wait: %w", err))
	}
	telemetry.Metrics.RateLimiterWait.Since(waitStart)

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, venue.Rejected(Venue, op, fmt.Errorf("marshal body: %w", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+privatePath+path, bodyReader)
	if err != nil {
		return nil, venue.Rejected(Venue, op, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", c.cookie)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, venue.FromTransport(Venue, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venue.FromTransport(Venue, op, fmt.Errorf("read response: %w", err))
	}

	telemetry.Debugf("mexc_http: %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, venue.FromHTTP(Venue, op, resp.StatusCode, raw)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, venue.Transient(Venue, op, fmt.Errorf("unmarshal envelope: %w", err))
	}
	if !env.Success {
		return nil, classify(op, env)
	}
	return env.Data, nil
}

// classify maps MEXC business error codes onto venue error kinds.
func classify(op string, env envelope) error {
	cause := fmt.Errorf("code=%d message=%s", env.Code, env.Message)
	switch env.Code {
	case 401, 402, 602:
		return venue.Authentication(Venue, op, cause)
	case 510, 9999:
		return venue.Transient(Venue, op, cause)
	default:
		return venue.Rejected(Venue, op, cause)
	}
}
