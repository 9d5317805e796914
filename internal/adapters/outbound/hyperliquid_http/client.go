package hyperliquid_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/charleschow/funding-arb/internal/adapters/hyperliquid_auth"
	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const Venue = "hyperliquid"

// Client talks to the /exchange (signed actions) and /info (queries)
// endpoints.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	signer       *hyperliquid_auth.Signer
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
	now          func() time.Time
}

// NewClient uses 20 reads/s and 10 writes/s when the rates are zero.
func NewClient(baseURL string, signer *hyperliquid_auth.Signer, readPerSec, writePerSec float64) *Client {
	if readPerSec <= 0 {
		readPerSec = 20
	}
	if writePerSec <= 0 {
		writePerSec = 10
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		signer:       signer,
		readLimiter:  rate.NewLimiter(rate.Limit(readPerSec), int(readPerSec)),
		writeLimiter: rate.NewLimiter(rate.Limit(writePerSec), int(writePerSec)),
		now:          time.Now,
	}
}

func (c *Client) Name() string { return Venue }

// unsignedRequest is exactly what gets signed.
type unsignedRequest struct {
	Action       json.RawMessage `json:"action"`
	Nonce        int64           `json:"nonce"`
	VaultAddress *string         `json:"vaultAddress"`
}

type signedRequest struct {
	Action       json.RawMessage            `json:"action"`
	Nonce        int64                      `json:"nonce"`
	VaultAddress *string                    `json:"vaultAddress"`
	Signature    hyperliquid_auth.Signature `json:"signature"`
}

// exchangeResponse: response is an object on success and an error string
// when status is "err".
type exchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type exchangeData struct {
	Type string `json:"type"`
	Data struct {
		Statuses []json.RawMessage `json:"statuses"`
	} `json:"data"`
}

// exchange signs and posts one action, returning the per-item statuses.
func (c *Client) exchange(ctx context.Context, op string, action any) ([]json.RawMessage, error) {
	actionJSON, err := json.Marshal(action)
	if err != nil {
		return nil, venue.Rejected(Venue, op, fmt.Errorf("marshal action: %w", err))
	}
	nonce := c.now().UnixMilli()
	_, sig, err := c.signer.Sign(unsignedRequest{Action: json.RawMessage(actionJSON), Nonce: nonce})
	if err != nil {
		return nil, venue.Rejected(Venue, op, err)
	}
	body, err := json.Marshal(signedRequest{Action: actionJSON, Nonce: nonce, Signature: sig})
	if err != nil {
		return nil, venue.Rejected(Venue, op, err)
	}

	raw, err := c.post(ctx, op, "/exchange", body, c.writeLimiter)
	if err != nil {
		return nil, err
	}
	var resp exchangeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, venue.Transient(Venue, op, fmt.Errorf("unmarshal response: %w", err))
	}
	if resp.Status != "ok" {
		var reason string
		if json.Unmarshal(resp.Response, &reason) != nil {
			reason = string(resp.Response)
		}
		return nil, classify(op, reason)
	}
	var data exchangeData
	if err := json.Unmarshal(resp.Response, &data); err != nil {
		return nil, venue.Transient(Venue, op, fmt.Errorf("unmarshal statuses: %w", err))
	}
	if len(data.Data.Statuses) == 0 {
		return nil, venue.Transient(Venue, op, fmt.Errorf("empty statuses"))
	}
	return data.Data.Statuses, nil
}

// info posts an unsigned query to /info.
func (c *Client) info(ctx context.Context, op string, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return venue.Rejected(Venue, op, err)
	}
	raw, err := c.post(ctx, op, "/info", body, c.readLimiter)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return venue.Transient(Venue, op, fmt.Errorf("unmarshal info: %w", err))
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, body []byte, lim *rate.Limiter) ([]byte, error) {
	waitStart := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return nil, venue.FromTransport(Venue, op, fmt.Errorf("rate limit wait: %w", err))
	}
	telemetry.Metrics.RateLimiterWait.Since(waitStart)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, venue.Rejected(Venue, op, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

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
	telemetry.Debugf("hyperliquid_http: POST %s (%s) -> %d (%s)", path, op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, venue.FromHTTP(Venue, op, resp.StatusCode, raw)
	}
	return raw, nil
}

// classify maps an exchange error string onto a venue error kind.
func classify(op, reason string) error {
	cause := fmt.Errorf("%s", reason)
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "does not exist"), strings.Contains(lower, "signature"):
		return venue.Authentication(Venue, op, cause)
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many"):
		return venue.Transient(Venue, op, cause)
	default:
		return venue.Rejected(Venue, op, cause)
	}
}
