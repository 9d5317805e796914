package aster_http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/charleschow/funding-arb/internal/core/venue"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

const (
	listenKeyPath = "/fapi/v3/listenKey"
	// Aster expires a listen key 60 minutes after the last keepalive.
	ListenKeyKeepAlive = 30 * time.Minute
	listenKeyMaxAge    = 55 * time.Minute
)

// ListenKeys caches the user-stream listen key. Concurrent callers share
// one in-flight create request.
type ListenKeys struct {
	client *Client
	group  singleflight.Group

	mu        sync.Mutex
	key       string
	fetchedAt time.Time
}

func NewListenKeys(c *Client) *ListenKeys {
	return &ListenKeys{client: c}
}

// Key returns the cached key if it was refreshed recently, otherwise creates
// one.
func (lk *ListenKeys) Key(ctx context.Context) (string, error) {
	lk.mu.Lock()
	if lk.key != "" && time.Since(lk.fetchedAt) < listenKeyMaxAge {
		key := lk.key
		lk.mu.Unlock()
		return key, nil
	}
	lk.mu.Unlock()

	v, err, _ := lk.group.Do("create", func() (any, error) {
		key, err := lk.client.createListenKey(ctx)
		if err != nil {
			return "", err
		}
		lk.mu.Lock()
		lk.key = key
		lk.fetchedAt = time.Now()
		lk.mu.Unlock()
		telemetry.Infof("aster: new listen key %s…", key[:min(8, len(key))])
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached key after the stream reported it expired.
func (lk *ListenKeys) Invalidate() {
	lk.mu.Lock()
	lk.key = ""
	lk.mu.Unlock()
}

// KeepAlive extends the current key. A failure invalidates it.
func (lk *ListenKeys) KeepAlive(ctx context.Context) error {
	if _, err := lk.client.do(ctx, "listen_key", http.MethodPut, listenKeyPath, nil); err != nil {
		lk.Invalidate()
		return err
	}
	lk.mu.Lock()
	lk.fetchedAt = time.Now()
	lk.mu.Unlock()
	return nil
}

// Close deletes the key on the venue side.
func (lk *ListenKeys) Close(ctx context.Context) error {
	lk.Invalidate()
	_, err := lk.client.do(ctx, "listen_key", http.MethodDelete, listenKeyPath, nil)
	return err
}

func (c *Client) createListenKey(ctx context.Context) (string, error) {
	body, err := c.do(ctx, "listen_key", http.MethodPost, listenKeyPath, nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", venue.Transient(Venue, "listen_key", fmt.Errorf("unmarshal: %w", err))
	}
	if resp.ListenKey == "" {
		return "", venue.Transient(Venue, "listen_key", errors.New("empty listenKey in response"))
	}
	return resp.ListenKey, nil
}
