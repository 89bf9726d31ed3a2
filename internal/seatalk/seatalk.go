// Package seatalk sends messages to a SeaTalk group through its
// incoming webhook.
package seatalk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spxops/zipsheet/api"
)

// Client posts messages to a single webhook.
type Client struct {
	webhook    string
	timeout    time.Duration
	httpClient *http.Client
}

var (
	DefaultTimeout = 30 * time.Second

	ErrWebhook = errors.New("invalid webhook URL")
	ErrPost    = errors.New("failed to post message")

	// Testing and debugging support.
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// New returns a new Client for the given webhook URL.  A nil httpClient
// means http.DefaultClient.
func New(webhook string, timeout time.Duration, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(webhook)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrWebhook, webhook)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{webhook: webhook, timeout: timeout, httpClient: httpClient}, nil
}

// Send posts msg and returns the HTTP status code of the response.
// Only failures to deliver the request are errors; the status code is
// not interpreted.
func (c *Client) Send(ctx context.Context, msg *api.SeaTalkMessage) (int, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPost, err)
	}
	postCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, c.webhook, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPost, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPost, err)
	}
	defer resp.Body.Close()
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	verbose("webhook responded %v: %s", resp.Status, reply)
	return resp.StatusCode, nil
}
