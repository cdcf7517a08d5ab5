// Package source provides shared plumbing for the per-registry adapters:
// an HTTP client that maps transport failures onto the pipeline error
// taxonomy, and the guard hook adapters call around every page fetch.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scoutlabs/scout/internal/discovery"
)

// DefaultUserAgent identifies the pipeline to upstream sources.
const DefaultUserAgent = "scout-discovery/1.0 (+https://github.com/scoutlabs/scout)"

// Caller is the guard surface adapters see: every page fetch runs inside Do
// so rate limiting, retries, and the circuit breaker apply uniformly.
type Caller interface {
	Do(ctx context.Context, sourceID string, fn func(context.Context) error) error
}

// maxBodyBytes caps response reads; listing pages past this size are
// malformed or hostile.
const maxBodyBytes = 8 << 20

// Client is a thin HTTP wrapper shared by the adapters.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient builds a Client with a per-request timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get fetches a URL and returns the body. Failures map onto the taxonomy:
// network errors and 5xx/429 are transient (ErrSourceUnavailable), 401/403
// is ErrAuthExpired.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req, headers)
}

func (c *Client) do(req *http.Request, headers map[string]string) ([]byte, error) {
	url := req.URL.String()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, discovery.Unavailable(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, discovery.Unavailable(fmt.Errorf("read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned %d", discovery.ErrAuthExpired, url, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, discovery.Unavailable(fmt.Errorf("%s returned %d", url, resp.StatusCode))
	default:
		return nil, discovery.Unavailable(fmt.Errorf("%s returned unexpected %d", url, resp.StatusCode))
	}
}

// GetJSON fetches a URL and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	return decodeJSON(url, body, v)
}

// PostJSON sends payload as a JSON body and decodes the JSON response into v,
// with the same status mapping as Get. GraphQL endpoints take queries this
// way.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload, v any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req, headers)
	if err != nil {
		return err
	}
	return decodeJSON(url, body, v)
}

func decodeJSON(url string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		// Sources sometimes serve an HTML error page with a 200; that is an
		// upstream hiccup, not a per-item parse failure.
		return discovery.Unavailable(fmt.Errorf("decode %s: %w", url, err))
	}
	return nil
}
