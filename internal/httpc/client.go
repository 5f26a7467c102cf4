// Package httpc holds the pooled HTTP client used to push event batches to
// a remote events API. Always set a timeout; never use http.DefaultClient.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 3 * time.Second
	DefaultKeepAlive      = 30 * time.Second
	DefaultIdleTimeout    = 90 * time.Second

	// batches go to one host; keep a few warm connections to it
	maxIdlePerHost = 4
)

// Client is shared by sinks that do not bring their own.
var Client = NewClient(DefaultTimeout)

// NewClient returns a client with bounded dial, TLS and overall timeouts.
func NewClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			MaxIdleConnsPerHost: maxIdlePerHost,
			IdleConnTimeout:     DefaultIdleTimeout,
			TLSHandshakeTimeout: DefaultConnectTimeout,
		},
	}
}

// PostJSON encodes v and posts it to url. A nil c uses Client.
// The caller closes the response body.
func PostJSON(ctx context.Context, c *http.Client, url string, v any) (*http.Response, error) {
	if c == nil {
		c = Client
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.Do(req)
}
