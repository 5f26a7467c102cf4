package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teslashibe/go-proctor/internal/httpc"
	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// BulkPath is the events API endpoint for batch inserts
const BulkPath = "/api/events/bulk"

// HTTP posts batches to the events API
type HTTP struct {
	url       string
	sessionID string
	client    *http.Client
}

// HTTPOption configures an HTTP sink
type HTTPOption func(*HTTP)

// WithHTTPClient sets the client used for requests
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// NewHTTP creates a sink posting to baseURL + BulkPath
func NewHTTP(baseURL, sessionID string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:       strings.TrimSuffix(baseURL, "/") + BulkPath,
		sessionID: sessionID,
		client:    httpc.Client,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send posts the batch. Non-2xx responses are returned as DeliveryError.
func (h *HTTP) Send(ctx context.Context, events []violation.Event) error {
	if len(events) == 0 {
		return nil
	}
	resp, err := httpc.PostJSON(ctx, h.client, h.url, protocol.BulkRequest{
		Events: protocol.Tag(h.sessionID, events),
	})
	if err != nil {
		return &DeliveryError{Sink: "http", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{
			Sink:       "http",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(string(body))),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
