// Package sink delivers flushed violation batches to their destination:
// storage, the events API, a WebSocket peer, or a log stream.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Sink receives batches of events. Implementations must not retain or
// modify the slice after Send returns.
type Sink interface {
	Send(ctx context.Context, events []violation.Event) error
}

// Func adapts a function to Sink
type Func func(ctx context.Context, events []violation.Event) error

// Send calls f
func (f Func) Send(ctx context.Context, events []violation.Event) error {
	return f(ctx, events)
}

// Discard drops every batch
var Discard Sink = Func(func(context.Context, []violation.Event) error { return nil })

// Multi fans a batch out to every sink. All sinks are attempted; the
// errors are joined.
type Multi []Sink

// Send delivers to each sink in order
func (m Multi) Send(ctx context.Context, events []violation.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collector keeps every batch in memory. Used by tests and dry runs.
type Collector struct {
	mu      sync.Mutex
	batches [][]violation.Event
	err     error
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Send records the batch, or returns the configured failure
func (c *Collector) Send(_ context.Context, events []violation.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, append([]violation.Event(nil), events...))
	return nil
}

// FailWith makes subsequent sends fail with err (nil restores success)
func (c *Collector) FailWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Batches returns a copy of the received batches
func (c *Collector) Batches() [][]violation.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]violation.Event(nil), c.batches...)
}

// Events returns every received event in order
func (c *Collector) Events() []violation.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []violation.Event
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

// DeliveryError reports a failed delivery to a remote sink
type DeliveryError struct {
	Sink       string // "http", "websocket"
	StatusCode int    // HTTP status, 0 if not applicable
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sink %s: status %d: %v", e.Sink, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

var (
	ErrClosed   = errors.New("sink: closed")
	ErrRejected = errors.New("sink: batch rejected")
)
