package hub

import (
	"context"

	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Sink publishes flushed batches to a session's dashboard subscribers
type Sink struct {
	hub       *Hub
	sessionID string
}

// NewSink returns a pipeline sink for one session
func NewSink(h *Hub, sessionID string) *Sink {
	return &Sink{hub: h, sessionID: sessionID}
}

// Send broadcasts the batch. Delivery to dashboards is best effort.
func (s *Sink) Send(_ context.Context, events []violation.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.hub.BroadcastEvents(s.sessionID, events)
}
