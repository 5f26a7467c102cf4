package store

import (
	"context"

	"github.com/teslashibe/go-proctor/pkg/violation"
)

// EventSink persists flushed pipeline batches for one session
type EventSink struct {
	repo      EventRepository
	sessionID string
}

// NewEventSink returns a sink writing to repo
func NewEventSink(repo EventRepository, sessionID string) *EventSink {
	return &EventSink{repo: repo, sessionID: sessionID}
}

// Send stores the batch in one transaction
func (s *EventSink) Send(ctx context.Context, events []violation.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]EventRecord, len(events))
	for i, e := range events {
		records[i] = EventRecord{SessionID: s.sessionID, Event: e}
	}
	_, err := s.repo.InsertBatch(ctx, records)
	return err
}
