package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Writer writes each event as one JSON line tagged with the session
type Writer struct {
	mu        sync.Mutex
	enc       *json.Encoder
	sessionID string
}

// NewWriter creates a JSON-lines sink over w
func NewWriter(w io.Writer, sessionID string) *Writer {
	return &Writer{enc: json.NewEncoder(w), sessionID: sessionID}
}

// Send writes the batch
func (w *Writer) Send(_ context.Context, events []violation.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range protocol.Tag(w.sessionID, events) {
		if err := w.enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
