package sink

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

const wsWriteWait = 10 * time.Second

// WebSocket sends batches as protocol events messages over a persistent
// connection. A failed connection is dropped and redialed on the next Send.
type WebSocket struct {
	url       string
	sessionID string
	header    http.Header
	dialer    *websocket.Dialer
	logger    *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWebSocket creates a sink for the given ws:// or wss:// URL
func NewWebSocket(url, sessionID string, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{
		url:       url,
		sessionID: sessionID,
		header:    http.Header{},
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}
}

// Send writes one events message
func (w *WebSocket) Send(ctx context.Context, events []violation.Event) error {
	if len(events) == 0 {
		return nil
	}
	msg, err := protocol.NewEventsMessage(w.sessionID, events)
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.conn == nil {
		if err := w.dial(ctx); err != nil {
			return &DeliveryError{Sink: "websocket", Err: err}
		}
	}

	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.conn.Close()
		w.conn = nil
		return &DeliveryError{Sink: "websocket", Err: err}
	}
	return nil
}

func (w *WebSocket) dial(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return err
	}
	w.conn = conn
	w.logger.Info("event sink connected", "url", w.url, "session_id", w.sessionID)

	// Drain inbound frames so control messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// Close sends a close frame and releases the connection
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.conn == nil {
		return nil
	}
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}
