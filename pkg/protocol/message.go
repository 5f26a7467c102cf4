// Package protocol defines the WebSocket and HTTP payloads exchanged between
// capture clients, the proctoring server and dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeObservation MessageType = "observation" // Pre-computed inference output
	TypeFrame       MessageType = "frame"       // Camera frame for server-side inference
	TypeMic         MessageType = "mic"         // Microphone audio

	// Server → Client messages
	TypeStatus MessageType = "status" // Pipeline status snapshot
	TypeError  MessageType = "error"  // Request could not be processed

	// Bidirectional
	TypeEvents MessageType = "events" // Batch of violation events
	TypePing   MessageType = "ping"   // Health check
	TypePong   MessageType = "pong"   // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// Time returns the message timestamp, or the zero time if unset
func (m *Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Timestamp)
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// ObservationData is one tick of client-side inference output
type ObservationData = detection.Observation

// FrameData contains a camera frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// Audio formats
const (
	FormatPCM16 = "pcm16" // little-endian signed 16-bit
	FormatU8    = "u8"    // unsigned 8-bit centered on 128 (analyser time-domain data)
	FormatOpus  = "opus"  // one Opus packet
	FormatFloat = "float" // Samples already in [-1, 1]
)

// MicData contains microphone audio
type MicData struct {
	Format     string    `json:"format"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	Data       string    `json:"data,omitempty"`    // base64 encoded, binary formats
	Samples    []float64 `json:"samples,omitempty"` // FormatFloat only
}

// =============================================================================
// Event Payloads
// =============================================================================

// SessionEvent is a violation event tagged with its session, as sent to
// the events API.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
	violation.Event
}

// EventsData is a batch of events for one session
type EventsData struct {
	SessionID string            `json:"sessionId"`
	Events    []violation.Event `json:"events"`
}

// BulkRequest is the body of POST /api/events/bulk
type BulkRequest struct {
	Events []SessionEvent `json:"events"`
}

// Tag attaches sessionID to every event
func Tag(sessionID string, events []violation.Event) []SessionEvent {
	out := make([]SessionEvent, len(events))
	for i, e := range events {
		out[i] = SessionEvent{SessionID: sessionID, Event: e}
	}
	return out
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// ErrorData describes a rejected message
type ErrorData struct {
	Message string `json:"message"`
}
