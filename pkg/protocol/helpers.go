package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewObservationMessage creates an observation message stamped with the
// observation time
func NewObservationMessage(obs detection.Observation) (*Message, error) {
	msg, err := NewMessage(TypeObservation, obs)
	if err != nil {
		return nil, err
	}
	if !obs.Timestamp.IsZero() {
		msg.Timestamp = obs.Timestamp.UnixMilli()
	}
	return msg, nil
}

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewMicMessage creates a PCM16 microphone audio message
func NewMicMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeMic, MicData{
		Format:     FormatPCM16,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewEventsMessage creates an events batch message
func NewEventsMessage(sessionID string, events []violation.Event) (*Message, error) {
	msg, err := NewMessage(TypeEvents, EventsData{SessionID: sessionID, Events: events})
	if err != nil {
		return nil, err
	}
	msg.SessionID = sessionID
	return msg, nil
}

// NewErrorMessage creates an error message
func NewErrorMessage(format string, args ...interface{}) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: fmt.Sprintf(format, args...)})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

func parse[T any](m *Message) (*T, error) {
	var data T
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetObservation extracts an observation. A missing observation timestamp
// is taken from the envelope.
func (m *Message) GetObservation() (*detection.Observation, error) {
	obs, err := parse[detection.Observation](m)
	if err != nil {
		return nil, err
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = m.Time()
	}
	return obs, nil
}

// GetEventsData extracts an events batch. The envelope session is used
// when the payload has none.
func (m *Message) GetEventsData() (*EventsData, error) {
	data, err := parse[EventsData](m)
	if err != nil {
		return nil, err
	}
	if data.SessionID == "" {
		data.SessionID = m.SessionID
	}
	return data, nil
}

func (m *Message) GetFrameData() (*FrameData, error) { return parse[FrameData](m) }
func (m *Message) GetMicData() (*MicData, error)     { return parse[MicData](m) }
func (m *Message) GetPingData() (*PingData, error)   { return parse[PingData](m) }
func (m *Message) GetPongData() (*PongData, error)   { return parse[PongData](m) }

// DecodeFrameData decodes the base64 image data.
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// DecodeMicData decodes the base64 audio data.
func (mic *MicData) DecodeMicData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(mic.Data)
}
