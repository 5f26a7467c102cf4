// Package violation turns per-tick features into discrete proctoring events
// using one two-state machine per monitored condition.
package violation

import (
	"time"

	"github.com/teslashibe/go-proctor/pkg/detection"
)

// EventType identifies a violation
type EventType string

const (
	FocusLost          EventType = "focus_lost"
	NoFace             EventType = "no_face"
	MultipleFaces      EventType = "multiple_faces"
	Phone              EventType = "phone"
	Book               EventType = "book"
	Notes              EventType = "notes"
	Device             EventType = "device"
	UnauthorizedPerson EventType = "unauthorized_person"
	Drowsiness         EventType = "drowsiness"
	BackgroundVoice    EventType = "background_voice"
	SuspiciousBehavior EventType = "suspicious_behavior"
)

// EventTypes lists every known type
var EventTypes = []EventType{
	FocusLost, NoFace, MultipleFaces, Phone, Book, Notes, Device,
	UnauthorizedPerson, Drowsiness, BackgroundVoice, SuspiciousBehavior,
}

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	for _, k := range EventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Severity ranks an event
type Severity string

const (
	Low      Severity = "low"
	Medium   Severity = "medium"
	High     Severity = "high"
	Critical Severity = "critical"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case Low, Medium, High, Critical:
		return true
	}
	return false
}

// Event is one emitted violation. Treat as immutable.
type Event struct {
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	DurationMs  int64          `json:"duration,omitempty"`
	Confidence  *float64       `json:"confidence,omitempty"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Coordinates *detection.Box `json:"coordinates,omitempty"`
}

// Duration returns the event duration, zero for instantaneous events
func (e Event) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}
