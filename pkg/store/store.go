// Package store defines the persisted session and event records and the
// repositories that hold them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/violation"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrSessionInactive = errors.New("store: session is not active")
	ErrInvalidEvent    = errors.New("store: invalid event")
)

// SessionStatus is the lifecycle state of an interview session
type SessionStatus string

const (
	StatusActive     SessionStatus = "active"
	StatusCompleted  SessionStatus = "completed"
	StatusTerminated SessionStatus = "terminated"
	StatusPaused     SessionStatus = "paused"
)

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusTerminated, StatusPaused:
		return true
	}
	return false
}

// Session is one proctored interview
type Session struct {
	ID             string        `json:"id"`
	CandidateID    string        `json:"candidateId"`
	CandidateName  string        `json:"candidateName"`
	CandidateEmail string        `json:"candidateEmail,omitempty"`
	Position       string        `json:"position,omitempty"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        *time.Time    `json:"endTime,omitempty"`
	Status         SessionStatus `json:"status"`

	// IntegrityScore is set when the session ends
	IntegrityScore           *int `json:"integrityScore,omitempty"`
	TotalEvents              int  `json:"totalEvents"`
	FocusViolations          int  `json:"focusViolations"`
	ObjectViolations         int  `json:"objectViolations"`
	MultiplePersonViolations int  `json:"multiplePersonViolations"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Duration returns the session length, zero while it has no end time
func (s *Session) Duration() time.Duration {
	if s.EndTime == nil || s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Outcome is the tally recorded when a session ends
type Outcome struct {
	IntegrityScore           int `json:"integrityScore"`
	TotalEvents              int `json:"totalEvents"`
	FocusViolations          int `json:"focusViolations"`
	ObjectViolations         int `json:"objectViolations"`
	MultiplePersonViolations int `json:"multiplePersonViolations"`
}

// EventRecord is a stored violation event
type EventRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	violation.Event
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// SessionFilter selects sessions. Zero fields match everything.
type SessionFilter struct {
	Status      SessionStatus
	CandidateID string
	Limit       int
	Offset      int
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	SessionID string
	Type      violation.EventType
	Severity  violation.Severity
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

// TypeCount is a per-type aggregate
type TypeCount struct {
	Type          violation.EventType `json:"type"`
	Count         int                 `json:"count"`
	AvgConfidence *float64            `json:"avgConfidence,omitempty"`
}

// EventUpdate edits a stored event. Nil fields are left unchanged.
type EventUpdate struct {
	Severity    *violation.Severity `json:"severity"`
	Description *string             `json:"description"`
	Confidence  *float64            `json:"confidence"`
	DurationMs  *int64              `json:"duration"`
	Resolved    *bool               `json:"resolved"`
}

// SeverityCount is a per-severity aggregate
type SeverityCount struct {
	Severity violation.Severity `json:"severity"`
	Count    int                `json:"count"`
}

// HourCount is the number of events that fell in one clock hour
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// EventStats summarizes stored events
type EventStats struct {
	Total      int             `json:"total"`
	Recent     int             `json:"recent"`
	ByType     []TypeCount     `json:"byType"`
	BySeverity []SeverityCount `json:"bySeverity"`
	OverTime   []HourCount     `json:"overTime"`
}

// SessionRepository persists sessions
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, f SessionFilter) ([]Session, int, error)
	Update(ctx context.Context, s *Session) error
	End(ctx context.Context, id string, out Outcome, at time.Time) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// EventRepository persists violation events
type EventRepository interface {
	Insert(ctx context.Context, sessionID string, e violation.Event) (*EventRecord, error)
	// InsertBatch stores every record or none. Each referenced session must
	// exist and be active.
	InsertBatch(ctx context.Context, records []EventRecord) ([]EventRecord, error)
	Get(ctx context.Context, id string) (*EventRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]EventRecord, error)
	List(ctx context.Context, f EventFilter) ([]EventRecord, int, error)
	Resolve(ctx context.Context, id string, at time.Time) (*EventRecord, error)
	// Update applies u. Resolving stamps at unless the event was already
	// resolved; unresolving clears the stamp.
	Update(ctx context.Context, id string, u EventUpdate, at time.Time) (*EventRecord, error)
	Delete(ctx context.Context, id string) error
	// Stats aggregates events for one session, or all when sessionID is
	// empty. Recent and OverTime are relative to now.
	Stats(ctx context.Context, sessionID string, now time.Time) (*EventStats, error)
}

// ValidateEvent checks the fields every stored event needs
func ValidateEvent(e violation.Event) error {
	switch {
	case !e.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	case !e.Severity.Valid():
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, e.Severity)
	case e.Description == "":
		return fmt.Errorf("%w: description is required", ErrInvalidEvent)
	case e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1):
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidEvent)
	}
	return nil
}

// Events returns the violation events of records
func Events(records []EventRecord) []violation.Event {
	out := make([]violation.Event, len(records))
	for i, r := range records {
		out[i] = r.Event
	}
	return out
}
