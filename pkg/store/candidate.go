package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrDuplicateEmail   = errors.New("store: candidate email already exists")
	ErrCandidateBusy    = errors.New("store: candidate has active sessions")
	ErrInvalidCandidate = errors.New("store: invalid candidate")
)

// CandidateStatus tracks a candidate through the interview schedule
type CandidateStatus string

const (
	CandidateScheduled  CandidateStatus = "scheduled"
	CandidateInProgress CandidateStatus = "in-progress"
	CandidateCompleted  CandidateStatus = "completed"
	CandidateCancelled  CandidateStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidateScheduled, CandidateInProgress, CandidateCompleted, CandidateCancelled:
		return true
	}
	return false
}

// Candidate limits
const (
	MinNameLength       = 2
	MaxNameLength       = 100
	MinInterviewMinutes = 5
	MaxInterviewMinutes = 300
	MaxCandidateNotes   = 500
)

// Candidate is a person scheduled for a proctored interview
type Candidate struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Position      string    `json:"position"`
	InterviewDate time.Time `json:"interviewDate"`

	// DurationMinutes is the planned interview length
	DurationMinutes int             `json:"duration"`
	Status          CandidateStatus `json:"status"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CandidateFilter selects candidates. Search matches name, email or
// position case-insensitively.
type CandidateFilter struct {
	Status CandidateStatus
	Search string
	Limit  int
	Offset int
}

// StatusCount is a per-status aggregate
type StatusCount struct {
	Status CandidateStatus `json:"status"`
	Count  int             `json:"count"`
}

// CandidateStats summarizes stored candidates
type CandidateStats struct {
	Total    int           `json:"total"`
	Recent   int           `json:"recent"`
	ByStatus []StatusCount `json:"byStatus"`
}

// RecentWindow is how far back CandidateStats.Recent looks
const RecentWindow = 7 * 24 * time.Hour

// CandidateRepository persists candidates. Emails are unique.
type CandidateRepository interface {
	Create(ctx context.Context, c *Candidate) error
	Get(ctx context.Context, id string) (*Candidate, error)
	List(ctx context.Context, f CandidateFilter) ([]Candidate, int, error)
	Update(ctx context.Context, c *Candidate) error
	SetStatus(ctx context.Context, id string, status CandidateStatus) error
	// Delete refuses candidates that still have an active session.
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, now time.Time) (*CandidateStats, error)
}

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// NormalizeCandidate trims text fields and lowercases the email
func NormalizeCandidate(c *Candidate) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Position = strings.TrimSpace(c.Position)
}

// ValidateCandidate checks a normalized candidate
func ValidateCandidate(c *Candidate) error {
	switch {
	case len(c.Name) < MinNameLength || len(c.Name) > MaxNameLength:
		return fmt.Errorf("%w: Name must be between 2 and 100 characters", ErrInvalidCandidate)
	case !emailPattern.MatchString(c.Email):
		return fmt.Errorf("%w: Please provide a valid email", ErrInvalidCandidate)
	case len(c.Position) < MinNameLength || len(c.Position) > MaxNameLength:
		return fmt.Errorf("%w: Position must be between 2 and 100 characters", ErrInvalidCandidate)
	case c.DurationMinutes < MinInterviewMinutes || c.DurationMinutes > MaxInterviewMinutes:
		return fmt.Errorf("%w: Duration must be between 5 and 300 minutes", ErrInvalidCandidate)
	case c.InterviewDate.IsZero():
		return fmt.Errorf("%w: Please provide a valid interview date", ErrInvalidCandidate)
	case c.Status != "" && !c.Status.Valid():
		return fmt.Errorf("%w: Status must be one of: scheduled, in-progress, completed, cancelled", ErrInvalidCandidate)
	case len(c.Notes) > MaxCandidateNotes:
		return fmt.Errorf("%w: Notes cannot exceed 500 characters", ErrInvalidCandidate)
	}
	return nil
}
