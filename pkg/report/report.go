// Package report summarizes a finished session into an integrity report.
package report

import (
	"math"
	"time"

	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Deductions per violation from a perfect score of 100
const (
	FocusPenalty    = 5
	ObjectPenalty   = 10
	MultiplePenalty = 15
	BehaviorPenalty = 8
)

// Category groups event types for scoring
type Category string

const (
	CategoryFocus    Category = "focus"
	CategoryObject   Category = "object"
	CategoryMultiple Category = "multiple_person"
	CategoryBehavior Category = "behavior"
)

var reportCategories = map[violation.EventType]Category{
	violation.FocusLost:          CategoryFocus,
	violation.NoFace:             CategoryFocus,
	violation.Drowsiness:         CategoryFocus,
	violation.Phone:              CategoryObject,
	violation.Book:               CategoryObject,
	violation.Notes:              CategoryObject,
	violation.Device:             CategoryObject,
	violation.MultipleFaces:      CategoryMultiple,
	violation.SuspiciousBehavior: CategoryBehavior,
	violation.BackgroundVoice:    CategoryBehavior,
}

// Candidate identifies who was interviewed
type Candidate struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Position        string    `json:"position,omitempty"`
	InterviewDate   time.Time `json:"interviewDate"`
	DurationMinutes int       `json:"duration"`

	// Schedule from the candidate record, when there is one
	ScheduledDate   *time.Time `json:"scheduledDate,omitempty"`
	PlannedDuration int        `json:"plannedDuration,omitempty"`
}

// SessionInfo describes the session itself
type SessionInfo struct {
	ID              string              `json:"id"`
	StartTime       time.Time           `json:"startTime"`
	EndTime         *time.Time          `json:"endTime,omitempty"`
	Status          store.SessionStatus `json:"status"`
	DurationMinutes int                 `json:"actualDuration"`
}

// Summary holds the counts behind the score
type Summary struct {
	TotalEvents              int `json:"totalEvents"`
	FocusViolations          int `json:"focusViolations"`
	ObjectViolations         int `json:"objectViolations"`
	MultiplePersonViolations int `json:"multiplePersonViolations"`
	BehaviorViolations       int `json:"behaviorViolations"`
	IntegrityScore           int `json:"integrityScore"`
	DurationMinutes          int `json:"duration"`
}

// Analytics are event distributions
type Analytics struct {
	EventDistribution    map[violation.EventType]int `json:"eventDistribution"`
	SeverityDistribution map[violation.Severity]int  `json:"severityDistribution"`
	AverageConfidence    float64                     `json:"averageConfidence"`
}

// TimelineEntry is one event in chronological order
type TimelineEntry struct {
	Timestamp   time.Time           `json:"timestamp"`
	Type        violation.EventType `json:"type"`
	Severity    violation.Severity  `json:"severity"`
	Description string              `json:"description"`
	DurationMs  int64               `json:"duration,omitempty"`
	Confidence  *float64            `json:"confidence,omitempty"`
}

// Recommendation is a reviewer hint
type Recommendation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Report is the full proctoring report for a session
type Report struct {
	Candidate       Candidate        `json:"candidate"`
	Session         SessionInfo      `json:"session"`
	Summary         Summary          `json:"summary"`
	Analytics       Analytics        `json:"analytics"`
	Timeline        []TimelineEntry  `json:"timeline"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Build assembles the report. events must be in timestamp order. The
// session's stored score is used when it has one. cand may be nil, in which
// case the candidate details copied onto the session are reported.
func Build(s *store.Session, cand *store.Candidate, events []violation.Event) Report {
	counts := countCategories(events)

	score := 0
	if s.IntegrityScore != nil {
		score = *s.IntegrityScore
	} else {
		score = Score(counts[CategoryFocus], counts[CategoryObject], counts[CategoryMultiple], counts[CategoryBehavior])
	}

	minutes := int(math.Round(s.Duration().Minutes()))

	r := Report{
		Candidate: Candidate{
			ID:              s.CandidateID,
			Name:            s.CandidateName,
			Email:           s.CandidateEmail,
			Position:        s.Position,
			InterviewDate:   s.StartTime,
			DurationMinutes: minutes,
		},
		Session: SessionInfo{
			ID:              s.ID,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			Status:          s.Status,
			DurationMinutes: minutes,
		},
		Summary: Summary{
			TotalEvents:              len(events),
			FocusViolations:          counts[CategoryFocus],
			ObjectViolations:         counts[CategoryObject],
			MultiplePersonViolations: counts[CategoryMultiple],
			BehaviorViolations:       counts[CategoryBehavior],
			IntegrityScore:           score,
			DurationMinutes:          minutes,
		},
		Analytics: Analytics{
			EventDistribution:    make(map[violation.EventType]int),
			SeverityDistribution: make(map[violation.Severity]int),
		},
		Timeline:        make([]TimelineEntry, 0, len(events)),
		Recommendations: Recommendations(score, events),
	}
	if cand != nil {
		r.Candidate.ID = cand.ID
		r.Candidate.Name = cand.Name
		r.Candidate.Email = cand.Email
		r.Candidate.Position = cand.Position
		scheduled := cand.InterviewDate
		r.Candidate.ScheduledDate = &scheduled
		r.Candidate.PlannedDuration = cand.DurationMinutes
	}

	var confSum float64
	for _, e := range events {
		r.Analytics.EventDistribution[e.Type]++
		r.Analytics.SeverityDistribution[e.Severity]++
		if e.Confidence != nil {
			confSum += *e.Confidence
		}
		r.Timeline = append(r.Timeline, TimelineEntry{
			Timestamp:   e.Timestamp,
			Type:        e.Type,
			Severity:    e.Severity,
			Description: e.Description,
			DurationMs:  e.DurationMs,
			Confidence:  e.Confidence,
		})
	}
	// Events without a confidence count as 0
	if len(events) > 0 {
		r.Analytics.AverageConfidence = confSum / float64(len(events))
	}
	return r
}

// Score is 100 minus the per-category deductions, floored at 0
func Score(focus, object, multiple, behavior int) int {
	score := 100 - focus*FocusPenalty - object*ObjectPenalty - multiple*MultiplePenalty - behavior*BehaviorPenalty
	return max(score, 0)
}

// SessionScore computes the outcome recorded when a session ends. Only
// focus_lost and no_face count as focus violations here, and behavior
// events carry no deduction.
func SessionScore(events []violation.Event) store.Outcome {
	var out store.Outcome
	out.TotalEvents = len(events)
	for _, e := range events {
		switch e.Type {
		case violation.FocusLost, violation.NoFace:
			out.FocusViolations++
		case violation.Phone, violation.Book, violation.Notes, violation.Device:
			out.ObjectViolations++
		case violation.MultipleFaces:
			out.MultiplePersonViolations++
		}
	}
	out.IntegrityScore = Score(out.FocusViolations, out.ObjectViolations, out.MultiplePersonViolations, 0)
	return out
}

// Recommendations derives reviewer hints from the score and events
func Recommendations(score int, events []violation.Event) []Recommendation {
	var recs []Recommendation
	switch {
	case score < 50:
		recs = append(recs, Recommendation{"critical", "Multiple serious violations detected. Consider additional verification measures."})
	case score < 70:
		recs = append(recs, Recommendation{"warning", "Several violations detected. Review individual events for context."})
	case score < 85:
		recs = append(recs, Recommendation{"caution", "Minor violations detected. Generally acceptable performance."})
	default:
		recs = append(recs, Recommendation{"success", "Excellent integrity score. No significant violations detected."})
	}

	outcome := SessionScore(events)
	if outcome.FocusViolations > 5 {
		recs = append(recs, Recommendation{"attention", "Frequent attention lapses detected. Consider environment setup guidance."})
	}
	if outcome.ObjectViolations > 0 {
		recs = append(recs, Recommendation{"security", "Unauthorized objects detected. Verify candidate workspace setup."})
	}
	if outcome.MultiplePersonViolations > 0 {
		recs = append(recs, Recommendation{"identity", "Multiple persons detected. Verify candidate identity and privacy."})
	}
	return recs
}

func countCategories(events []violation.Event) map[Category]int {
	counts := make(map[Category]int)
	for _, e := range events {
		if c, ok := reportCategories[e.Type]; ok {
			counts[c]++
		}
	}
	return counts
}
