package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

var start = time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC)

func ev(typ violation.EventType, sev violation.Severity) violation.Event {
	return violation.Event{Type: typ, Severity: sev, Timestamp: start, Description: string(typ)}
}

func repeat(e violation.Event, n int) []violation.Event {
	out := make([]violation.Event, n)
	for i := range out {
		out[i] = e
		out[i].Timestamp = start.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func session() *store.Session {
	end := start.Add(42*time.Minute + 40*time.Second)
	return &store.Session{
		ID:            "s-1",
		CandidateID:   "c-1",
		CandidateName: "Ada  Lovelace",
		StartTime:     start,
		EndTime:       &end,
		Status:        store.StatusCompleted,
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name                              string
		focus, object, multiple, behavior int
		want                              int
	}{
		{"clean", 0, 0, 0, 0, 100},
		{"one of each", 1, 1, 1, 1, 62},
		{"floored", 10, 10, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.focus, tt.object, tt.multiple, tt.behavior); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	conf := 0.9
	phone := ev(violation.Phone, violation.High)
	phone.Confidence = &conf

	events := []violation.Event{
		ev(violation.FocusLost, violation.Medium),
		ev(violation.Drowsiness, violation.Medium),
		phone,
		ev(violation.MultipleFaces, violation.High),
		ev(violation.BackgroundVoice, violation.Medium),
		ev(violation.UnauthorizedPerson, violation.High),
	}
	r := Build(session(), nil, events)

	s := r.Summary
	if s.TotalEvents != 6 || s.FocusViolations != 2 || s.ObjectViolations != 1 ||
		s.MultiplePersonViolations != 1 || s.BehaviorViolations != 1 {
		t.Errorf("Unexpected summary %+v", s)
	}
	// 100 - 2*5 - 10 - 15 - 8
	if s.IntegrityScore != 57 {
		t.Errorf("IntegrityScore = %d, want 57", s.IntegrityScore)
	}
	if s.DurationMinutes != 43 {
		t.Errorf("Duration = %d, want 43", s.DurationMinutes)
	}
	if r.Analytics.EventDistribution[violation.Phone] != 1 || r.Analytics.SeverityDistribution[violation.High] != 3 {
		t.Errorf("Unexpected distributions %+v", r.Analytics)
	}
	if got := r.Analytics.AverageConfidence; math.Abs(got-0.15) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want 0.15", got)
	}
	if len(r.Timeline) != 6 || r.Timeline[2].Confidence == nil {
		t.Errorf("Unexpected timeline %+v", r.Timeline)
	}
	if r.Recommendations[0].Type != "warning" {
		t.Errorf("Expected warning for score 57, got %s", r.Recommendations[0].Type)
	}
}

func TestBuildUsesStoredScore(t *testing.T) {
	s := session()
	score := 91
	s.IntegrityScore = &score

	r := Build(s, nil, repeat(ev(violation.Phone, violation.High), 3))
	if r.Summary.IntegrityScore != 91 {
		t.Errorf("Expected stored score 91, got %d", r.Summary.IntegrityScore)
	}
}

func TestBuildWithCandidate(t *testing.T) {
	cand := &store.Candidate{
		ID:              "c-1",
		Name:            "Ada Lovelace",
		Email:           "ada@example.com",
		Position:        "Analyst",
		InterviewDate:   start.Add(-time.Hour),
		DurationMinutes: 60,
	}
	r := Build(session(), cand, nil)

	c := r.Candidate
	if c.Name != "Ada Lovelace" || c.Email != "ada@example.com" || c.Position != "Analyst" {
		t.Errorf("Expected stored candidate details, got %+v", c)
	}
	if c.ScheduledDate == nil || !c.ScheduledDate.Equal(start.Add(-time.Hour)) || c.PlannedDuration != 60 {
		t.Errorf("Expected schedule from candidate, got %v and %d", c.ScheduledDate, c.PlannedDuration)
	}
	if !c.InterviewDate.Equal(start) || c.DurationMinutes != 43 {
		t.Errorf("Expected actual start and duration, got %v and %d", c.InterviewDate, c.DurationMinutes)
	}

	bare := Build(session(), nil, nil).Candidate
	if bare.Name != "Ada  Lovelace" || bare.ScheduledDate != nil {
		t.Errorf("Expected session copy without schedule, got %+v", bare)
	}
}

func TestSessionScore(t *testing.T) {
	events := append(repeat(ev(violation.NoFace, violation.High), 2),
		ev(violation.Drowsiness, violation.Medium),
		ev(violation.BackgroundVoice, violation.Medium),
		ev(violation.Book, violation.High),
	)
	out := SessionScore(events)
	if out.TotalEvents != 5 || out.FocusViolations != 2 || out.ObjectViolations != 1 {
		t.Errorf("Unexpected outcome %+v", out)
	}
	// Drowsiness and voice are not deducted at session end
	if out.IntegrityScore != 80 {
		t.Errorf("IntegrityScore = %d, want 80", out.IntegrityScore)
	}
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name   string
		score  int
		events []violation.Event
		want   []string
	}{
		{"excellent", 100, nil, []string{"success"}},
		{"caution", 84, nil, []string{"caution"}},
		{"critical", 49, nil, []string{"critical"}},
		{"frequent focus", 70, repeat(ev(violation.FocusLost, violation.Medium), 6), []string{"caution", "attention"}},
		{"objects and people", 85, []violation.Event{ev(violation.Notes, violation.High), ev(violation.MultipleFaces, violation.High)},
			[]string{"success", "security", "identity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := Recommendations(tt.score, tt.events)
			if len(recs) != len(tt.want) {
				t.Fatalf("got %d recommendations %+v, want %v", len(recs), recs, tt.want)
			}
			for i, w := range tt.want {
				if recs[i].Type != w {
					t.Errorf("recommendation %d = %s, want %s", i, recs[i].Type, w)
				}
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	conf := 0.876
	phone := ev(violation.Phone, violation.High)
	phone.Confidence = &conf
	focus := ev(violation.FocusLost, violation.Medium)
	focus.DurationMs = 6200
	focus.Description = "Focus lost for 6s, head turned"

	s := session()
	s.CandidateEmail = "ada@example.com"
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Build(s, nil, []violation.Event{phone, focus})); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Timestamp" || rows[0][5] != "Confidence (%)" {
		t.Errorf("Unexpected header %v", rows[0])
	}
	if rows[1][1] != "phone" || rows[1][5] != "88" || rows[1][4] != "" {
		t.Errorf("Unexpected phone row %v", rows[1])
	}
	if rows[2][4] != "6200" || rows[2][5] != "" || rows[2][3] != focus.Description {
		t.Errorf("Unexpected focus row %v", rows[2])
	}
	if rows[2][7] != "ada@example.com" {
		t.Errorf("Expected candidate email, got %q", rows[2][7])
	}
}

func TestCSVFilename(t *testing.T) {
	name := CSVFilename(Build(session(), nil, nil), time.UnixMilli(1700000000000))
	if name != "proctoring-report-Ada-Lovelace-1700000000000.csv" {
		t.Errorf("Unexpected filename %q", name)
	}
	if !strings.HasSuffix(CSVFilename(Report{Session: SessionInfo{ID: "s-9"}}, time.UnixMilli(1)), "s-9-1.csv") {
		t.Error("Expected session id fallback")
	}
}
