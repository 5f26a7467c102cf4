package report

import (
	"testing"

	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

func scored(status store.SessionStatus, score int) store.Session {
	return store.Session{Status: status, IntegrityScore: &score}
}

func TestStats(t *testing.T) {
	sessions := []store.Session{
		scored(store.StatusCompleted, 100),
		scored(store.StatusCompleted, 85),
		scored(store.StatusCompleted, 72),
		scored(store.StatusCompleted, 49),
		scored(store.StatusCompleted, 0),
		{Status: store.StatusCompleted},
		scored(store.StatusActive, 60),
		scored(store.StatusTerminated, 10),
	}
	byType := []store.TypeCount{
		{Type: violation.Book, Count: 1},
		{Type: violation.FocusLost, Count: 9},
		{Type: violation.Phone, Count: 4},
		{Type: violation.NoFace, Count: 4},
		{Type: violation.Drowsiness, Count: 2},
		{Type: violation.Device, Count: 3},
	}

	o := Stats(sessions, byType)

	if o.TotalSessions != 6 {
		t.Errorf("Expected 6 completed sessions, got %d", o.TotalSessions)
	}
	// (100 + 85 + 72 + 49 + 0) / 5
	if o.AvgIntegrityScore != 61.2 {
		t.Errorf("Expected average 61.2, got %v", o.AvgIntegrityScore)
	}

	wantBuckets := []int{2, 0, 1, 2}
	for i, b := range o.ScoreDistribution {
		if b.Count != wantBuckets[i] {
			t.Errorf("Bucket %d-%d: expected %d, got %d", b.Min, b.Max, wantBuckets[i], b.Count)
		}
	}

	if len(o.CommonViolations) != CommonViolationLimit {
		t.Fatalf("Expected %d common violations, got %d", CommonViolationLimit, len(o.CommonViolations))
	}
	wantOrder := []violation.EventType{violation.FocusLost, violation.Phone, violation.NoFace, violation.Device, violation.Drowsiness}
	for i, want := range wantOrder {
		if got := o.CommonViolations[i].Type; got != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestStatsEmpty(t *testing.T) {
	o := Stats(nil, nil)
	if o.TotalSessions != 0 || o.AvgIntegrityScore != 0 {
		t.Errorf("Expected zero overview, got %+v", o)
	}
	if o.CommonViolations == nil || len(o.ScoreDistribution) != 4 {
		t.Errorf("Expected empty list and four buckets, got %+v", o)
	}
}
