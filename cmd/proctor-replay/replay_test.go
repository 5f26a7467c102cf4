package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/audioio"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/pipeline"
	"github.com/teslashibe/go-proctor/pkg/sink"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func faces(n int) []detection.Face {
	out := make([]detection.Face, n)
	for i := range out {
		out[i] = detection.Face{Box: detection.Box{X: float64(10 + 200*i), Y: 10, Width: 100, Height: 100}}
	}
	return out
}

func obsAt(d time.Duration, n int) detection.Observation {
	return detection.Observation{Timestamp: t0.Add(d), Faces: faces(n)}
}

func TestReplayerSimulatedClock(t *testing.T) {
	c := sink.NewCollector()
	r, err := NewReplayer(pipeline.DefaultConfig(), c, nil)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	ctx := context.Background()

	step := 300 * time.Millisecond
	r.Observe(ctx, obsAt(0, 2))
	for i := 1; i < 10; i++ {
		r.Observe(ctx, obsAt(time.Duration(i)*step, 1))
	}
	r.Observe(ctx, obsAt(10*step, 0))
	// 3s gap: the ticks in between find no observation
	r.Observe(ctx, obsAt(20*step, 1))
	if err := r.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != violation.MultipleFaces || !events[0].Timestamp.Equal(t0) {
		t.Errorf("Unexpected first event %+v", events[0])
	}
	if events[1].Type != violation.NoFace || !events[1].Timestamp.Equal(t0.Add(10*step)) {
		t.Errorf("Unexpected second event %+v", events[1])
	}

	s := r.Summary()
	if s.Stats.Ticks != 12 {
		t.Errorf("Expected 12 evaluated ticks, got %d", s.Stats.Ticks)
	}
	if s.Stats.Skipped != 9 {
		t.Errorf("Expected 9 skipped ticks, got %d", s.Stats.Skipped)
	}
	if s.Span != 20*step {
		t.Errorf("Expected span %v, got %v", 20*step, s.Span)
	}
	if s.ByType[violation.MultipleFaces] != 1 || s.ByType[violation.NoFace] != 1 {
		t.Errorf("Unexpected per-type counts %v", s.ByType)
	}
	if len(c.Batches()) < 2 {
		t.Errorf("Expected flushes on the simulated cadence, got %d batches", len(c.Batches()))
	}
}

func TestReplayerRunJSONLines(t *testing.T) {
	var lines bytes.Buffer
	enc := json.NewEncoder(&lines)
	enc.Encode(obsAt(0, 1))
	lines.WriteString("\n")
	enc.Encode(detection.Observation{Faces: faces(2)}) // no timestamp
	enc.Encode(obsAt(time.Second, 2))

	var out bytes.Buffer
	r, err := NewReplayer(pipeline.DefaultConfig(), sink.NewWriter(&out, "s1"), nil)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	if err := r.Run(context.Background(), &lines); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got struct {
		SessionID string              `json:"sessionId"`
		Type      violation.EventType `json:"type"`
		Timestamp time.Time           `json:"timestamp"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &got); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", out.String(), err)
	}
	if got.SessionID != "s1" || got.Type != violation.MultipleFaces {
		t.Errorf("Unexpected event %+v", got)
	}
	// The untimed observation lands one tick after the first
	if !got.Timestamp.Equal(t0.Add(300 * time.Millisecond)) {
		t.Errorf("Expected timestamp %v, got %v", t0.Add(300*time.Millisecond), got.Timestamp)
	}

	s := r.Summary()
	if s.Lines != 4 {
		t.Errorf("Expected 4 lines read, got %d", s.Lines)
	}
}

func TestReplayerMalformedLine(t *testing.T) {
	r, err := NewReplayer(pipeline.DefaultConfig(), sink.Discard, nil)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	err = r.Run(context.Background(), strings.NewReader("{\"faces\":[]}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected error naming line 2, got %v", err)
	}
}

func TestReplayerTone(t *testing.T) {
	c := sink.NewCollector()
	tone := audioio.NewTone(audioio.DefaultConfig(), 440, 0.1)
	r, err := NewReplayer(pipeline.DefaultConfig(), c, tone)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r.Observe(ctx, obsAt(time.Duration(i)*300*time.Millisecond, 1))
	}
	r.Finish(ctx)

	if n := r.Summary().ByType[violation.BackgroundVoice]; n != 1 {
		t.Errorf("Expected 1 background_voice event, got %d", n)
	}
}

func TestSummaryPrint(t *testing.T) {
	var buf bytes.Buffer
	Summary{
		Lines:  3,
		Stats:  pipeline.Stats{Ticks: 3, Skipped: 1, Emitted: 2, Flushed: 2},
		ByType: map[violation.EventType]int{violation.Phone: 2},
	}.Print(&buf)

	out := buf.String()
	for _, want := range []string{"lines:      3", "ticks:      4 (1 skipped)", "phone"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q:\n%s", want, out)
		}
	}
}
