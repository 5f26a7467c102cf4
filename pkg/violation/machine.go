package violation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/teslashibe/go-proctor/pkg/features"
)

// Thresholds configures the per-condition predicates
type Thresholds struct {
	// FocusThreshold is the minimum sustained head-pose deviation that
	// counts as focus_lost. Twice this escalates severity to high.
	FocusThreshold time.Duration

	EyeClosure float64 // EAR below this is drowsiness
	Audio      float64 // smoothed RMS above this is background_voice

	Yaw   float64
	Pitch float64
	Roll  float64

	// PitchBaseline is subtracted from pitch before comparing, since the
	// landmark geometry of a frontal face is not zero-pitch.
	PitchBaseline float64
}

// DefaultThresholds returns production defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		FocusThreshold: 5 * time.Second,
		EyeClosure:     0.25,
		Audio:          0.005,
		Yaw:            0.3,
		Pitch:          0.2,
		Roll:           0.4,
	}
}

// SignalState is the state of one monitored condition. LastEmittedAt
// only moves for events that passed the debouncer (see MarkEmitted).
type SignalState struct {
	Active        bool      `json:"active"`
	ActiveSince   time.Time `json:"active_since,omitempty"`
	LastEmittedAt time.Time `json:"last_emitted_at,omitempty"`
}

// transition applies one tick of the two-state machine. It reports whether
// the condition just became active, just became inactive, and for how long
// it had been active.
func (s *SignalState) transition(raised bool, now time.Time) (entered, exited bool, held time.Duration) {
	switch {
	case raised && !s.Active:
		s.Active = true
		s.ActiveSince = now
		return true, false, 0
	case !raised && s.Active:
		held = now.Sub(s.ActiveSince)
		s.Active = false
		s.ActiveSince = time.Time{}
		return false, true, held
	}
	return false, false, 0
}

// Condition names
const (
	CondNoFace          = "no_face"
	CondMultipleFaces   = "multiple_faces"
	CondFocus           = "focus"
	CondDrowsiness      = "drowsiness"
	CondBackgroundVoice = "background_voice"
)

// Machine holds the per-condition state for one session. Not safe for
// concurrent use.
type Machine struct {
	th Thresholds

	noFace  SignalState
	multi   SignalState
	focus   SignalState
	drowsy  SignalState
	voice   SignalState
	objects map[string]*SignalState
}

// NewMachine creates a machine with every condition inactive
func NewMachine(th Thresholds) *Machine {
	return &Machine{th: th, objects: make(map[string]*SignalState)}
}

// Reset returns every condition to inactive
func (m *Machine) Reset() {
	m.noFace = SignalState{}
	m.multi = SignalState{}
	m.focus = SignalState{}
	m.drowsy = SignalState{}
	m.voice = SignalState{}
	m.objects = make(map[string]*SignalState)
}

// LookingAway reports whether a head pose counts as a focus deviation
func (m *Machine) LookingAway(p features.HeadPose) bool {
	return math.Abs(p.Yaw) > m.th.Yaw ||
		math.Abs(p.Pitch-m.th.PitchBaseline) > m.th.Pitch ||
		math.Abs(p.Roll) > m.th.Roll
}

// Evaluate advances every condition by one tick and returns the candidate
// events, before debouncing. fs.AudioLevel must already be smoothed.
func (m *Machine) Evaluate(fs features.FeatureSet, now time.Time) []Event {
	var events []Event
	emit := func(e Event) {
		events = append(events, e)
	}

	if entered, _, _ := m.noFace.transition(fs.FaceCount == 0, now); entered {
		emit(Event{
			Type:        NoFace,
			Timestamp:   now,
			Severity:    High,
			Description: "No face detected",
		})
	}

	if entered, _, _ := m.multi.transition(fs.FaceCount > 1, now); entered {
		emit(Event{
			Type:        MultipleFaces,
			Timestamp:   now,
			Severity:    High,
			Description: fmt.Sprintf("%d faces detected", fs.FaceCount),
		})
	}

	if _, exited, held := m.focus.transition(m.LookingAway(fs.HeadPose), now); exited && held > m.th.FocusThreshold {
		sev := Medium
		if held > 2*m.th.FocusThreshold {
			sev = High
		}
		emit(Event{
			Type:        FocusLost,
			Timestamp:   now,
			DurationMs:  held.Milliseconds(),
			Severity:    sev,
			Description: fmt.Sprintf("Focus lost for %ds (head pose deviation)", int(math.Round(held.Seconds()))),
		})
	}

	if entered, _, _ := m.drowsy.transition(fs.HasEAR && fs.EyeAspectRatio < m.th.EyeClosure, now); entered {
		emit(Event{
			Type:        Drowsiness,
			Timestamp:   now,
			Severity:    High,
			Description: "Candidate appears drowsy",
		})
	}

	if entered, _, _ := m.voice.transition(fs.AudioLevel > m.th.Audio, now); entered {
		emit(Event{
			Type:        BackgroundVoice,
			Timestamp:   now,
			Severity:    Medium,
			Description: "Background voice detected",
		})
	}

	events = append(events, m.evaluateObjects(fs.Labels, now)...)
	return events
}

func (m *Machine) evaluateObjects(labels map[string]features.Label, now time.Time) []Event {
	classes := make([]string, 0, len(labels)+len(m.objects))
	seen := make(map[string]bool)
	for c := range labels {
		classes = append(classes, c)
		seen[c] = true
	}
	for c := range m.objects {
		if !seen[c] {
			classes = append(classes, c)
		}
	}
	sort.Strings(classes)

	var events []Event
	for _, class := range classes {
		s, ok := m.objects[class]
		if !ok {
			s = &SignalState{}
			m.objects[class] = s
		}
		label, present := labels[class]
		if entered, _, _ := s.transition(present, now); !entered {
			continue
		}
		conf := label.Confidence
		events = append(events, Event{
			Type:        EventType(class),
			Timestamp:   now,
			Confidence:  &conf,
			Severity:    High,
			Description: "Detected object: " + class,
			Coordinates: label.Box,
		})
	}
	return events
}

// MarkEmitted records the emission time of events that were admitted
// downstream.
func (m *Machine) MarkEmitted(events []Event) {
	for _, e := range events {
		if s := m.state(e.Type); s != nil {
			s.LastEmittedAt = e.Timestamp
		}
	}
}

func (m *Machine) state(t EventType) *SignalState {
	switch t {
	case NoFace:
		return &m.noFace
	case MultipleFaces:
		return &m.multi
	case FocusLost:
		return &m.focus
	case Drowsiness:
		return &m.drowsy
	case BackgroundVoice:
		return &m.voice
	}
	return m.objects[string(t)]
}

// States returns a snapshot of every condition keyed by name. Object
// classes are keyed "object:<class>".
func (m *Machine) States() map[string]SignalState {
	out := map[string]SignalState{
		CondNoFace:          m.noFace,
		CondMultipleFaces:   m.multi,
		CondFocus:           m.focus,
		CondDrowsiness:      m.drowsy,
		CondBackgroundVoice: m.voice,
	}
	for c, s := range m.objects {
		out["object:"+c] = *s
	}
	return out
}
