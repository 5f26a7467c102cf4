package pipeline

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/features"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Config holds the tunable parameters of one monitoring session
type Config struct {
	// Timing
	DetectionInterval time.Duration `yaml:"detection_interval"` // Tick period (default: 300ms)
	FlushInterval     time.Duration `yaml:"flush_interval"`     // Queue flush cadence (default: 1s)
	FlushTimeout      time.Duration `yaml:"flush_timeout"`      // Per-flush sink deadline (default: 5s)
	FocusThreshold    time.Duration `yaml:"focus_threshold"`    // Minimum sustained deviation (default: 5s)
	EventCooldown     time.Duration `yaml:"event_cooldown"`     // Same-type debounce window (default: 3s)

	// Detection cutoffs
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`  // Object score cutoff (default: 0.6)
	EyeClosureThreshold float64 `yaml:"eye_closure_threshold"` // EAR cutoff (default: 0.25)
	AudioThreshold      float64 `yaml:"audio_threshold"`       // Smoothed RMS cutoff (default: 0.005)

	// Head pose
	YawThreshold   float64 `yaml:"yaw_threshold"`   // default: 0.3
	PitchThreshold float64 `yaml:"pitch_threshold"` // default: 0.2
	RollThreshold  float64 `yaml:"roll_threshold"`  // default: 0.4 rad
	PitchBaseline  float64 `yaml:"pitch_baseline"`  // Subtracted from pitch (default: 0)

	// Signal conditioning
	AudioSmoothing float64 `yaml:"audio_smoothing"` // EMA alpha (default: 0.15)
	NeutralEAR     float64 `yaml:"neutral_ear"`     // Fallback for malformed landmarks (default: 0.3)

	// Queue
	MaxQueueSize int `yaml:"max_queue_size"` // Oldest events dropped beyond this (default: 1000)

	// LabelRules overrides the object label mapping when set
	LabelRules []features.LabelRule `yaml:"label_rules,omitempty"`
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		DetectionInterval: 300 * time.Millisecond,
		FlushInterval:     1 * time.Second,
		FlushTimeout:      5 * time.Second,
		FocusThreshold:    5 * time.Second,
		EventCooldown:     3 * time.Second,

		ConfidenceThreshold: 0.6,
		EyeClosureThreshold: 0.25,
		AudioThreshold:      0.005,

		YawThreshold:   0.3,
		PitchThreshold: 0.2,
		RollThreshold:  0.4,

		AudioSmoothing: 0.15,
		NeutralEAR:     0.3,

		MaxQueueSize: 1000,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.DetectionInterval <= 0:
		return &ConfigError{Field: "DetectionInterval", Message: "pipeline: detection interval must be positive"}
	case c.FlushInterval <= 0:
		return &ConfigError{Field: "FlushInterval", Message: "pipeline: flush interval must be positive"}
	case c.FocusThreshold < 0:
		return &ConfigError{Field: "FocusThreshold", Message: "pipeline: focus threshold must be non-negative"}
	case c.EventCooldown < 0:
		return &ConfigError{Field: "EventCooldown", Message: "pipeline: event cooldown must be non-negative"}
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return &ConfigError{Field: "ConfidenceThreshold", Message: "pipeline: confidence threshold must be between 0 and 1"}
	case c.EyeClosureThreshold < 0:
		return &ConfigError{Field: "EyeClosureThreshold", Message: "pipeline: eye closure threshold must be non-negative"}
	case c.AudioThreshold < 0:
		return &ConfigError{Field: "AudioThreshold", Message: "pipeline: audio threshold must be non-negative"}
	case c.AudioSmoothing <= 0 || c.AudioSmoothing > 1:
		return &ConfigError{Field: "AudioSmoothing", Message: "pipeline: audio smoothing must be in (0, 1]"}
	case c.MaxQueueSize < 0:
		return &ConfigError{Field: "MaxQueueSize", Message: "pipeline: max queue size must be non-negative"}
	}
	return c.Features().Validate()
}

// Features returns the feature extraction settings
func (c Config) Features() features.Config {
	fc := features.Config{
		ConfidenceThreshold: c.ConfidenceThreshold,
		NeutralEAR:          c.NeutralEAR,
		Rules:               c.LabelRules,
	}
	if len(fc.Rules) == 0 {
		fc.Rules = features.DefaultRules()
	}
	return fc
}

// Thresholds returns the state machine settings
func (c Config) Thresholds() violation.Thresholds {
	return violation.Thresholds{
		FocusThreshold: c.FocusThreshold,
		EyeClosure:     c.EyeClosureThreshold,
		Audio:          c.AudioThreshold,
		Yaw:            c.YawThreshold,
		Pitch:          c.PitchThreshold,
		Roll:           c.RollThreshold,
		PitchBaseline:  c.PitchBaseline,
	}
}

// WithFocusThreshold returns a copy with the focus gate set
func (c Config) WithFocusThreshold(d time.Duration) Config {
	c.FocusThreshold = d
	return c
}

// WithDetectionInterval returns a copy with the tick period set
func (c Config) WithDetectionInterval(d time.Duration) Config {
	c.DetectionInterval = d
	return c
}

// WithEventCooldown returns a copy with the debounce window set
func (c Config) WithEventCooldown(d time.Duration) Config {
	c.EventCooldown = d
	return c
}

// WithPitchBaseline returns a copy with the pitch baseline set
func (c Config) WithPitchBaseline(b float64) Config {
	c.PitchBaseline = b
	return c
}

// Overrides carries per-session settings in client units (milliseconds).
// Nil fields keep the base value.
type Overrides struct {
	FocusThresholdMs    *int64   `json:"focusThresholdMs,omitempty"`
	DetectionIntervalMs *int64   `json:"detectionIntervalMs,omitempty"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	EyeClosureThreshold *float64 `json:"eyeClosureThreshold,omitempty"`
	AudioThreshold      *float64 `json:"audioThreshold,omitempty"`
	EventCooldownMs     *int64   `json:"eventCooldownMs,omitempty"`
	PitchBaseline       *float64 `json:"pitchBaseline,omitempty"`
}

// Apply returns base with the overrides applied
func (o Overrides) Apply(base Config) Config {
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	if o.FocusThresholdMs != nil {
		base.FocusThreshold = ms(*o.FocusThresholdMs)
	}
	if o.DetectionIntervalMs != nil {
		base.DetectionInterval = ms(*o.DetectionIntervalMs)
	}
	if o.ConfidenceThreshold != nil {
		base.ConfidenceThreshold = *o.ConfidenceThreshold
	}
	if o.EyeClosureThreshold != nil {
		base.EyeClosureThreshold = *o.EyeClosureThreshold
	}
	if o.AudioThreshold != nil {
		base.AudioThreshold = *o.AudioThreshold
	}
	if o.EventCooldownMs != nil {
		base.EventCooldown = ms(*o.EventCooldownMs)
	}
	if o.PitchBaseline != nil {
		base.PitchBaseline = *o.PitchBaseline
	}
	return base
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s (field %s)", e.Message, e.Field)
}
