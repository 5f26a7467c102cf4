package pipeline

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/violation"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DetectionInterval != 300*time.Millisecond {
		t.Errorf("Expected DetectionInterval 300ms, got %v", cfg.DetectionInterval)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("Expected FlushInterval 1s, got %v", cfg.FlushInterval)
	}
	if cfg.FocusThreshold != 5*time.Second {
		t.Errorf("Expected FocusThreshold 5s, got %v", cfg.FocusThreshold)
	}
	if cfg.EventCooldown != 3*time.Second {
		t.Errorf("Expected EventCooldown 3s, got %v", cfg.EventCooldown)
	}
	if cfg.ConfidenceThreshold != 0.6 {
		t.Errorf("Expected ConfidenceThreshold 0.6, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.MaxQueueSize != 1000 {
		t.Errorf("Expected MaxQueueSize 1000, got %d", cfg.MaxQueueSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"zero detection interval", func(c *Config) { c.DetectionInterval = 0 }, "DetectionInterval"},
		{"zero flush interval", func(c *Config) { c.FlushInterval = 0 }, "FlushInterval"},
		{"negative focus threshold", func(c *Config) { c.FocusThreshold = -time.Second }, "FocusThreshold"},
		{"negative cooldown", func(c *Config) { c.EventCooldown = -time.Second }, "EventCooldown"},
		{"confidence above 1", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "ConfidenceThreshold"},
		{"zero smoothing", func(c *Config) { c.AudioSmoothing = 0 }, "AudioSmoothing"},
		{"negative queue", func(c *Config) { c.MaxQueueSize = -1 }, "MaxQueueSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			err := cfg.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Error message should name the field: %v", err)
			}
		})
	}
}

func TestConfigThresholds(t *testing.T) {
	cfg := DefaultConfig().WithFocusThreshold(2 * time.Second).WithPitchBaseline(0.9)
	th := cfg.Thresholds()
	if th.FocusThreshold != 2*time.Second {
		t.Errorf("FocusThreshold = %v, want 2s", th.FocusThreshold)
	}
	if th.PitchBaseline != 0.9 {
		t.Errorf("PitchBaseline = %v, want 0.9", th.PitchBaseline)
	}
	if th.Audio != cfg.AudioThreshold || th.EyeClosure != cfg.EyeClosureThreshold {
		t.Errorf("Thresholds not copied: %+v", th)
	}
	if fc := cfg.Features(); fc.ConfidenceThreshold != cfg.ConfidenceThreshold {
		t.Errorf("Feature confidence = %v, want %v", fc.ConfidenceThreshold, cfg.ConfidenceThreshold)
	}
}

func TestOverridesApply(t *testing.T) {
	var o Overrides
	if err := json.Unmarshal([]byte(`{"focusThresholdMs":8000,"eventCooldownMs":1500,"audioThreshold":0.01,"pitchBaseline":0.1}`), &o); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	base := DefaultConfig()
	cfg := o.Apply(base)
	if cfg.FocusThreshold != 8*time.Second {
		t.Errorf("FocusThreshold = %v, want 8s", cfg.FocusThreshold)
	}
	if cfg.EventCooldown != 1500*time.Millisecond {
		t.Errorf("EventCooldown = %v, want 1.5s", cfg.EventCooldown)
	}
	if cfg.AudioThreshold != 0.01 {
		t.Errorf("AudioThreshold = %v, want 0.01", cfg.AudioThreshold)
	}
	if cfg.PitchBaseline != 0.1 {
		t.Errorf("PitchBaseline = %v, want 0.1", cfg.PitchBaseline)
	}
	if cfg.DetectionInterval != base.DetectionInterval || cfg.ConfidenceThreshold != base.ConfidenceThreshold {
		t.Error("Unset overrides should keep base values")
	}
	if base.FocusThreshold != 5*time.Second {
		t.Error("Apply must not modify the base config")
	}
}

func TestQueue(t *testing.T) {
	ev := func(typ violation.EventType) violation.Event { return violation.Event{Type: typ} }

	t.Run("unbounded", func(t *testing.T) {
		q := NewQueue(0)
		for i := 0; i < 50; i++ {
			if n := q.Push(ev(violation.NoFace)); n != 0 {
				t.Fatalf("Unbounded queue dropped %d", n)
			}
		}
		if q.Len() != 50 {
			t.Errorf("Len = %d, want 50", q.Len())
		}
	})

	t.Run("drop oldest", func(t *testing.T) {
		q := NewQueue(2)
		q.Push(ev(violation.NoFace), ev(violation.MultipleFaces))
		if n := q.Push(ev(violation.Phone)); n != 1 {
			t.Errorf("Expected 1 dropped, got %d", n)
		}
		items := q.Drain()
		if len(items) != 2 || items[0].Type != violation.MultipleFaces || items[1].Type != violation.Phone {
			t.Errorf("Unexpected items %+v", items)
		}
		if q.Dropped() != 1 {
			t.Errorf("Dropped = %d, want 1", q.Dropped())
		}
	})

	t.Run("drain empties", func(t *testing.T) {
		q := NewQueue(10)
		q.Push(ev(violation.NoFace))
		if len(q.Drain()) != 1 {
			t.Error("Expected one drained event")
		}
		if q.Len() != 0 || q.Drain() != nil {
			t.Error("Queue should be empty after drain")
		}
	})

	t.Run("empty push", func(t *testing.T) {
		q := NewQueue(1)
		if n := q.Push(); n != 0 || q.Len() != 0 {
			t.Error("Empty push should be a no-op")
		}
	})
}
