package features

import (
	"errors"
	"strings"
)

// Object classes produced by label mapping.
const (
	ClassPhone              = "phone"
	ClassBook               = "book"
	ClassDevice             = "device"
	ClassNotes              = "notes"
	ClassUnauthorizedPerson = "unauthorized_person"
)

// LabelRule maps raw detector labels containing any keyword to Class.
type LabelRule struct {
	Class    string   `yaml:"class" json:"class"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Config controls feature extraction
type Config struct {
	// ConfidenceThreshold drops objects at or below this score
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// NeutralEAR replaces the eye aspect ratio when landmarks are malformed
	NeutralEAR float64 `yaml:"neutral_ear"`

	// Rules are checked in order; the first match wins
	Rules []LabelRule `yaml:"rules"`
}

// DefaultRules returns the stock COCO label mapping
func DefaultRules() []LabelRule {
	return []LabelRule{
		{Class: ClassPhone, Keywords: []string{"phone", "cell phone", "mobile"}},
		{Class: ClassBook, Keywords: []string{"book"}},
		{Class: ClassDevice, Keywords: []string{"laptop", "keyboard", "mouse"}},
		{Class: ClassNotes, Keywords: []string{"paper", "notebook", "note"}},
		{Class: ClassUnauthorizedPerson, Keywords: []string{"person"}},
	}
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		NeutralEAR:          0.3,
		Rules:               DefaultRules(),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.New("features: confidence threshold must be within [0, 1]")
	}
	if c.NeutralEAR < 0 {
		return errors.New("features: neutral EAR must be non-negative")
	}
	for _, r := range c.Rules {
		if r.Class == "" || len(r.Keywords) == 0 {
			return errors.New("features: label rule needs a class and keywords")
		}
	}
	return nil
}

// MapLabel returns the class for a raw label, or "" if no rule matches.
// The match is a case-insensitive substring test.
func (c Config) MapLabel(label string) string {
	l := strings.ToLower(label)
	for _, r := range c.Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(l, strings.ToLower(kw)) {
				return r.Class
			}
		}
	}
	return ""
}
