// Package config loads proctor-server configuration from a YAML file,
// the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-proctor/pkg/audioio"
	"github.com/teslashibe/go-proctor/pkg/pipeline"
)

// Config is the complete server configuration
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	Pipeline pipeline.Config `yaml:"pipeline"`
	Models   ModelsConfig    `yaml:"models"`
	Audio    audioio.Config  `yaml:"audio"`
}

// ServerConfig contains HTTP and storage settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	DBPath          string        `yaml:"db_path"`
	Debug           bool          `yaml:"debug"` // request logging
	CORSOrigins     string        `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ModelsConfig points at the ONNX models for server-side detection.
// Detection from frames is off when Enabled is false.
type ModelsConfig struct {
	Enabled          bool    `yaml:"enabled"`
	FaceModel        string  `yaml:"face_model"`
	FaceConfidence   float64 `yaml:"face_confidence"`
	ObjectModel      string  `yaml:"object_model"`
	ObjectConfidence float64 `yaml:"object_confidence"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            5000,
			DBPath:          "proctor.db",
			CORSOrigins:     "*",
			ShutdownTimeout: 10 * time.Second,
		},
		Log:      LogConfig{Level: "info"},
		Pipeline: pipeline.DefaultConfig(),
		Models: ModelsConfig{
			FaceModel:        "models/face_detection_yunet.onnx",
			FaceConfidence:   0.5,
			ObjectModel:      "models/yolov8n.onnx",
			ObjectConfidence: 0.4,
		},
		Audio: audioio.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() {
	c.Server.Port = EnvInt("PORT", c.Server.Port)
	c.Server.DBPath = Env("PROCTOR_DB", c.Server.DBPath)
	c.Server.Debug = EnvBool("PROCTOR_DEBUG", c.Server.Debug)
	c.Server.CORSOrigins = Env("CORS_ORIGINS", c.Server.CORSOrigins)
	c.Log.Level = Env("LOG_LEVEL", c.Log.Level)
	c.Log.JSON = EnvBool("LOG_JSON", c.Log.JSON)

	c.Pipeline.DetectionInterval = EnvDuration("PROCTOR_DETECTION_INTERVAL", c.Pipeline.DetectionInterval)
	c.Pipeline.FocusThreshold = EnvDuration("PROCTOR_FOCUS_THRESHOLD", c.Pipeline.FocusThreshold)
	c.Pipeline.EventCooldown = EnvDuration("PROCTOR_EVENT_COOLDOWN", c.Pipeline.EventCooldown)
	c.Pipeline.ConfidenceThreshold = EnvFloat("PROCTOR_CONFIDENCE_THRESHOLD", c.Pipeline.ConfidenceThreshold)
	c.Pipeline.PitchBaseline = EnvFloat("PROCTOR_PITCH_BASELINE", c.Pipeline.PitchBaseline)

	c.Models.Enabled = EnvBool("PROCTOR_MODELS_ENABLED", c.Models.Enabled)
	c.Models.FaceModel = Env("PROCTOR_FACE_MODEL", c.Models.FaceModel)
	c.Models.ObjectModel = Env("PROCTOR_OBJECT_MODEL", c.Models.ObjectModel)
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Models.Validate(); err != nil {
		return err
	}
	return c.Audio.Validate()
}

// Validate checks server settings
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}
	if s.DBPath == "" {
		return errors.New("server.db_path is required")
	}
	if s.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must be non-negative")
	}
	return nil
}

// Validate checks model settings when detection is enabled
func (m *ModelsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.FaceModel == "" || m.ObjectModel == "" {
		return errors.New("models.face_model and models.object_model are required when models are enabled")
	}
	if m.FaceConfidence <= 0 || m.FaceConfidence > 1 || m.ObjectConfidence <= 0 || m.ObjectConfidence > 1 {
		return errors.New("model confidences must be in (0, 1]")
	}
	return nil
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
