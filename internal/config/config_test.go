package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 5000 {
		t.Errorf("Expected port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.DetectionInterval != 300*time.Millisecond {
		t.Errorf("Expected detection interval 300ms, got %v", cfg.Pipeline.DetectionInterval)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "proctor.yaml", `
server:
  port: 8080
  db_path: /tmp/test.db
log:
  level: debug
  json: true
pipeline:
  focus_threshold: 2s
  event_cooldown: 1500ms
  confidence_threshold: 0.7
audio:
  sample_rate: 48000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.DBPath != "/tmp/test.db" {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}
	if cfg.Pipeline.FocusThreshold != 2*time.Second {
		t.Errorf("Expected focus threshold 2s, got %v", cfg.Pipeline.FocusThreshold)
	}
	if cfg.Pipeline.EventCooldown != 1500*time.Millisecond {
		t.Errorf("Expected cooldown 1.5s, got %v", cfg.Pipeline.EventCooldown)
	}
	if cfg.Pipeline.ConfidenceThreshold != 0.7 {
		t.Errorf("Expected confidence 0.7, got %v", cfg.Pipeline.ConfidenceThreshold)
	}
	// Unset fields keep defaults
	if cfg.Pipeline.DetectionInterval != 300*time.Millisecond {
		t.Errorf("Expected default detection interval, got %v", cfg.Pipeline.DetectionInterval)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 1 {
		t.Errorf("Unexpected audio config %+v", cfg.Audio)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := writeFile(t, "bad.yaml", "server: [")
	if _, err := Load(bad); err == nil {
		t.Error("Expected parse error")
	}

	invalid := writeFile(t, "invalid.yaml", "pipeline:\n  detection_interval: 0s\n")
	_, err := Load(invalid)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PROCTOR_DB", "env.db")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PROCTOR_FOCUS_THRESHOLD", "7000")
	t.Setenv("PROCTOR_DETECTION_INTERVAL", "250ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.DBPath != "env.db" {
		t.Errorf("Expected db env.db, got %s", cfg.Server.DBPath)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected level warn, got %s", cfg.Log.Level)
	}
	if cfg.Pipeline.FocusThreshold != 7*time.Second {
		t.Errorf("Expected focus threshold 7s, got %v", cfg.Pipeline.FocusThreshold)
	}
	if cfg.Pipeline.DetectionInterval != 250*time.Millisecond {
		t.Errorf("Expected detection interval 250ms, got %v", cfg.Pipeline.DetectionInterval)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "notanint")
	t.Setenv("CFG_TEST_BOOL", "true")
	t.Setenv("CFG_TEST_FLOAT", "0.25")

	if got := EnvInt("CFG_TEST_INT", 3); got != 3 {
		t.Errorf("Malformed int should fall back, got %d", got)
	}
	if !EnvBool("CFG_TEST_BOOL", false) {
		t.Error("Expected true")
	}
	if got := EnvFloat("CFG_TEST_FLOAT", 0); got != 0.25 {
		t.Errorf("Expected 0.25, got %v", got)
	}
	if got := Env("CFG_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %s", got)
	}
	if got := EnvDuration("CFG_TEST_UNSET", time.Second); got != time.Second {
		t.Errorf("Expected 1s, got %v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "CFG_DOTENV_VALUE=fromfile\n")
	os.Unsetenv("CFG_DOTENV_VALUE")
	t.Cleanup(func() { os.Unsetenv("CFG_DOTENV_VALUE") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CFG_DOTENV_VALUE"); got != "fromfile" {
		t.Errorf("Expected fromfile, got %q", got)
	}
}

func TestModelsValidate(t *testing.T) {
	m := Default().Models
	m.Enabled = true
	if err := m.Validate(); err != nil {
		t.Errorf("Defaults with models enabled should be valid: %v", err)
	}
	m.FaceModel = ""
	if err := m.Validate(); err == nil {
		t.Error("Expected error for missing face model")
	}
}

func TestServerValidate(t *testing.T) {
	s := Default().Server
	s.Port = 70000
	if err := s.Validate(); err == nil {
		t.Error("Expected error for out-of-range port")
	}
	d := Default()
	if got := d.Server.Addr(); got != ":5000" {
		t.Errorf("Expected :5000, got %s", got)
	}
}
