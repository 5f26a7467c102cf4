package audioio

import (
	"math"
	"testing"
)

func TestToneSilence(t *testing.T) {
	cfg := DefaultConfig()
	chunk := Silence(cfg).Chunk()
	if len(chunk.Samples) != cfg.BufferSize()*cfg.Channels {
		t.Fatalf("Expected %d samples, got %d", cfg.BufferSize()*cfg.Channels, len(chunk.Samples))
	}
	for _, s := range chunk.Samples {
		if s != 0 {
			t.Fatal("Silence should produce zero samples")
		}
	}
	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}
}

func TestToneRMS(t *testing.T) {
	tone := NewTone(DefaultConfig(), 440, 0.5)
	chunk := tone.Chunk()

	var sumSq float64
	for _, v := range chunk.Float() {
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(chunk.Samples)))
	// A sine of amplitude 0.5 has RMS 0.5/sqrt(2)
	if math.Abs(rms-0.3536) > 0.01 {
		t.Errorf("Expected RMS ~0.354, got %v", rms)
	}
}

func TestToneContinuity(t *testing.T) {
	cfg := DefaultConfig()
	tone := NewTone(cfg, 100, 1)
	a := tone.Chunk()
	b := tone.Chunk()

	// adjacent samples of a 100 Hz sine at 16 kHz differ by well under 5%
	last := float64(a.Samples[len(a.Samples)-1]) / math.MaxInt16
	first := float64(b.Samples[0]) / math.MaxInt16
	if math.Abs(first-last) > 0.05 {
		t.Errorf("Discontinuity between chunks: %v -> %v", last, first)
	}
	if tone.Chunks() != 2 {
		t.Errorf("Expected 2 chunks, got %d", tone.Chunks())
	}
}

func TestToneClampsAmplitude(t *testing.T) {
	chunk := NewTone(DefaultConfig(), 440, 3).Chunk()
	for _, s := range chunk.Samples {
		if s == math.MinInt16 {
			t.Fatal("Amplitude above 1 should be clamped")
		}
	}
}

func TestAudioChunk_Bytes(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{0x0102, -2}}
	b := chunk.Bytes()
	want := []byte{0x02, 0x01, 0xFE, 0xFF}
	if len(b) != len(want) {
		t.Fatalf("Expected %d bytes, got %d", len(want), len(b))
	}
	for i := range want {
		if b[i] != want[i] {
			t.Errorf("byte %d: got %#x, want %#x", i, b[i], want[i])
		}
	}

	var back AudioChunk
	back.FromBytes(append(b, 0x7F), 16000, 1)
	if len(back.Samples) != 2 || back.Samples[0] != 0x0102 || back.Samples[1] != -2 {
		t.Errorf("Unexpected samples %v", back.Samples)
	}
}

func TestAudioChunk_Float(t *testing.T) {
	var c AudioChunk
	c.FromFloat([]float64{0, 0.5, -1, 2}, 16000, 1)

	if c.Samples[0] != 0 || c.Samples[2] != -math.MaxInt16 || c.Samples[3] != math.MaxInt16 {
		t.Errorf("Unexpected samples %v", c.Samples)
	}
	f := c.Float()
	if math.Abs(f[1]-0.5) > 1e-3 {
		t.Errorf("Expected ~0.5, got %v", f[1])
	}
}

func TestAudioChunk_Duration(t *testing.T) {
	tests := []struct {
		chunk AudioChunk
		want  float64
	}{
		{AudioChunk{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 1}, 1},
		{AudioChunk{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 2}, 0.5},
		{AudioChunk{Samples: make([]int16, 100)}, 0},
	}
	for _, tt := range tests {
		if got := tt.chunk.Duration(); got != tt.want {
			t.Errorf("Duration() = %v, want %v", got, tt.want)
		}
	}
}

func TestUint8ToFloat(t *testing.T) {
	got := Uint8ToFloat([]byte{128, 0, 255, 192})
	want := []float64{0, -1, 127.0 / 128, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPCM16BytesToFloat(t *testing.T) {
	got := PCM16BytesToFloat([]byte{0x00, 0x40, 0x00, 0xC0})
	if len(got) != 2 || got[0] != 0.5 || got[1] != -0.5 {
		t.Errorf("Unexpected samples %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
	if cfg.BufferSize() != 1600 {
		t.Errorf("Expected 1600 samples per chunk, got %d", cfg.BufferSize())
	}
	cfg.SampleRate = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}
