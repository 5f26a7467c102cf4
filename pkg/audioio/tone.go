package audioio

import (
	"math"
	"sync"
)

// Tone synthesizes consecutive chunks of a sine wave, or silence when the
// frequency is zero. Replays attach its chunks to observations that carry
// no audio of their own.
type Tone struct {
	cfg Config

	mu        sync.Mutex
	phase     float64
	frequency float64 // Hz
	amplitude float64 // 0.0 to 1.0
	chunks    int64
}

// NewTone creates a generator. amplitude is clamped to [0, 1].
func NewTone(cfg Config, frequency, amplitude float64) *Tone {
	return &Tone{
		cfg:       cfg,
		frequency: math.Max(0, frequency),
		amplitude: math.Max(0, math.Min(1, amplitude)),
	}
}

// Silence creates a generator producing zero samples.
func Silence(cfg Config) *Tone {
	return NewTone(cfg, 0, 0)
}

// Chunk synthesizes the next BufferDuration of audio. Phase carries over
// between calls so consecutive chunks join without a discontinuity.
func (t *Tone) Chunk() AudioChunk {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.cfg.BufferSize()
	ch := t.cfg.Channels
	samples := make([]int16, n*ch)

	if t.frequency > 0 && t.amplitude > 0 {
		step := 2 * math.Pi * t.frequency / float64(t.cfg.SampleRate)
		for i := 0; i < n; i++ {
			s := int16(t.amplitude * math.Sin(t.phase) * math.MaxInt16)
			for c := 0; c < ch; c++ {
				samples[i*ch+c] = s
			}
			t.phase = math.Mod(t.phase+step, 2*math.Pi)
		}
	}
	t.chunks++

	return AudioChunk{
		Samples:    samples,
		SampleRate: t.cfg.SampleRate,
		Channels:   ch,
	}
}

// Chunks returns how many chunks have been generated.
func (t *Tone) Chunks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks
}

// Config returns the audio configuration.
func (t *Tone) Config() Config {
	return t.cfg
}
