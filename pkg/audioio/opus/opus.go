// Package opus decodes Opus packets from browser microphones into float
// samples. It links libopus through cgo.
package opus

import (
	"fmt"
	"sync"

	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-proctor/pkg/audioio"
)

// maxFrameSamples is 120ms at 48kHz, the longest Opus frame
const maxFrameSamples = 5760

// Decoder decodes a single Opus stream. Safe for concurrent use.
type Decoder struct {
	sampleRate int
	channels   int

	mu  sync.Mutex
	dec *opus.Decoder
	buf []int16
}

// NewDecoder creates a decoder. Opus supports 8000, 12000, 16000, 24000 and
// 48000 Hz.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: new decoder: %w", err)
	}
	return &Decoder{
		sampleRate: sampleRate,
		channels:   channels,
		dec:        dec,
		buf:        make([]int16, maxFrameSamples*channels),
	}, nil
}

// Decode decodes one packet into a PCM16 chunk
func (d *Decoder) Decode(packet []byte) (audioio.AudioChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.dec.Decode(packet, d.buf)
	if err != nil {
		return audioio.AudioChunk{}, fmt.Errorf("opus: decode %d bytes: %w", len(packet), err)
	}
	samples := make([]int16, n*d.channels)
	copy(samples, d.buf)
	return audioio.AudioChunk{
		Samples:    samples,
		SampleRate: d.sampleRate,
		Channels:   d.channels,
	}, nil
}

// DecodeFloat decodes a sequence of packets and returns their samples in
// [-1, 1]. Packets that fail to decode are skipped; the first error is
// returned alongside whatever decoded.
func (d *Decoder) DecodeFloat(packets ...[]byte) ([]float64, error) {
	var (
		out      []float64
		firstErr error
	)
	for _, p := range packets {
		chunk, err := d.Decode(p)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, chunk.Float()...)
	}
	return out, firstErr
}

// SampleRate returns the output sample rate
func (d *Decoder) SampleRate() int {
	return d.sampleRate
}
