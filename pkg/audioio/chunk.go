package audioio

import "math"

// AudioChunk is a block of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the samples as little-endian PCM16.
func (c *AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from little-endian PCM16. A trailing odd
// byte is ignored.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Float converts the samples to [-1, 1].
func (c *AudioChunk) Float() []float64 {
	return Int16ToFloat(c.Samples)
}

// FromFloat populates the chunk from samples in [-1, 1], clipping values
// outside that range.
func (c *AudioChunk) FromFloat(samples []float64, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(samples))
	for i, v := range samples {
		v = math.Max(-1, math.Min(1, v))
		c.Samples[i] = int16(math.Round(v * math.MaxInt16))
	}
}

// Duration returns the chunk length in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Int16ToFloat scales PCM16 samples to [-1, 1).
func Int16ToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768
	}
	return out
}

// PCM16BytesToFloat decodes little-endian PCM16 into float samples.
func PCM16BytesToFloat(data []byte) []float64 {
	var c AudioChunk
	c.FromBytes(data, 0, 0)
	return c.Float()
}

// Uint8ToFloat converts unsigned byte time-domain data, centered on 128,
// into float samples. This is the layout a browser AnalyserNode returns
// from getByteTimeDomainData.
func Uint8ToFloat(data []byte) []float64 {
	out := make([]float64, len(data))
	for i, b := range data {
		out[i] = (float64(b) - 128) / 128
	}
	return out
}
