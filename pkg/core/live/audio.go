package live

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: 16 for PCM16.
	BitsPerSample int `json:"bits_per_sample"`
}

// OutputAudioConfig is the format of model speech: 24 kHz mono PCM16.
func OutputAudioConfig() AudioConfig {
	return AudioConfig{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
}

// InputAudioConfig is the format of captured microphone audio: 16 kHz mono PCM16.
func InputAudioConfig() AudioConfig {
	return AudioConfig{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// BytesPerSample returns the size of one frame across all channels.
func (c AudioConfig) BytesPerSample() int {
	return c.Channels * (c.BitsPerSample / 8)
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.BytesPerSample()
}

// MIMEType is the content type the vendor expects for raw PCM in this format.
func (c AudioConfig) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.SampleRate)
}

// Seconds returns the playback length of n bytes.
func (c AudioConfig) Seconds(n int) float64 {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(n) / float64(bps)
}

// Duration is Seconds as a time.Duration.
func (c AudioConfig) Duration(n int) time.Duration {
	return time.Duration(c.Seconds(n) * float64(time.Second))
}

func (c AudioConfig) validate() error {
	if c.SampleRate <= 0 || c.Channels <= 0 || c.BitsPerSample != 16 {
		return fmt.Errorf("unsupported audio format %d Hz/%d ch/%d bit", c.SampleRate, c.Channels, c.BitsPerSample)
	}
	return nil
}

// Buffer is one decoded chunk ready for playback.
type Buffer struct {
	PCM      []byte
	Format   AudioConfig
	Duration float64 // seconds
}

// Samples returns the number of sample frames in the buffer.
func (b Buffer) Samples() int {
	if n := b.Format.BytesPerSample(); n > 0 {
		return len(b.PCM) / n
	}
	return 0
}

// DecodePCM wraps little-endian PCM16 bytes as a Buffer.
func DecodePCM(pcm []byte, format AudioConfig) (Buffer, error) {
	if err := format.validate(); err != nil {
		return Buffer{}, err
	}
	if len(pcm) == 0 {
		return Buffer{}, fmt.Errorf("empty audio chunk")
	}
	if len(pcm)%format.BytesPerSample() != 0 {
		return Buffer{}, fmt.Errorf("audio chunk of %d bytes is not sample aligned", len(pcm))
	}
	return Buffer{PCM: pcm, Format: format, Duration: format.Seconds(len(pcm))}, nil
}

// DecodeBase64 decodes a base64 PCM16 payload.
func DecodeBase64(payload string, format AudioConfig) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Buffer{}, fmt.Errorf("decode audio chunk: %w", err)
	}
	return DecodePCM(raw, format)
}

// Float32ToPCM16 converts normalized samples in [-1, 1] to little-endian PCM16.
// Out of range samples are clipped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

// DecodeFloat32LE reads little-endian IEEE-754 float32 samples.
func DecodeFloat32LE(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("float32 payload of %d bytes is not sample aligned", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}
