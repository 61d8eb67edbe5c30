// Package media provides local audio capture and remote playback for the
// avatar client.
//
// A Source stands in for the browser's getUserMedia: it captures microphone
// audio as PCM16 chunks that feed both the outbound WebRTC track and the
// level monitor. A Sink plays the remote stream. Two backends are bundled:
//
//   - cmd: spawns a capture/playback pipeline (arecord/aplay by default),
//     the production path on Linux
//   - mock: synthetic silence or sine wave, for tests and CI without hardware
package media

import (
	"context"
	"io"
)

// Chunk is a block of PCM16 audio samples.
type Chunk struct {
	// Samples contains interleaved PCM16 samples (little-endian on the wire).
	Samples []int16

	// SampleRate is the sample rate of this chunk in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Bytes returns the chunk as raw little-endian PCM16 bytes.
func (c *Chunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from raw little-endian PCM16 bytes.
func (c *Chunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Duration returns the chunk duration in seconds.
func (c *Chunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins capture. Failure here is the Go analogue of the user
	// refusing microphone access.
	Start(ctx context.Context) error

	// Stop halts capture. Safe to call multiple times.
	Stop() error

	// Stream returns the channel of captured chunks.
	// The channel is closed when the source stops.
	Stream() <-chan Chunk

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name ("cmd", "mock").
	Name() string

	// Close releases all resources. A closed source cannot be restarted.
	io.Closer
}

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start prepares the output device.
	Start(ctx context.Context) error

	// Stop halts playback. Safe to call multiple times.
	Stop() error

	// Write queues a chunk for playback.
	Write(ctx context.Context, chunk Chunk) error

	// Clear discards buffered audio immediately (barge-in).
	Clear() error

	// Config returns the playback configuration.
	Config() Config

	// Name returns the backend name ("cmd", "mock").
	Name() string

	// Close releases all resources.
	io.Closer
}
