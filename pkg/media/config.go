package media

import (
	"fmt"
	"time"
)

// Backend selects the capture/playback implementation.
type Backend string

const (
	// BackendCmd pipes audio through an external capture/playback command.
	BackendCmd Backend = "cmd"
	// BackendMock generates synthetic audio for testing.
	BackendMock Backend = "mock"
)

// Config holds audio capture/playback configuration.
type Config struct {
	// Backend selects the implementation. Default: cmd.
	Backend Backend `json:"backend"`

	// SampleRate in Hz. Default: 48000, the Opus native rate used on the
	// peer connection.
	SampleRate int `json:"sample_rate"`

	// Channels is the channel count. Default: 1 (mono).
	Channels int `json:"channels"`

	// FrameDuration is the duration of one captured chunk.
	// Default: 20ms, one Opus frame.
	FrameDuration time.Duration `json:"frame_duration"`

	// Device is the capture/playback device passed to the backend,
	// e.g. an ALSA device name. Empty means the system default.
	Device string `json:"device"`

	// CaptureCmd overrides the capture command line for the cmd backend.
	CaptureCmd string `json:"capture_cmd,omitempty"`

	// PlaybackCmd overrides the playback command line for the cmd backend.
	PlaybackCmd string `json:"playback_cmd,omitempty"`
}

// DefaultConfig returns a Config suitable for the peer connection's
// Opus audio: 48kHz mono in 20ms frames.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendCmd,
		SampleRate:    48000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	return nil
}

// FrameSize returns the number of samples per frame per channel.
func (c *Config) FrameSize() int {
	return int(float64(c.SampleRate) * c.FrameDuration.Seconds())
}

// FrameBytes returns the size of one frame in bytes across all channels.
func (c *Config) FrameBytes() int {
	return c.FrameSize() * c.Channels * 2
}
