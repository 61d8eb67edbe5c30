package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// CmdSource captures audio by spawning an external recorder that writes raw
// PCM16 to stdout. The default pipeline is arecord; anything that emits raw
// little-endian PCM16 at the configured rate works (gst-launch, sox, ...).
type CmdSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	streamCh chan Chunk
}

// NewCmdSource creates a command-backed audio source.
func NewCmdSource(cfg Config, logger *slog.Logger) *CmdSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CmdSource{cfg: cfg, logger: logger}
}

func (s *CmdSource) captureArgs() []string {
	if s.cfg.CaptureCmd != "" {
		return strings.Fields(s.cfg.CaptureCmd)
	}
	args := []string{
		"arecord", "-q",
		"-f", "S16_LE",
		"-r", fmt.Sprint(s.cfg.SampleRate),
		"-c", fmt.Sprint(s.cfg.Channels),
		"-t", "raw",
	}
	if s.cfg.Device != "" {
		args = append(args, "-D", s.cfg.Device)
	}
	return args
}

// Start spawns the capture command and begins reading frames.
// A spawn failure is how a missing or refused microphone surfaces here.
func (s *CmdSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	args := s.captureArgs()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start capture %q: %w", args[0], err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.streamCh = make(chan Chunk, 10)
	s.running = true

	go s.readLoop(stdout)

	s.logger.Debug("capture started", "cmd", args[0], "device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate)

	return nil
}

func (s *CmdSource) readLoop(r io.Reader) {
	frame := make([]byte, s.cfg.FrameBytes())
	for {
		if _, err := io.ReadFull(r, frame); err != nil {
			s.mu.Lock()
			if s.running {
				s.running = false
				close(s.streamCh)
			}
			s.mu.Unlock()
			return
		}

		var chunk Chunk
		chunk.FromBytes(frame, s.cfg.SampleRate, s.cfg.Channels)

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		select {
		case s.streamCh <- chunk:
		default:
			// Consumer lagging; drop the frame rather than stall capture.
		}
		s.mu.Unlock()
	}
}

// Stop kills the capture command and closes the stream channel.
func (s *CmdSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	close(s.streamCh)
	return nil
}

// Stream returns the chunk channel.
func (s *CmdSource) Stream() <-chan Chunk {
	return s.streamCh
}

// Config returns the capture configuration.
func (s *CmdSource) Config() Config {
	return s.cfg
}

// Name returns "cmd".
func (s *CmdSource) Name() string {
	return "cmd"
}

// Close releases resources.
func (s *CmdSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// CmdSink plays audio by piping raw PCM16 into an external player's stdin.
// The default pipeline is aplay.
type CmdSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
}

// NewCmdSink creates a command-backed audio sink.
func NewCmdSink(cfg Config, logger *slog.Logger) *CmdSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CmdSink{cfg: cfg, logger: logger}
}

func (s *CmdSink) playbackArgs() []string {
	if s.cfg.PlaybackCmd != "" {
		return strings.Fields(s.cfg.PlaybackCmd)
	}
	args := []string{
		"aplay", "-q",
		"-f", "S16_LE",
		"-r", fmt.Sprint(s.cfg.SampleRate),
		"-c", fmt.Sprint(s.cfg.Channels),
		"-t", "raw",
	}
	if s.cfg.Device != "" {
		args = append(args, "-D", s.cfg.Device)
	}
	return args
}

// Start spawns the playback command.
func (s *CmdSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	args := s.playbackArgs()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("playback stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start playback %q: %w", args[0], err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.running = true

	s.logger.Debug("playback started", "cmd", args[0], "device", s.cfg.Device)

	return nil
}

// Write pipes the chunk to the player.
func (s *CmdSink) Write(ctx context.Context, chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.stdin == nil {
		return io.ErrClosedPipe
	}
	if _, err := s.stdin.Write(chunk.Bytes()); err != nil {
		return fmt.Errorf("write playback: %w", err)
	}
	return nil
}

// Clear is a no-op for the pipe-based sink: the player's buffer is opaque.
func (s *CmdSink) Clear() error {
	return nil
}

// Stop closes stdin and waits for the player to drain.
func (s *CmdSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil {
		_ = s.cmd.Wait()
	}
	return nil
}

// Config returns the playback configuration.
func (s *CmdSink) Config() Config {
	return s.cfg
}

// Name returns "cmd".
func (s *CmdSink) Name() string {
	return "cmd"
}

// Close releases resources.
func (s *CmdSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}
