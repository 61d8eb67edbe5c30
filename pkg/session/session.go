// Package session ties the signaling client, the control channel, the level
// monitors, and the visual feedback sinks into one voice session with a
// single lifecycle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/control"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/feedback"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/level"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/media"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/signal"
)

// ErrSessionActive means Connect was called while a session is live.
// Disconnect first, then retry.
var ErrSessionActive = errors.New("session: already active")

// DefaultTestPrompt is the text sent by SendTestPrompt.
const DefaultTestPrompt = "Please introduce yourself in one short sentence."

// DefaultRenderInterval paces the feedback render loop at roughly 30fps.
const DefaultRenderInterval = 33 * time.Millisecond

// Signaling is the slice of the signaling client the controller drives.
type Signaling interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() signal.State
	Channel() *control.Channel
	OnStateChange(fn func(signal.State))
	OnRemoteAudio(fn func(media.Chunk))
	OnLocalAudio(fn func(media.Chunk))
}

// Controller owns one voice session at a time.
type Controller struct {
	sig Signaling

	micMonitor    *level.Monitor
	remoteMonitor *level.Monitor

	micBar    feedback.Sink
	remoteBar feedback.Sink
	mouth     feedback.Sink

	renderEvery time.Duration

	mu         sync.Mutex
	id         string
	live       bool
	renderStop chan struct{}

	onState        func(signal.State)
	onTranscript   func(text string, final bool)
	onControlEvent func(control.Event)
}

// Option configures a Controller.
type Option func(*Controller)

// WithMicSink renders the microphone level.
func WithMicSink(s feedback.Sink) Option {
	return func(c *Controller) { c.micBar = s }
}

// WithRemoteSink renders the remote audio level.
func WithRemoteSink(s feedback.Sink) Option {
	return func(c *Controller) { c.remoteBar = s }
}

// WithMouthSink renders mouth openness from the remote level.
func WithMouthSink(s feedback.Sink) Option {
	return func(c *Controller) { c.mouth = s }
}

// WithRenderInterval overrides the feedback render pace.
func WithRenderInterval(d time.Duration) Option {
	return func(c *Controller) { c.renderEvery = d }
}

// NewController builds a Controller over a signaling client.
func NewController(sig Signaling, opts ...Option) *Controller {
	c := &Controller{
		sig:           sig,
		micMonitor:    level.New(),
		remoteMonitor: level.New(),
		renderEvery:   DefaultRenderInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Audio taps and state forwarding are wired once for the controller's
	// lifetime; each session reuses them.
	sig.OnLocalAudio(func(chunk media.Chunk) {
		c.micMonitor.Write(chunk.Samples)
	})
	sig.OnRemoteAudio(func(chunk media.Chunk) {
		c.remoteMonitor.Write(chunk.Samples)
	})
	sig.OnStateChange(c.handleSignalState)
	sig.Channel().OnEvent(c.handleControlEvent)

	return c
}

// ID returns the current session id, empty when no session is live.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Live reports whether a session is active.
func (c *Controller) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// OnStateChange registers an observer for signaling state changes.
func (c *Controller) OnStateChange(fn func(signal.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnTranscript registers an observer for transcript text. final marks a
// completed utterance, otherwise the text is an incremental delta.
func (c *Controller) OnTranscript(fn func(text string, final bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// OnControlEvent registers an observer for every classified control event.
func (c *Controller) OnControlEvent(fn func(control.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onControlEvent = fn
}

// Connect starts a new session. Only one session may be live; callers must
// Disconnect before connecting again.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.live {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.live = true
	c.id = uuid.NewString()
	id := c.id
	c.mu.Unlock()

	c.micMonitor.Reset()
	c.remoteMonitor.Reset()

	log.Info("session connecting", "session_id", id)
	if err := c.sig.Connect(ctx); err != nil {
		// The signaling client has already torn itself down; mirror that
		// here so a retry starts clean.
		c.finish()
		return err
	}

	stop := make(chan struct{})
	c.mu.Lock()
	if !c.live {
		// A transport failure raced the handshake's return and already
		// finished the session; the observer saw StateFailed.
		c.mu.Unlock()
		return nil
	}
	c.renderStop = stop
	c.mu.Unlock()
	go c.renderLoop(stop)

	return nil
}

// Disconnect ends the live session. Calling it again, or without a live
// session, is a no-op.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return nil
	}
	id := c.id
	c.mu.Unlock()

	log.Info("session disconnecting", "session_id", id)
	c.sig.Channel().Close()
	if err := c.sig.Disconnect(); err != nil {
		log.Warn("signaling disconnect", "error", err)
	}
	c.finish()
	return nil
}

// SendTestPrompt asks the remote model to speak. With no open control
// channel it does nothing and sends nothing.
func (c *Controller) SendTestPrompt() error {
	ch := c.sig.Channel()
	if ch.State() != control.StateOpen {
		return nil
	}
	if err := ch.SendConversationItem("user", DefaultTestPrompt); err != nil {
		return err
	}
	return ch.SendResponseCreate([]string{"audio", "text"}, "")
}

// finish stops rendering, zeroes the visuals, and resets the monitors.
func (c *Controller) finish() {
	c.mu.Lock()
	stop := c.renderStop
	c.renderStop = nil
	c.live = false
	c.id = ""
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.micMonitor.Reset()
	c.remoteMonitor.Reset()
	c.render(0, 0)
}

// renderLoop paints feedback from the cached monitor levels. It never reads
// audio itself; the monitors are fed by the signaling client's taps.
func (c *Controller) renderLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.renderEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.render(c.micMonitor.Level(), c.remoteMonitor.Level())
		}
	}
}

func (c *Controller) render(mic, remote float64) {
	if c.micBar != nil {
		c.micBar.Render(mic)
	}
	if c.remoteBar != nil {
		c.remoteBar.Render(remote)
	}
	if c.mouth != nil {
		c.mouth.Render(remote)
	}
}

func (c *Controller) handleSignalState(s signal.State) {
	c.mu.Lock()
	fn := c.onState
	live := c.live
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
	// A transport failure after connect ends the session without a
	// Disconnect call.
	if live && s == signal.StateFailed {
		c.finish()
	}
}

func (c *Controller) handleControlEvent(ev control.Event) {
	c.mu.Lock()
	onEvent := c.onControlEvent
	onTranscript := c.onTranscript
	c.mu.Unlock()

	if onEvent != nil {
		onEvent(ev)
	}
	if ev.Type == control.EventTranscriptDelta && onTranscript != nil {
		onTranscript(ev.Text, ev.IsFinal)
	}
}
