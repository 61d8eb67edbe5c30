package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// State is the control channel lifecycle state.
type State int

const (
	// StateClosed is the initial and terminal state.
	StateClosed State = iota
	// StateOpening means a transport is bound but not yet open.
	StateOpening
	// StateOpen means the session.update has been sent and traffic flows.
	StateOpen
	// StateClosing means an orderly shutdown is in progress.
	StateClosing
	// StateError means the transport failed while opening or open.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Common errors returned by the channel.
var (
	ErrNotOpen  = errors.New("control: channel not open")
	ErrNoSender = errors.New("control: no transport bound")
)

// Sender transmits one outbound frame on the underlying transport.
type Sender interface {
	Send(data []byte) error
}

// Options control protocol policy choices.
type Options struct {
	// AutoRespondOnCommit forces a response.create after every committed
	// audio buffer. Off by default: auto-triggering on every commit risks
	// replying to silence.
	AutoRespondOnCommit bool
}

// Channel runs the control protocol state machine over a bound transport.
// Events are delivered to the OnEvent callback in the order received.
type Channel struct {
	mu     sync.Mutex
	cfg    SessionConfig
	opts   Options
	state  State
	sender Sender

	onEvent func(Event)
	onState func(State)
}

// NewChannel creates a channel with the given session configuration.
func NewChannel(cfg SessionConfig, opts Options) *Channel {
	return &Channel{cfg: cfg, opts: opts, state: StateClosed}
}

// OnEvent sets the callback receiving classified inbound events.
func (c *Channel) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// OnStateChange sets the callback receiving state transitions.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current channel state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the session configuration last applied to the channel.
func (c *Channel) Config() SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Bind attaches a transport and moves the channel to opening.
// Call HandleOpen once the transport reports it is ready.
func (c *Channel) Bind(s Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
	c.setState(StateOpening)
}

// HandleOpen transitions to open and sends exactly one session.update
// carrying the current configuration, before any other outbound message.
// This is the only point session-wide turn-detection and voice parameters
// are set; re-configuration requires SendSessionUpdate.
func (c *Channel) HandleOpen() error {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	c.setState(StateOpen)

	return c.send(map[string]any{
		"type":    "session.update",
		"session": cfg.sessionPayload(),
	})
}

// HandleMessage classifies one inbound frame and dispatches the event.
// Malformed frames are dropped silently.
func (c *Channel) HandleMessage(raw []byte) {
	ev, ok := Classify(raw)
	if !ok {
		return
	}

	if ev.Type == EventBufferCommitted {
		c.mu.Lock()
		auto := c.opts.AutoRespondOnCommit
		modalities := c.cfg.Modalities
		c.mu.Unlock()
		if auto {
			_ = c.SendResponseCreate(modalities, "")
		}
	}

	c.mu.Lock()
	fn := c.onEvent
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// HandleClose records an orderly transport close.
func (c *Channel) HandleClose() {
	c.mu.Lock()
	c.sender = nil
	c.mu.Unlock()
	c.setState(StateClosed)
}

// HandleError records a transport failure. Reported via state change,
// never as a panic or return value of the read path.
func (c *Channel) HandleError(err error) {
	c.mu.Lock()
	c.sender = nil
	c.mu.Unlock()
	c.setState(StateError)
}

// Close begins an orderly shutdown. The transport owner closes the
// underlying channel; HandleClose completes the transition.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.state != StateOpen && c.state != StateOpening {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setState(StateClosing)
}

// SendSessionUpdate re-sends the session configuration, replacing the
// channel's current config.
func (c *Channel) SendSessionUpdate(cfg SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return ErrNotOpen
	}
	c.cfg = cfg
	c.mu.Unlock()

	return c.send(map[string]any{
		"type":    "session.update",
		"session": cfg.sessionPayload(),
	})
}

// SendConversationItem injects a user utterance into the conversation.
func (c *Channel) SendConversationItem(role, text string) error {
	if c.State() != StateOpen {
		return ErrNotOpen
	}

	return c.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": role,
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// SendResponseCreate requests the remote model produce a reply. Needed
// because turn detection may not fire when there has been no real speech;
// this is the deterministic way to force one.
func (c *Channel) SendResponseCreate(modalities []string, instructions string) error {
	if c.State() != StateOpen {
		return ErrNotOpen
	}

	response := map[string]any{}
	if len(modalities) > 0 {
		response["modalities"] = modalities
	}
	if instructions != "" {
		response["instructions"] = instructions
	}

	return c.send(map[string]any{
		"type":     "response.create",
		"response": response,
	})
}

func (c *Channel) send(msg map[string]any) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()

	if sender == nil {
		return ErrNoSender
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("control: marshal %v: %w", msg["type"], err)
	}
	return sender.Send(data)
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}
