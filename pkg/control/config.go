// Package control implements the JSON event protocol carried over the peer
// connection's data channel once a session is established.
//
// The protocol is transport-agnostic: a Channel is bound to any Sender (the
// WebRTC data channel in production, a direct Realtime WebSocket for headless
// use, a recorder in tests). Inbound frames are classified into a closed set
// of event variants; unknown types degrade to EventUnknown rather than
// failing, so upstream protocol additions stay benign.
package control

import (
	"errors"
	"time"
)

// Turn-detection modes understood by the upstream session.
const (
	TurnDetectionServerVAD = "server_vad"
	TurnDetectionNone      = "none"
)

// TurnDetection configures when the upstream decides a user turn has ended.
type TurnDetection struct {
	// Type is the detection mode, usually server_vad.
	Type string

	// Threshold is the VAD activation threshold in [0,1]. 0 means default.
	Threshold float64

	// PrefixPadding is audio included before detected speech start.
	PrefixPadding time.Duration

	// SilenceDuration is how much silence ends a turn.
	SilenceDuration time.Duration
}

// SessionConfig describes the desired behavior of the remote model for one
// session. It is sent once when the channel opens; re-sending updates the
// session.
type SessionConfig struct {
	// Modalities the model may produce: "text" and/or "audio".
	Modalities []string

	// Voice is the output voice id.
	Voice string

	// TurnDetection is the turn-detection policy.
	TurnDetection TurnDetection

	// Instructions are the natural-language system instructions.
	Instructions string
}

// DefaultSessionConfig returns a conversational baseline: audio+text output,
// server VAD, concise voice-assistant instructions.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Modalities: []string{"text", "audio"},
		Voice:      "ash",
		TurnDetection: TurnDetection{
			Type:            TurnDetectionServerVAD,
			Threshold:       0.5,
			PrefixPadding:   300 * time.Millisecond,
			SilenceDuration: 500 * time.Millisecond,
		},
		Instructions: "You are a helpful voice assistant. Keep replies concise and natural.",
	}
}

// Validate checks the configuration for errors.
func (c *SessionConfig) Validate() error {
	if len(c.Modalities) == 0 {
		return errors.New("control: at least one modality required")
	}
	for _, m := range c.Modalities {
		if m != "text" && m != "audio" {
			return errors.New("control: unknown modality: " + m)
		}
	}
	if c.TurnDetection.Threshold < 0 || c.TurnDetection.Threshold > 1 {
		return errors.New("control: turn-detection threshold must be between 0 and 1")
	}
	return nil
}

// WithVoice returns a copy with the voice set.
func (c SessionConfig) WithVoice(voice string) SessionConfig {
	c.Voice = voice
	return c
}

// WithInstructions returns a copy with the instructions set.
func (c SessionConfig) WithInstructions(instructions string) SessionConfig {
	c.Instructions = instructions
	return c
}

// WithTurnDetection returns a copy with the turn-detection policy set.
func (c SessionConfig) WithTurnDetection(td TurnDetection) SessionConfig {
	c.TurnDetection = td
	return c
}

// sessionPayload is the wire shape of the session.update body.
func (c *SessionConfig) sessionPayload() map[string]any {
	session := map[string]any{
		"modalities":   c.Modalities,
		"instructions": c.Instructions,
	}
	if c.Voice != "" {
		session["voice"] = c.Voice
	}

	td := map[string]any{"type": c.TurnDetection.Type}
	if c.TurnDetection.Type == "" {
		td["type"] = TurnDetectionServerVAD
	}
	if c.TurnDetection.Threshold > 0 {
		td["threshold"] = c.TurnDetection.Threshold
	}
	if ms := c.TurnDetection.PrefixPadding.Milliseconds(); ms > 0 {
		td["prefix_padding_ms"] = ms
	}
	if ms := c.TurnDetection.SilenceDuration.Milliseconds(); ms > 0 {
		td["silence_duration_ms"] = ms
	}
	session["turn_detection"] = td

	return session
}
