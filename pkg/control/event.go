package control

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType tags a classified control event.
type EventType string

const (
	// EventError is an upstream error frame.
	EventError EventType = "error"
	// EventTranscriptDelta is user or assistant transcript text.
	EventTranscriptDelta EventType = "transcript_delta"
	// EventResponseLifecycle marks a response being created or finished.
	EventResponseLifecycle EventType = "response_lifecycle"
	// EventBufferCommitted marks a finalized user utterance.
	EventBufferCommitted EventType = "buffer_committed"
	// EventUnknown is any well-formed frame the classifier does not know.
	EventUnknown EventType = "unknown"
)

// Response lifecycle phases.
const (
	PhaseCreated = "created"
	PhaseDone    = "done"
)

// Event is a tagged message classified from the control channel.
// Only the fields for the tagged variant are populated.
type Event struct {
	Type EventType

	// Detail describes an EventError.
	Detail string

	// Text and IsFinal carry an EventTranscriptDelta. Consumers concatenate
	// non-final deltas themselves; the protocol layer does not own the
	// assembled string.
	Text    string
	IsFinal bool

	// Phase and OutputCount carry an EventResponseLifecycle. OutputCount is
	// the length of the produced output list, useful for diagnosing empty
	// replies.
	Phase       string
	OutputCount int

	// Raw holds the original frame for EventUnknown.
	Raw json.RawMessage
}

// Classify maps one inbound frame to exactly one event variant.
// Malformed JSON returns ok=false; the channel carries opaque non-JSON
// frames by design, so they are dropped without surfacing an error.
func Classify(raw []byte) (Event, bool) {
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, false
	}

	typ, _ := frame["type"].(string)

	if detail, ok := errorDetail(frame, typ); ok {
		return Event{Type: EventError, Detail: detail}, true
	}

	switch typ {
	case "input_audio_buffer.committed":
		return Event{Type: EventBufferCommitted}, true
	case "response.created":
		return Event{Type: EventResponseLifecycle, Phase: PhaseCreated,
			OutputCount: outputCount(frame)}, true
	case "response.done":
		return Event{Type: EventResponseLifecycle, Phase: PhaseDone,
			OutputCount: outputCount(frame)}, true
	}

	if transcript, ok := frame["transcript"].(string); ok && strings.Contains(typ, "transcription") {
		return Event{Type: EventTranscriptDelta, Text: transcript, IsFinal: true}, true
	}

	if delta, ok := frame["delta"].(string); ok {
		return Event{Type: EventTranscriptDelta, Text: delta, IsFinal: false}, true
	}

	return Event{Type: EventUnknown, Raw: append(json.RawMessage(nil), raw...)}, true
}

// errorDetail reports whether the frame carries an error indicator and
// renders it for diagnostics.
func errorDetail(frame map[string]any, typ string) (string, bool) {
	if typ == "error" || strings.HasSuffix(typ, ".error") {
		if errObj, ok := frame["error"]; ok {
			return renderError(errObj), true
		}
		return typ, true
	}
	if errObj, ok := frame["error"]; ok && errObj != nil {
		return renderError(errObj), true
	}
	return "", false
}

func renderError(errObj any) string {
	if m, ok := errObj.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if s, ok := errObj.(string); ok {
		return s
	}
	b, err := json.Marshal(errObj)
	if err != nil {
		return fmt.Sprint(errObj)
	}
	return string(b)
}

// outputCount returns the length of response.output, or 0.
func outputCount(frame map[string]any) int {
	resp, ok := frame["response"].(map[string]any)
	if !ok {
		return 0
	}
	out, ok := resp["output"].([]any)
	if !ok {
		return 0
	}
	return len(out)
}
